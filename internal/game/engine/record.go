package engine

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/notunoflip/notunoflip.github.io/internal/game/card"
	"github.com/notunoflip/notunoflip.github.io/internal/game/turn"
)

// Zone 牌所在区域
type Zone string

const (
	ZoneDraw    Zone = "draw"
	ZoneDiscard Zone = "discard"
	ZoneHand    Zone = "hand"
)

// CardRow 一张牌的持久化行
type CardRow struct {
	CardID    string `json:"card_id"`
	CatalogID int    `json:"catalog_id"`
	OwnerID   string `json:"owner_id,omitempty"` // 仅手牌
	Zone      Zone   `json:"zone"`
	Position  int    `json:"position"`
}

// MatchRecord 一个房间的持久化数据：房间行 + 每张牌一行
type MatchRecord struct {
	RoomID        string         `json:"room_id"`
	Phase         Phase          `json:"phase"`
	HostID        string         `json:"host_id"`
	Players       []string       `json:"players"`
	Side          card.Side      `json:"current_side"`
	WildColor     card.Color     `json:"active_wild_color,omitempty"`
	DrawStack     int            `json:"draw_stack"`
	DrawUntil     card.Color     `json:"draw_until_color,omitempty"`
	Direction     turn.Direction `json:"direction"`
	TurnOrder     []string       `json:"turn_order"`
	ActiveIndex   int            `json:"active_player_index"`
	WinnerID      string         `json:"winner_id,omitempty"`
	TurnStartedAt time.Time      `json:"turn_started_at"`
	Turn          uint64         `json:"turn"`
	Version       uint64         `json:"version"`
	Seed          uint64         `json:"seed"`
	Reshuffles    int            `json:"reshuffles"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Cards         []CardRow      `json:"cards"`
}

func (s *matchState) record(roomID string) *MatchRecord {
	rec := &MatchRecord{
		RoomID:        roomID,
		Phase:         s.phase,
		HostID:        s.hostID,
		Players:       slices.Clone(s.players),
		Side:          s.side,
		WildColor:     s.wildColor,
		DrawStack:     s.drawStack,
		DrawUntil:     s.drawUntil,
		Direction:     s.order.Direction,
		TurnOrder:     slices.Clone(s.order.Players),
		ActiveIndex:   s.order.Index,
		WinnerID:      s.winnerID,
		TurnStartedAt: s.turnStartedAt,
		Turn:          s.turn,
		Version:       s.version,
		Seed:          s.seed,
		Reshuffles:    s.reshuffles,
		CreatedAt:     s.createdAt,
		UpdatedAt:     s.updatedAt,
	}

	rows := func(cards []card.Card, zone Zone, owner string) {
		for i, c := range cards {
			rec.Cards = append(rec.Cards, CardRow{
				CardID:    c.ID,
				CatalogID: c.CatalogID,
				OwnerID:   owner,
				Zone:      zone,
				Position:  i,
			})
		}
	}
	rows(s.drawPile, ZoneDraw, "")
	rows(s.discard, ZoneDiscard, "")
	for _, id := range s.order.Players {
		rows(s.hands[id], ZoneHand, id)
	}
	return rec
}

// stateFromRecord 从持久化数据还原状态，牌面由 CatalogID 重新计算
func stateFromRecord(rec *MatchRecord) (*matchState, error) {
	s := &matchState{
		phase:         rec.Phase,
		hostID:        rec.HostID,
		players:       slices.Clone(rec.Players),
		side:          rec.Side,
		wildColor:     rec.WildColor,
		drawStack:     rec.DrawStack,
		drawUntil:     rec.DrawUntil,
		order:         turn.Order{Players: slices.Clone(rec.TurnOrder), Index: rec.ActiveIndex, Direction: rec.Direction},
		winnerID:      rec.WinnerID,
		turnStartedAt: rec.TurnStartedAt,
		turn:          rec.Turn,
		version:       rec.Version,
		seed:          rec.Seed,
		reshuffles:    rec.Reshuffles,
		hands:         make(map[string][]card.Card),
		createdAt:     rec.CreatedAt,
		updatedAt:     rec.UpdatedAt,
	}

	switch s.phase {
	case PhaseLobby, PhaseInProgress, PhaseFinished:
	default:
		return nil, fmt.Errorf("无效的房间阶段: %q", rec.Phase)
	}
	if !s.side.Valid() {
		return nil, fmt.Errorf("无效的牌面: %q", rec.Side)
	}
	if s.order.Direction != turn.CounterClockwise {
		s.order.Direction = turn.Clockwise
	}
	if n := len(s.order.Players); n > 0 && (s.order.Index < 0 || s.order.Index >= n) {
		return nil, fmt.Errorf("无效的当前玩家序号: %d", s.order.Index)
	}

	rows := slices.Clone(rec.Cards)
	slices.SortStableFunc(rows, func(a, b CardRow) int {
		return cmp.Compare(a.Position, b.Position)
	})
	for _, row := range rows {
		c, err := card.FromCatalog(row.CatalogID)
		if err != nil {
			return nil, err
		}
		c.ID = row.CardID

		switch row.Zone {
		case ZoneDraw:
			s.drawPile = append(s.drawPile, c)
		case ZoneDiscard:
			s.discard = append(s.discard, c)
		case ZoneHand:
			s.hands[row.OwnerID] = append(s.hands[row.OwnerID], c)
		default:
			return nil, fmt.Errorf("无效的区域: %q", row.Zone)
		}
	}

	if s.phase != PhaseLobby && len(s.discard) == 0 {
		return nil, fmt.Errorf("房间 %s 缺少弃牌堆", rec.RoomID)
	}
	return s, nil
}
