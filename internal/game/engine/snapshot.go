package engine

import (
	"slices"
	"time"

	"github.com/notunoflip/notunoflip.github.io/internal/game/card"
	"github.com/notunoflip/notunoflip.github.io/internal/game/turn"
)

// Snapshot 一条命令执行后的不可变快照。包含所有手牌，只在服务端内部流转，
// 对外发送前需要经过 View。
type Snapshot struct {
	RoomID          string
	Version         uint64
	Turn            uint64
	Phase           Phase
	HostID          string
	Players         []string
	CurrentSide     card.Side
	ActiveWildColor card.Color
	DrawStack       int
	DrawUntilColor  card.Color
	Direction       turn.Direction
	TurnOrder       []string
	ActivePlayerID  string
	WinnerID        string
	TurnStartedAt   time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastCommand     string

	DiscardTop   *card.Card
	DiscardSize  int
	DrawPileSize int
	Hands        map[string][]card.Card

	drawTop *card.Card
}

// Started 游戏是否已开始
func (s Snapshot) Started() bool {
	return s.Phase != PhaseLobby
}

// CardCount 三个区域的总牌数
func (s Snapshot) CardCount() int {
	n := s.DrawPileSize + s.DiscardSize
	for _, h := range s.Hands {
		n += len(h)
	}
	return n
}

func (s *matchState) snapshot(roomID, lastCommand string) Snapshot {
	snap := Snapshot{
		RoomID:          roomID,
		Version:         s.version,
		Turn:            s.turn,
		Phase:           s.phase,
		HostID:          s.hostID,
		Players:         slices.Clone(s.players),
		CurrentSide:     s.side,
		ActiveWildColor: s.wildColor,
		DrawStack:       s.drawStack,
		DrawUntilColor:  s.drawUntil,
		Direction:       s.order.Direction,
		TurnOrder:       slices.Clone(s.order.Players),
		WinnerID:        s.winnerID,
		TurnStartedAt:   s.turnStartedAt,
		CreatedAt:       s.createdAt,
		UpdatedAt:       s.updatedAt,
		LastCommand:     lastCommand,
		DiscardSize:     len(s.discard),
		DrawPileSize:    len(s.drawPile),
		Hands:           make(map[string][]card.Card, len(s.hands)),
	}
	if s.phase == PhaseInProgress {
		snap.ActivePlayerID = s.activePlayer()
	}
	for id, h := range s.hands {
		snap.Hands[id] = slices.Clone(h)
	}
	if len(s.discard) > 0 {
		top := s.top()
		snap.DiscardTop = &top
	}
	if len(s.drawPile) > 0 {
		top := s.drawPile[len(s.drawPile)-1]
		snap.drawTop = &top
	}
	return snap
}

// DrawPreview 牌堆顶朝外的一面
type DrawPreview struct {
	Side  card.Side  `json:"side"`
	Color card.Color `json:"color"`
	Value card.Value `json:"value"`
}

// PreviewDrawTop 牌堆顶的背面（当前非激活面）。牌堆为空时返回 false
func (s Snapshot) PreviewDrawTop() (DrawPreview, bool) {
	if s.drawTop == nil {
		return DrawPreview{}, false
	}
	side := s.CurrentSide.Other()
	face := s.drawTop.Face(side)
	return DrawPreview{Side: side, Color: face.Color, Value: face.Value}, true
}

// VisibleCard 对某个玩家可见的牌，看不到的一面是 unknown
type VisibleCard struct {
	ID    string    `json:"id"`
	Light card.Face `json:"light"`
	Dark  card.Face `json:"dark"`
}

var hiddenFace = card.Face{Color: card.ColorUnknown, Value: card.ValueUnknown}

// mask 隐藏指定面
func mask(c card.Card, hidden card.Side, reveal bool) VisibleCard {
	v := VisibleCard{ID: c.ID, Light: c.Light, Dark: c.Dark}
	if reveal {
		return v
	}
	if hidden == card.SideLight {
		v.Light = hiddenFace
	} else {
		v.Dark = hiddenFace
	}
	return v
}

// SeatView 一个座位的公开信息
type SeatView struct {
	PlayerID  string        `json:"player_id"`
	CardCount int           `json:"card_count"`
	Cards     []VisibleCard `json:"cards,omitempty"`
}

// PlayerView 推送给单个玩家的视图
type PlayerView struct {
	RoomID          string         `json:"room_id"`
	Version         uint64         `json:"version"`
	Turn            uint64         `json:"turn"`
	Phase           Phase          `json:"phase"`
	Started         bool           `json:"started"`
	HostID          string         `json:"host_id,omitempty"`
	CurrentSide     card.Side      `json:"current_side"`
	ActiveWildColor card.Color     `json:"active_wild_color,omitempty"`
	DrawStack       int            `json:"draw_stack"`
	DrawUntilColor  card.Color     `json:"draw_until_color,omitempty"`
	Direction       turn.Direction `json:"direction"`
	ActivePlayerID  string         `json:"active_player_id,omitempty"`
	WinnerID        string         `json:"winner_id,omitempty"`
	TurnStartedAt   time.Time      `json:"turn_started_at"`
	LastCommand     string         `json:"last_command,omitempty"`
	DiscardTop      *VisibleCard   `json:"discard_top,omitempty"`
	DrawPileSize    int            `json:"draw_pile_size"`
	Hand            []card.Card    `json:"hand"`
	Seats           []SeatView     `json:"seats"`
}

// View 生成 playerID 的视图。自己的手牌完整可见；
// 对手的牌只能看到朝外的一面（非激活面），游戏结束后全部公开。
// playerID 为空时生成旁观视图。
func (s Snapshot) View(playerID string) PlayerView {
	reveal := s.Phase == PhaseFinished
	v := PlayerView{
		RoomID:          s.RoomID,
		Version:         s.Version,
		Turn:            s.Turn,
		Phase:           s.Phase,
		Started:         s.Started(),
		HostID:          s.HostID,
		CurrentSide:     s.CurrentSide,
		ActiveWildColor: s.ActiveWildColor,
		DrawStack:       s.DrawStack,
		DrawUntilColor:  s.DrawUntilColor,
		Direction:       s.Direction,
		ActivePlayerID:  s.ActivePlayerID,
		WinnerID:        s.WinnerID,
		TurnStartedAt:   s.TurnStartedAt,
		LastCommand:     s.LastCommand,
		DrawPileSize:    s.DrawPileSize,
		Hand:            slices.Clone(s.Hands[playerID]),
	}
	if v.Hand == nil {
		v.Hand = []card.Card{}
	}
	if s.DiscardTop != nil {
		top := mask(*s.DiscardTop, s.CurrentSide.Other(), reveal)
		v.DiscardTop = &top
	}

	seats := s.TurnOrder
	if len(seats) == 0 {
		seats = s.Players
	}
	for _, id := range seats {
		hand := s.Hands[id]
		seat := SeatView{PlayerID: id, CardCount: len(hand)}
		if id != playerID {
			for _, c := range hand {
				seat.Cards = append(seat.Cards, mask(c, s.CurrentSide, reveal))
			}
		}
		v.Seats = append(v.Seats, seat)
	}
	return v
}
