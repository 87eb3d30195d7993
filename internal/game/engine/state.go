package engine

import (
	"slices"
	"time"

	"github.com/notunoflip/notunoflip.github.io/internal/game/card"
	"github.com/notunoflip/notunoflip.github.io/internal/game/rule"
	"github.com/notunoflip/notunoflip.github.io/internal/game/turn"
)

// Phase 房间阶段
type Phase string

const (
	PhaseLobby      Phase = "lobby"
	PhaseInProgress Phase = "in_progress"
	PhaseFinished   Phase = "finished"
)

// matchState 房间的可变状态，只由房间协程读写
type matchState struct {
	phase   Phase
	hostID  string
	players []string // 加入顺序

	side      card.Side
	wildColor card.Color
	drawStack int
	drawUntil card.Color
	order     turn.Order
	winnerID  string

	turnStartedAt time.Time
	turn          uint64 // 每次回合推进加一
	version       uint64 // 每条成功命令加一

	seed       uint64
	reshuffles int

	drawPile []card.Card // 顶在末尾
	discard  []card.Card // 顶在末尾
	hands    map[string][]card.Card

	createdAt time.Time
	updatedAt time.Time
}

func newMatchState(now time.Time) *matchState {
	return &matchState{
		phase:     PhaseLobby,
		side:      card.SideLight,
		order:     turn.Order{Direction: turn.Clockwise},
		hands:     make(map[string][]card.Card),
		createdAt: now,
		updatedAt: now,
	}
}

// clone 深拷贝，命令在副本上执行，失败时直接丢弃
func (s *matchState) clone() *matchState {
	c := *s
	c.players = slices.Clone(s.players)
	c.order.Players = slices.Clone(s.order.Players)
	c.drawPile = slices.Clone(s.drawPile)
	c.discard = slices.Clone(s.discard)
	c.hands = make(map[string][]card.Card, len(s.hands))
	for id, h := range s.hands {
		c.hands[id] = slices.Clone(h)
	}
	return &c
}

func (s *matchState) hasPlayer(id string) bool {
	return slices.Contains(s.players, id)
}

func (s *matchState) activePlayer() string {
	return s.order.Active()
}

func (s *matchState) top() card.Card {
	return s.discard[len(s.discard)-1]
}

func (s *matchState) table(policy rule.StackingPolicy) rule.Table {
	return rule.Table{
		ActivePlayerID: s.activePlayer(),
		Top:            s.top(),
		Side:           s.side,
		WildColor:      s.wildColor,
		DrawStack:      s.drawStack,
		DrawUntil:      s.drawUntil,
		Stacking:       policy,
		PlayerCount:    len(s.order.Players),
	}
}

// drawable 还能摸到的牌数（弃牌堆顶不参与洗牌）
func (s *matchState) drawable() int {
	return len(s.drawPile) + max(len(s.discard)-1, 0)
}

// drawOne 从牌堆摸一张，牌堆空时先把弃牌堆（除顶牌）洗回
func (s *matchState) drawOne() (card.Card, bool) {
	if len(s.drawPile) == 0 {
		s.reshuffle()
	}
	if len(s.drawPile) == 0 {
		return card.Card{}, false
	}
	c := s.drawPile[len(s.drawPile)-1]
	s.drawPile = s.drawPile[:len(s.drawPile)-1]
	return c, true
}

func (s *matchState) reshuffle() {
	if len(s.discard) <= 1 {
		return
	}
	top := s.top()
	rest := s.discard[:len(s.discard)-1]
	s.reshuffles++
	s.drawPile = card.Shuffle(rest, s.seed+uint64(s.reshuffles))
	s.discard = []card.Card{top}
}

// passTurn 推进到下一位玩家
func (s *matchState) passTurn(move turn.Move, now time.Time) {
	s.order = turn.Advance(s.order, move)
	s.turn++
	s.turnStartedAt = now
}
