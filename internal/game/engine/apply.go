package engine

import (
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/notunoflip/notunoflip.github.io/internal/apperrors"
	"github.com/notunoflip/notunoflip.github.io/internal/game/card"
	"github.com/notunoflip/notunoflip.github.io/internal/game/rule"
	"github.com/notunoflip/notunoflip.github.io/internal/game/turn"
)

// errNoChange 命令合法但不产生新状态（例如重复加入）
var errNoChange = errors.New("no change")

// apply 在 s 上执行命令。返回错误时 s 必须被丢弃
func (r *Room) apply(s *matchState, cmd Command, now time.Time) error {
	switch c := cmd.(type) {
	case Join:
		return r.join(s, c)
	case Leave:
		return r.leave(s, c)
	case StartGame:
		return r.startGame(s, c, now)
	case PlayCard:
		return r.playCard(s, c, now)
	case DrawCard:
		return r.drawCard(s, c, now)
	case AdvanceOnTimeout:
		return r.advanceOnTimeout(s, c, now)
	default:
		return fmt.Errorf("未知命令: %T", cmd)
	}
}

// requireLobby 大厅阶段检查
func requireLobby(s *matchState) error {
	switch s.phase {
	case PhaseInProgress:
		return apperrors.ErrRoomAlreadyStarted
	case PhaseFinished:
		return apperrors.ErrRoomFinished
	}
	return nil
}

// requireInProgress 游戏进行中检查
func requireInProgress(s *matchState) error {
	switch s.phase {
	case PhaseLobby:
		return apperrors.ErrGameNotStart
	case PhaseFinished:
		return apperrors.ErrRoomFinished
	}
	return nil
}

func (r *Room) join(s *matchState, c Join) error {
	if err := requireLobby(s); err != nil {
		return err
	}
	if s.hasPlayer(c.PlayerID) {
		return errNoChange
	}
	if len(s.players) >= r.opts.MaxPlayers {
		return apperrors.ErrRoomFull
	}

	s.players = append(s.players, c.PlayerID)
	if s.hostID == "" {
		s.hostID = c.PlayerID
	}
	log.Printf("🏠 玩家 %s 加入房间 %s (%d/%d)", c.PlayerID, r.id, len(s.players), r.opts.MaxPlayers)
	return nil
}

func (r *Room) leave(s *matchState, c Leave) error {
	if err := requireLobby(s); err != nil {
		return err
	}
	if !s.hasPlayer(c.PlayerID) {
		return apperrors.ErrNotInRoom
	}

	s.players = slices.DeleteFunc(s.players, func(id string) bool { return id == c.PlayerID })
	if s.hostID == c.PlayerID {
		s.hostID = ""
		if len(s.players) > 0 {
			s.hostID = s.players[0]
		}
	}
	log.Printf("🏠 玩家 %s 离开房间 %s", c.PlayerID, r.id)
	return nil
}

func (r *Room) startGame(s *matchState, c StartGame, now time.Time) error {
	if err := requireLobby(s); err != nil {
		return err
	}
	if c.HostID != s.hostID {
		return apperrors.ErrNotHost
	}
	if len(s.players) < 2 {
		return apperrors.ErrNotEnoughPlayers
	}
	perPlayer := c.CardsPerPlayer
	if perPlayer == 0 {
		perPlayer = r.opts.CardsPerPlayer
	}

	seed := r.opts.Seed()
	order := slices.Clone(s.players)
	rng := rand.New(rand.NewPCG(seed, ^seed))
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	deck := card.Shuffle(card.BuildDeck(), seed)
	for i := range deck {
		deck[i].ID = r.opts.NewID()
	}

	hands, pile, first, err := card.Deal(deck, order, perPlayer)
	if err != nil {
		var insufficient *card.InsufficientCardsError
		if errors.As(err, &insufficient) {
			return apperrors.ErrInsufficientCards
		}
		return err
	}

	if !r.opts.AllowActionOpener {
		pile, first = buryActionOpeners(pile, first)
	}

	s.phase = PhaseInProgress
	s.side = card.SideLight
	s.wildColor = ""
	s.drawStack = 0
	s.drawUntil = ""
	s.order = turn.Order{Players: order, Index: 0, Direction: turn.Clockwise}
	s.seed = seed
	s.reshuffles = 0
	s.hands = hands
	s.drawPile = pile
	s.discard = []card.Card{first}
	s.turn = 1
	s.turnStartedAt = now

	log.Printf("🎮 房间 %s 游戏开始，顺序 %v，首张弃牌 %s", r.id, order, first.Light)
	return nil
}

// buryActionOpeners 非数字首牌压到牌堆底，再翻下一张
func buryActionOpeners(pile []card.Card, first card.Card) ([]card.Card, card.Card) {
	for range len(pile) {
		if first.Light.Value.IsNumeral() {
			break
		}
		pile = append([]card.Card{first}, pile...)
		first = pile[len(pile)-1]
		pile = pile[:len(pile)-1]
	}
	return pile, first
}

func (r *Room) playCard(s *matchState, c PlayCard, now time.Time) error {
	if err := requireInProgress(s); err != nil {
		return err
	}

	effect, err := rule.ValidatePlay(s.table(r.opts.Stacking), s.hands[c.PlayerID], rule.Play{
		PlayerID:    c.PlayerID,
		CardID:      c.RoomCardID,
		ChosenColor: c.ChosenColor,
	})
	if err != nil {
		return err
	}

	s.hands[c.PlayerID] = card.RemoveCard(s.hands[c.PlayerID], c.RoomCardID)
	s.discard = append(s.discard, effect.Card)

	switch {
	case effect.Flip:
		// 翻面后旧的锁定颜色属于另一套颜色，失效
		s.side = s.side.Other()
		s.wildColor = ""
	case effect.WildColor != "":
		s.wildColor = effect.WildColor
	default:
		s.wildColor = ""
	}
	s.drawStack += effect.DrawDelta
	if effect.DrawUntil != "" {
		s.drawUntil = effect.DrawUntil
	}

	if len(s.hands[c.PlayerID]) == 0 {
		s.phase = PhaseFinished
		s.winnerID = c.PlayerID
		s.turn++
		log.Printf("🏆 房间 %s 玩家 %s 获胜", r.id, c.PlayerID)
		return nil
	}

	s.passTurn(turn.Move{
		Skips:        effect.Skips,
		Reverse:      effect.Reverse,
		SkipEveryone: effect.SkipEveryone,
	}, now)
	return nil
}

func (r *Room) drawCard(s *matchState, c DrawCard, now time.Time) error {
	if err := requireInProgress(s); err != nil {
		return err
	}
	if c.PlayerID != s.activePlayer() {
		return apperrors.ErrNotYourTurn
	}

	if _, err := drawFor(s, c.PlayerID); err != nil {
		return err
	}
	s.passTurn(turn.Move{}, now)
	return nil
}

func (r *Room) advanceOnTimeout(s *matchState, c AdvanceOnTimeout, now time.Time) error {
	if c.Turn != 0 && c.Turn != s.turn {
		return apperrors.ErrStaleTimeout
	}
	if err := requireInProgress(s); err != nil {
		return err
	}
	if now.Sub(s.turnStartedAt) < r.opts.TurnTimeout {
		return apperrors.ErrTurnNotExpired
	}

	active := s.activePlayer()
	n, err := drawFor(s, active)
	switch {
	case errors.Is(err, apperrors.ErrDeckExhausted):
		// 无牌可摸，直接跳过
		s.drawStack = 0
		s.drawUntil = ""
		log.Printf("⏰ 房间 %s 玩家 %s 超时，牌堆已空，直接跳过", r.id, active)
	case err != nil:
		return err
	default:
		log.Printf("⏰ 房间 %s 玩家 %s 超时，自动摸 %d 张", r.id, active, n)
	}

	s.passTurn(turn.Move{}, now)
	return nil
}

// drawFor 执行当前玩家的摸牌义务，返回摸到的张数。
// 一张都摸不到时返回 ErrDeckExhausted 且不修改状态。
func drawFor(s *matchState, playerID string) (int, error) {
	switch {
	case s.drawUntil != "":
		if s.drawable() == 0 {
			return 0, apperrors.ErrDeckExhausted
		}
		n := 0
		for {
			c, ok := s.drawOne()
			if !ok {
				break
			}
			s.hands[playerID] = append(s.hands[playerID], c)
			n++
			if c.Face(s.side).Color == s.drawUntil {
				break
			}
		}
		s.drawUntil = ""
		return n, nil

	case s.drawStack > 0:
		// 牌不够时能摸几张摸几张，剩余的罚牌作废
		n := min(s.drawStack, s.drawable())
		if n == 0 {
			return 0, apperrors.ErrDeckExhausted
		}
		for range n {
			c, _ := s.drawOne()
			s.hands[playerID] = append(s.hands[playerID], c)
		}
		s.drawStack = 0
		return n, nil

	default:
		c, ok := s.drawOne()
		if !ok {
			return 0, apperrors.ErrDeckExhausted
		}
		s.hands[playerID] = append(s.hands[playerID], c)
		return 1, nil
	}
}
