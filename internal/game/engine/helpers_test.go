package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/notunoflip/notunoflip.github.io/internal/game/card"
	"github.com/notunoflip/notunoflip.github.io/internal/game/turn"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memStore 记录最后一次保存的数据
type memStore struct {
	mu   sync.Mutex
	recs map[string]*MatchRecord
}

func newMemStore() *memStore {
	return &memStore{recs: make(map[string]*MatchRecord)}
}

func (s *memStore) SaveMatch(_ context.Context, rec *MatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.RoomID] = rec
	return nil
}

func (s *memStore) LoadMatch(_ context.Context, roomID string) (*MatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recs[roomID], nil
}

func (s *memStore) DeleteMatch(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, roomID)
	return nil
}

func (s *memStore) get(roomID string) *MatchRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recs[roomID]
}

// recordingNotifier 记录推送过的快照
type recordingNotifier struct {
	mu     sync.Mutex
	snaps  []Snapshot
	closed []string
}

func (n *recordingNotifier) Publish(_ context.Context, snap Snapshot) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.snaps = append(n.snaps, snap)
	return nil
}

func (n *recordingNotifier) RoomClosed(roomID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = append(n.closed, roomID)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.snaps)
}

func testOptions(clock Clock) Options {
	opts := DefaultOptions()
	opts.Clock = clock
	opts.Seed = func() uint64 { return 42 }
	var mu sync.Mutex
	next := 0
	opts.NewID = func() string {
		mu.Lock()
		defer mu.Unlock()
		next++
		return fmt.Sprintf("id-%d", next)
	}
	return opts
}

func mustSubmit(t *testing.T, r *Room, cmd Command) Snapshot {
	t.Helper()
	snap, err := r.Submit(context.Background(), cmd)
	require.NoError(t, err, "command %s", cmd.Name())
	return snap
}

func cid(catalogID int) string {
	return fmt.Sprintf("card-%d", catalogID)
}

func lightIs(c card.Color, v card.Value) func(card.Card) bool {
	return func(k card.Card) bool { return k.Light == card.Face{Color: c, Value: v} }
}

func darkIs(c card.Color, v card.Value) func(card.Card) bool {
	return func(k card.Card) bool { return k.Dark == card.Face{Color: c, Value: v} }
}

// layout 手工摆好的牌局，用于构造特定场景
type layout struct {
	t      *testing.T
	used   map[int]bool
	side   card.Side
	top    int
	hands  [][]int // 按 A, B, C... 顺序
	under  []int   // 弃牌堆中顶牌以下的牌
	onPile []int   // 牌堆顶部的牌，最后一张在最上面
	restTo string  // 剩余的牌放到哪里：空串为牌堆，否则为该玩家手牌
}

func newLayout(t *testing.T, side card.Side, players int) *layout {
	return &layout{t: t, used: make(map[int]bool), side: side, hands: make([][]int, players)}
}

// pick 选出第一张满足条件且未使用的牌
func (l *layout) pick(pred func(card.Card) bool) int {
	l.t.Helper()
	for id := range card.DeckSize {
		if l.used[id] {
			continue
		}
		c, _ := card.FromCatalog(id)
		if pred(c) {
			l.used[id] = true
			return id
		}
	}
	l.t.Fatal("没有满足条件的牌")
	return -1
}

func (l *layout) setTop(pred func(card.Card) bool) int {
	l.top = l.pick(pred)
	return l.top
}

func (l *layout) give(player int, pred func(card.Card) bool) int {
	id := l.pick(pred)
	l.hands[player] = append(l.hands[player], id)
	return id
}

// pushPile 放到牌堆顶
func (l *layout) pushPile(pred func(card.Card) bool) int {
	id := l.pick(pred)
	l.onPile = append(l.onPile, id)
	return id
}

// fill 给玩家补足到 n 张
func (l *layout) fill(player, n int) {
	for len(l.hands[player]) < n {
		l.give(player, anyCard)
	}
}

func anyCard(card.Card) bool { return true }

func playerName(i int) string {
	return string(rune('A' + i))
}

func (l *layout) record(now time.Time) *MatchRecord {
	l.t.Helper()
	order := make([]string, len(l.hands))
	for i := range l.hands {
		order[i] = playerName(i)
	}
	rec := &MatchRecord{
		RoomID:        "room-1",
		Phase:         PhaseInProgress,
		HostID:        "A",
		Players:       order,
		Side:          l.side,
		Direction:     turn.Clockwise,
		TurnOrder:     order,
		TurnStartedAt: now,
		Turn:          1,
		Version:       1,
		Seed:          7,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var rest []int
	for id := range card.DeckSize {
		if !l.used[id] {
			rest = append(rest, id)
		}
	}

	pile := rest
	if l.restTo != "" {
		pile = nil
		for i, name := range order {
			if name == l.restTo {
				l.hands[i] = append(l.hands[i], rest...)
			}
		}
	}
	pile = append(pile, l.onPile...)

	for i, id := range pile {
		rec.Cards = append(rec.Cards, CardRow{CardID: cid(id), CatalogID: id, Zone: ZoneDraw, Position: i})
	}
	discard := append(append([]int{}, l.under...), l.top)
	for i, id := range discard {
		rec.Cards = append(rec.Cards, CardRow{CardID: cid(id), CatalogID: id, Zone: ZoneDiscard, Position: i})
	}
	for p, hand := range l.hands {
		for i, id := range hand {
			rec.Cards = append(rec.Cards, CardRow{CardID: cid(id), CatalogID: id, OwnerID: order[p], Zone: ZoneHand, Position: i})
		}
	}
	require.Len(l.t, rec.Cards, card.DeckSize)
	return rec
}

func restoreRoom(t *testing.T, rec *MatchRecord, opts Options) *Room {
	t.Helper()
	r, err := Restore(rec, opts)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}
