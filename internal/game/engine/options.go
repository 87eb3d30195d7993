package engine

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/notunoflip/notunoflip.github.io/internal/game/rule"
)

const (
	DefaultCardsPerPlayer = 7
	DefaultMaxPlayers     = 10
	DefaultQueueDepth     = 32
	DefaultTurnTimeout    = 30 * time.Second

	// persistTimeout 每条命令持久化的超时时间
	persistTimeout = 3 * time.Second
)

// Clock 时间来源，测试中可替换
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Store 持久化一个房间的完整行集合。LoadMatch 找不到时返回 nil, nil
type Store interface {
	SaveMatch(ctx context.Context, rec *MatchRecord) error
	LoadMatch(ctx context.Context, roomID string) (*MatchRecord, error)
	DeleteMatch(ctx context.Context, roomID string) error
}

// Notifier 接收每条成功命令之后的不可变快照
type Notifier interface {
	Publish(ctx context.Context, snap Snapshot) error
	RoomClosed(roomID string)
}

// Options 房间引擎配置
type Options struct {
	Stacking          rule.StackingPolicy
	AllowActionOpener bool // 允许功能牌/万能牌作为首张弃牌
	TurnTimeout       time.Duration
	CardsPerPlayer    int
	MaxPlayers        int
	QueueDepth        int

	Clock    Clock
	Seed     func() uint64 // 每局的随机种子
	NewID    func() string // 房间内牌 ID
	Store    Store
	Notifier Notifier
}

// DefaultOptions 返回默认配置
func DefaultOptions() Options {
	return Options{
		Stacking:          rule.DefaultStacking,
		AllowActionOpener: true,
		TurnTimeout:       DefaultTurnTimeout,
		CardsPerPlayer:    DefaultCardsPerPlayer,
		MaxPlayers:        DefaultMaxPlayers,
		QueueDepth:        DefaultQueueDepth,
	}
}

func (o Options) withDefaults() Options {
	if o.Stacking == "" {
		o.Stacking = rule.DefaultStacking
	}
	if o.TurnTimeout <= 0 {
		o.TurnTimeout = DefaultTurnTimeout
	}
	if o.CardsPerPlayer <= 0 {
		o.CardsPerPlayer = DefaultCardsPerPlayer
	}
	if o.MaxPlayers <= 0 {
		o.MaxPlayers = DefaultMaxPlayers
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = DefaultQueueDepth
	}
	if o.Clock == nil {
		o.Clock = systemClock{}
	}
	if o.Seed == nil {
		o.Seed = rand.Uint64
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	if o.Store == nil {
		o.Store = nopStore{}
	}
	if o.Notifier == nil {
		o.Notifier = nopNotifier{}
	}
	return o
}

type nopStore struct{}

func (nopStore) SaveMatch(context.Context, *MatchRecord) error { return nil }

func (nopStore) LoadMatch(context.Context, string) (*MatchRecord, error) { return nil, nil }

func (nopStore) DeleteMatch(context.Context, string) error { return nil }

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context, Snapshot) error { return nil }

func (nopNotifier) RoomClosed(string) {}
