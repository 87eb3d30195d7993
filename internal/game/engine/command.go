package engine

import "github.com/notunoflip/notunoflip.github.io/internal/game/card"

// Command 房间命令，按到达顺序逐条处理
type Command interface {
	Name() string
}

// Join 加入房间（仅大厅阶段）
type Join struct {
	PlayerID string
}

// Leave 离开房间（仅大厅阶段）
type Leave struct {
	PlayerID string
}

// StartGame 房主开始游戏，CardsPerPlayer 为 0 时使用默认值
type StartGame struct {
	HostID         string
	CardsPerPlayer int
}

// PlayCard 出牌，万能牌需要 ChosenColor
type PlayCard struct {
	PlayerID    string
	RoomCardID  string
	ChosenColor card.Color
}

// DrawCard 摸牌并结束回合
type DrawCard struct {
	PlayerID string
}

// AdvanceOnTimeout 超时推进。Turn 是调度时的回合号，0 表示当前回合
type AdvanceOnTimeout struct {
	Turn uint64
}

func (Join) Name() string             { return "join" }
func (Leave) Name() string            { return "leave" }
func (StartGame) Name() string        { return "start_game" }
func (PlayCard) Name() string         { return "play_card" }
func (DrawCard) Name() string         { return "draw_card" }
func (AdvanceOnTimeout) Name() string { return "advance_on_timeout" }
