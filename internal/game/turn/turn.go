package turn

import "fmt"

// Direction 出牌方向
type Direction int

const (
	Clockwise        Direction = 1
	CounterClockwise Direction = -1
)

// Reversed 返回相反方向
func (d Direction) Reversed() Direction {
	if d == CounterClockwise {
		return Clockwise
	}
	return CounterClockwise
}

func (d Direction) String() string {
	if d == CounterClockwise {
		return "counterclockwise"
	}
	return "clockwise"
}

// MarshalText 序列化为 clockwise / counterclockwise
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText 解析方向
func (d *Direction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "clockwise", "":
		*d = Clockwise
	case "counterclockwise":
		*d = CounterClockwise
	default:
		return fmt.Errorf("未知的方向: %q", b)
	}
	return nil
}

// Move 一次回合推进
type Move struct {
	Skips        int  // 额外跳过的座位数
	Reverse      bool // 先反转方向
	SkipEveryone bool // 跳过所有人，回到当前玩家
}

// Order 回合顺序
type Order struct {
	Players   []string
	Index     int
	Direction Direction
}

// Active 当前玩家
func (o Order) Active() string {
	if len(o.Players) == 0 {
		return ""
	}
	return o.Players[o.Index]
}

// Advance 计算下一个回合顺序，纯函数
func Advance(o Order, m Move) Order {
	n := len(o.Players)
	if n == 0 {
		return o
	}
	if m.Reverse {
		o.Direction = o.Direction.Reversed()
	}
	if m.SkipEveryone {
		return o
	}
	o.Index = Seat(o.Index, n, o.Direction, 1+m.Skips)
	return o
}

// Seat 从 index 出发沿 dir 走 steps 个座位
func Seat(index, n int, dir Direction, steps int) int {
	return ((index+int(dir)*steps)%n + n) % n
}
