package card

import (
	"fmt"
	"strings"
)

// Color 定义牌面颜色
type Color string

// Value 定义牌面点数或功能
type Value string

// Side 定义牌的正反面（亮面 / 暗面）
type Side string

const (
	SideLight Side = "light"
	SideDark  Side = "dark"
)

// Other 返回另一面
func (s Side) Other() Side {
	if s == SideDark {
		return SideLight
	}
	return SideDark
}

func (s Side) Valid() bool {
	return s == SideLight || s == SideDark
}

const (
	ColorNone Color = "none" // 万能牌无颜色

	// 亮面颜色
	Red    Color = "red"
	Yellow Color = "yellow"
	Green  Color = "green"
	Blue   Color = "blue"

	// 暗面颜色
	Pink      Color = "pink"
	LightBlue Color = "light_blue"
	Orange    Color = "orange"
	Purple    Color = "purple"
)

// ColorUnknown 对手不可见的牌面
const ColorUnknown Color = "unknown"

// palettes 每一面可用的颜色
var palettes = map[Side][]Color{
	SideLight: {Red, Yellow, Green, Blue},
	SideDark:  {Pink, LightBlue, Orange, Purple},
}

// Palette 返回指定面的颜色列表
func Palette(side Side) []Color {
	return append([]Color(nil), palettes[side]...)
}

// InPalette 判断颜色是否属于指定面
func InPalette(side Side, c Color) bool {
	for _, pc := range palettes[side] {
		if pc == c {
			return true
		}
	}
	return false
}

const (
	Value0 Value = "0"
	Value1 Value = "1"
	Value2 Value = "2"
	Value3 Value = "3"
	Value4 Value = "4"
	Value5 Value = "5"
	Value6 Value = "6"
	Value7 Value = "7"
	Value8 Value = "8"
	Value9 Value = "9"

	Skip          Value = "skip"
	Reverse       Value = "reverse"
	DrawOne       Value = "draw_one"
	DrawTwo       Value = "draw_two"
	DrawFive      Value = "draw_five"
	Wild          Value = "wild"
	WildDrawTwo   Value = "wild_draw_two"
	WildDrawUntil Value = "wild_draw_until"
	SkipEveryone  Value = "skip_everyone"
	Flip          Value = "flip"

	ValueUnknown Value = "unknown"
)

var numerals = []Value{Value1, Value2, Value3, Value4, Value5, Value6, Value7, Value8, Value9}

// drawAmounts 加罚牌的数量
var drawAmounts = map[Value]int{
	DrawOne:     1,
	DrawTwo:     2,
	DrawFive:    5,
	WildDrawTwo: 2,
}

// IsWild wild 系列牌（总是可出，需要选色）
func (v Value) IsWild() bool {
	return strings.HasPrefix(string(v), "wild")
}

// IsNumeral 数字牌
func (v Value) IsNumeral() bool {
	return len(v) == 1 && v[0] >= '0' && v[0] <= '9'
}

// DrawAmount 返回加罚数量，非加罚牌返回 0
func (v Value) DrawAmount() int {
	return drawAmounts[v]
}

// IsDraw 加罚类牌（含 wild_draw_until）
func (v Value) IsDraw() bool {
	return v.DrawAmount() > 0 || v == WildDrawUntil
}

// Face 牌的一面
type Face struct {
	Color Color `json:"color"`
	Value Value `json:"value"`
}

func (f Face) String() string {
	if f.Color == ColorNone {
		return string(f.Value)
	}
	return fmt.Sprintf("%s/%s", f.Color, f.Value)
}

// Card 一张双面牌。ID 是房间内的牌 ID，CatalogID 是牌库中的序号
type Card struct {
	ID        string `json:"id"`
	CatalogID int    `json:"catalog_id"`
	Light     Face   `json:"light"`
	Dark      Face   `json:"dark"`
}

// Face 返回指定面
func (c Card) Face(side Side) Face {
	if side == SideDark {
		return c.Dark
	}
	return c.Light
}

func (c Card) String() string {
	return fmt.Sprintf("[%s | %s]", c.Light, c.Dark)
}
