package rule

import (
	"fmt"

	"github.com/notunoflip/notunoflip.github.io/internal/apperrors"
	"github.com/notunoflip/notunoflip.github.io/internal/game/card"
)

// StackingPolicy 加罚叠加策略
type StackingPolicy string

const (
	StackingNone           StackingPolicy = "none"             // 不允许叠加，必须摸牌
	StackingSameValue      StackingPolicy = "same_value"       // 只能叠加相同牌值
	StackingEqualOrGreater StackingPolicy = "equal_or_greater" // 加罚数量不小于牌顶即可叠加
)

// DefaultStacking 默认叠加策略
const DefaultStacking = StackingEqualOrGreater

// ParseStackingPolicy 解析配置中的叠加策略，空串返回默认值
func ParseStackingPolicy(s string) (StackingPolicy, error) {
	switch p := StackingPolicy(s); p {
	case "":
		return DefaultStacking, nil
	case StackingNone, StackingSameValue, StackingEqualOrGreater:
		return p, nil
	default:
		return "", fmt.Errorf("未知的叠加策略: %q", s)
	}
}

// Table 出牌校验所需的桌面状态
type Table struct {
	ActivePlayerID string
	Top            card.Card  // 弃牌堆顶
	Side           card.Side  // 当前面
	WildColor      card.Color // 万能牌锁定的颜色，空串表示未锁定
	DrawStack      int        // 下家待摸张数
	DrawUntil      card.Color // 待执行的"摸到指定颜色为止"，空串表示无
	Stacking       StackingPolicy
	PlayerCount    int
}

// TopFace 弃牌堆顶在当前面的牌面
func (t Table) TopFace() card.Face {
	return t.Top.Face(t.Side)
}

// EffectiveColor 牌顶的有效颜色。万能牌顶未选色时返回 ColorNone
func (t Table) EffectiveColor() card.Color {
	top := t.TopFace()
	if top.Value.IsWild() {
		if t.WildColor != "" {
			return t.WildColor
		}
		return card.ColorNone
	}
	return top.Color
}

// Play 一次出牌请求
type Play struct {
	PlayerID    string
	CardID      string
	ChosenColor card.Color
}

// Effect 合法出牌的效果
type Effect struct {
	Card         card.Card
	Face         card.Face  // 出牌时的有效牌面
	Skips        int        // 额外跳过的座位数
	SkipEveryone bool       // 跳过所有人，回到出牌者
	Reverse      bool       // 反转方向
	Flip         bool       // 翻面
	DrawDelta    int        // 累加到 DrawStack
	DrawUntil    card.Color // 下家需摸到该颜色为止
	WildColor    card.Color // 锁定的颜色
}

// ValidatePlay 校验出牌并计算效果。不修改任何输入
func ValidatePlay(t Table, hand []card.Card, p Play) (Effect, error) {
	if p.PlayerID != t.ActivePlayerID {
		return Effect{}, apperrors.ErrNotYourTurn
	}
	c, ok := card.FindCard(hand, p.CardID)
	if !ok {
		return Effect{}, apperrors.ErrCardNotInHand
	}
	face := c.Face(t.Side)

	if err := checkStacking(t, face); err != nil {
		return Effect{}, err
	}

	if face.Value.IsWild() {
		if p.ChosenColor == "" {
			return Effect{}, apperrors.ErrMissingChosenColor
		}
		if !card.InPalette(t.Side, p.ChosenColor) {
			return Effect{}, apperrors.ErrInvalidChosenColor
		}
	} else if !matches(t, face) {
		return Effect{}, apperrors.ErrColorValueMismatch
	}

	return effectOf(t, c, face, p.ChosenColor), nil
}

// checkStacking 有待摸的牌时，只有可叠加的加罚牌能出
func checkStacking(t Table, face card.Face) error {
	if t.DrawUntil != "" {
		return apperrors.ErrStackingNotAllowed
	}
	if t.DrawStack == 0 {
		return nil
	}
	if face.Value.DrawAmount() == 0 {
		return apperrors.ErrStackingNotAllowed
	}

	top := t.TopFace()
	switch t.Stacking {
	case StackingSameValue:
		if face.Value != top.Value {
			return apperrors.ErrStackingNotAllowed
		}
	case StackingEqualOrGreater:
		if face.Value.DrawAmount() < top.Value.DrawAmount() {
			return apperrors.ErrStackingNotAllowed
		}
	default:
		return apperrors.ErrStackingNotAllowed
	}
	return nil
}

// matches 非万能牌的颜色或点数匹配
func matches(t Table, face card.Face) bool {
	top := t.TopFace()
	color := t.EffectiveColor()
	if top.Value.IsWild() {
		// 开局翻出的万能牌尚未选色，任何牌都可以出
		return color == card.ColorNone || face.Color == color
	}
	return face.Color == color || face.Value == top.Value
}

func effectOf(t Table, c card.Card, face card.Face, chosen card.Color) Effect {
	e := Effect{Card: c, Face: face}
	switch face.Value {
	case card.Skip:
		e.Skips = 1
	case card.SkipEveryone:
		e.SkipEveryone = true
	case card.Reverse:
		e.Reverse = true
		if t.PlayerCount == 2 {
			e.Skips = 1
		}
	case card.Flip:
		e.Flip = true
	case card.Wild:
		e.WildColor = chosen
	case card.WildDrawTwo:
		e.WildColor = chosen
		e.DrawDelta = face.Value.DrawAmount()
	case card.WildDrawUntil:
		e.WildColor = chosen
		e.DrawUntil = chosen
	default:
		e.DrawDelta = face.Value.DrawAmount()
	}
	return e
}
