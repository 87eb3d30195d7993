package card

import "slices"

// IndexOf 返回手牌中指定 ID 的位置，找不到返回 -1
func IndexOf(hand []Card, id string) int {
	return slices.IndexFunc(hand, func(c Card) bool { return c.ID == id })
}

// FindCard 从手牌中查找指定 ID 的牌
func FindCard(hand []Card, id string) (Card, bool) {
	if i := IndexOf(hand, id); i >= 0 {
		return hand[i], true
	}
	return Card{}, false
}

// RemoveCard 从手牌中移除指定 ID 的牌，返回新的手牌
func RemoveCard(hand []Card, id string) []Card {
	i := IndexOf(hand, id)
	if i < 0 {
		return hand
	}
	out := make([]Card, 0, len(hand)-1)
	out = append(out, hand[:i]...)
	return append(out, hand[i+1:]...)
}
