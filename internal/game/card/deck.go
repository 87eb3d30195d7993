package card

import (
	"fmt"
	"math"
	"math/rand/v2"
)

const (
	// DeckSize 一副 UNO Flip 牌的张数
	DeckSize = 112

	// pairStride 亮面第 i 张与暗面第 i*pairStride%DeckSize 张配对，与 DeckSize 互质
	pairStride = 45
)

// lightColored 亮面每种颜色的功能牌
var lightColored = []Value{DrawOne, Reverse, Skip, Flip}

// darkColored 暗面每种颜色的功能牌
var darkColored = []Value{DrawFive, Reverse, SkipEveryone, Flip}

// buildSide 生成一面的 112 个牌面
func buildSide(side Side, actions []Value, wilds []Value) []Face {
	faces := make([]Face, 0, DeckSize)
	for _, color := range palettes[side] {
		for range 2 {
			for _, v := range numerals {
				faces = append(faces, Face{Color: color, Value: v})
			}
			for _, v := range actions {
				faces = append(faces, Face{Color: color, Value: v})
			}
		}
	}
	for _, v := range wilds {
		for range 4 {
			faces = append(faces, Face{Color: ColorNone, Value: v})
		}
	}
	return faces
}

var (
	lightFaces = buildSide(SideLight, lightColored, []Value{Wild, WildDrawTwo})
	darkFaces  = buildSide(SideDark, darkColored, []Value{Wild, WildDrawUntil})
)

// FromCatalog 根据牌库序号还原一张牌（不带房间 ID）
func FromCatalog(catalogID int) (Card, error) {
	if catalogID < 0 || catalogID >= DeckSize {
		return Card{}, fmt.Errorf("无效的牌库序号: %d", catalogID)
	}
	return Card{
		CatalogID: catalogID,
		Light:     lightFaces[catalogID],
		Dark:      darkFaces[(catalogID*pairStride)%DeckSize],
	}, nil
}

// BuildDeck 生成一副完整的牌，顺序固定
func BuildDeck() []Card {
	deck := make([]Card, DeckSize)
	for i := range deck {
		deck[i], _ = FromCatalog(i)
	}
	return deck
}

// Shuffle 使用给定种子返回洗好的新牌组，不修改入参
func Shuffle(deck []Card, seed uint64) []Card {
	out := make([]Card, len(deck))
	copy(out, deck)
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	r.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// InsufficientCardsError 牌不够发
type InsufficientCardsError struct {
	Need int
	Have int
}

func (e *InsufficientCardsError) Error() string {
	return fmt.Sprintf("牌不够发: 需要 %d 张, 只有 %d 张", e.Need, e.Have)
}

// Deal 按顺序轮流发牌，然后从剩余牌堆翻一张作为首张弃牌。
// 牌堆顶在切片末尾。
func Deal(deck []Card, players []string, cardsPerPlayer int) (map[string][]Card, []Card, Card, error) {
	if cardsPerPlayer < 1 || len(players) == 0 || cardsPerPlayer > (len(deck)-1)/len(players) {
		// 先除后比较，避免乘法溢出
		need := math.MaxInt
		switch {
		case cardsPerPlayer < 1 || len(players) == 0:
			need = 1
		case cardsPerPlayer <= (math.MaxInt-1)/len(players):
			need = cardsPerPlayer*len(players) + 1
		}
		return nil, nil, Card{}, &InsufficientCardsError{Need: need, Have: len(deck)}
	}

	pile := make([]Card, len(deck))
	copy(pile, deck)

	hands := make(map[string][]Card, len(players))
	for _, p := range players {
		hands[p] = make([]Card, 0, cardsPerPlayer)
	}
	for range cardsPerPlayer {
		for _, p := range players {
			top := pile[len(pile)-1]
			pile = pile[:len(pile)-1]
			hands[p] = append(hands[p], top)
		}
	}

	first := pile[len(pile)-1]
	pile = pile[:len(pile)-1]
	return hands, pile, first, nil
}
