package apperrors

import (
	"errors"

	"github.com/notunoflip/notunoflip.github.io/internal/protocol"
)

// Kind 错误分类
type Kind int

const (
	KindValidation   Kind = iota + 1 // 规则校验失败，状态不变
	KindPrecondition                 // 房间状态不允许该操作
	KindResource                     // 资源不足，可重试
	KindStale                        // 过期的超时推进，静默忽略
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPrecondition:
		return "precondition"
	case KindResource:
		return "resource"
	case KindStale:
		return "stale"
	default:
		return "unknown"
	}
}

// GameError 游戏错误（引擎和传输层共享）
type GameError struct {
	Code    int
	Kind    Kind
	Message string
}

func (e *GameError) Error() string {
	return e.Message
}

func newError(kind Kind, code int) *GameError {
	return &GameError{Code: code, Kind: kind, Message: protocol.ErrorMessages[code]}
}

// 校验错误
var (
	ErrNotYourTurn        = newError(KindValidation, protocol.ErrCodeNotYourTurn)
	ErrCardNotInHand      = newError(KindValidation, protocol.ErrCodeCardNotInHand)
	ErrColorValueMismatch = newError(KindValidation, protocol.ErrCodeColorValueMismatch)
	ErrMissingChosenColor = newError(KindValidation, protocol.ErrCodeMissingChosenColor)
	ErrStackingNotAllowed = newError(KindValidation, protocol.ErrCodeStackingNotAllowed)
	ErrInvalidChosenColor = newError(KindValidation, protocol.ErrCodeInvalidChosenColor)
)

// 前置条件错误
var (
	ErrRoomNotFound       = newError(KindPrecondition, protocol.ErrCodeRoomNotFound)
	ErrNotEnoughPlayers   = newError(KindPrecondition, protocol.ErrCodeNotEnoughPlayers)
	ErrRoomAlreadyStarted = newError(KindPrecondition, protocol.ErrCodeRoomAlreadyStarted)
	ErrRoomFinished       = newError(KindPrecondition, protocol.ErrCodeRoomFinished)
	ErrGameNotStart       = newError(KindPrecondition, protocol.ErrCodeGameNotStart)
	ErrNotHost            = newError(KindPrecondition, protocol.ErrCodeNotHost)
	ErrRoomFull           = newError(KindPrecondition, protocol.ErrCodeRoomFull)
	ErrNotInRoom          = newError(KindPrecondition, protocol.ErrCodeNotInRoom)
	ErrTurnNotExpired     = newError(KindPrecondition, protocol.ErrCodeTurnNotExpired)
	ErrInsufficientCards  = newError(KindPrecondition, protocol.ErrCodeInsufficientCards)
	ErrRoomClosed         = newError(KindPrecondition, protocol.ErrCodeRoomClosed)
)

// 资源错误
var (
	ErrDeckExhausted = newError(KindResource, protocol.ErrCodeDeckExhausted)
	ErrRoomBusy      = newError(KindResource, protocol.ErrCodeRoomBusy)
)

// ErrStaleTimeout 超时推进已过期（回合已被真实操作推进）
var ErrStaleTimeout = newError(KindStale, protocol.ErrCodeStaleTimeout)

// KindOf 返回错误分类，非 GameError 返回 0
func KindOf(err error) Kind {
	var gameErr *GameError
	if errors.As(err, &gameErr) {
		return gameErr.Kind
	}
	return 0
}
