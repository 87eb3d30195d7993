package handler

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/notunoflip/notunoflip.github.io/internal/apperrors"
	"github.com/notunoflip/notunoflip.github.io/internal/game/engine"
	"github.com/notunoflip/notunoflip.github.io/internal/protocol"
	"github.com/notunoflip/notunoflip.github.io/internal/protocol/codec"
	"github.com/notunoflip/notunoflip.github.io/internal/server/storage"
)

// commandTimeout 单条命令等待结果的最长时间
const commandTimeout = 5 * time.Second

// Conn 一个已绑定玩家和房间的连接
type Conn interface {
	ID() string
	PlayerID() string
	RoomID() string
	SendMessage(msg *protocol.Message)
}

// Rooms 房间注册表
type Rooms interface {
	Submit(ctx context.Context, roomID string, cmd engine.Command) (engine.Snapshot, error)
	Lookup(ctx context.Context, roomID string) (*engine.Room, error)
}

// Leaderboard 排行榜
type Leaderboard interface {
	GetLeaderboard(ctx context.Context, limit int) ([]storage.LeaderboardEntry, error)
}

// HandlerDeps 处理器依赖
type HandlerDeps struct {
	Rooms       Rooms
	Leaderboard Leaderboard // 可为空
}

// Handler WebSocket 消息处理器
type Handler struct {
	rooms       Rooms
	leaderboard Leaderboard
	handlers    map[protocol.MessageType]handlerFunc
}

// handlerFunc 统一的处理器函数签名
type handlerFunc func(c Conn, msg *protocol.Message)

// NewHandler 创建处理器
func NewHandler(deps HandlerDeps) *Handler {
	h := &Handler{
		rooms:       deps.Rooms,
		leaderboard: deps.Leaderboard,
	}
	h.initHandlers()
	return h
}

// initHandlers 初始化消息处理器映射
func (h *Handler) initHandlers() {
	h.handlers = map[protocol.MessageType]handlerFunc{
		// 连接操作
		protocol.MsgPing: h.handlePing,

		// 房间操作
		protocol.MsgJoin:  func(c Conn, _ *protocol.Message) { h.handleJoin(c) },
		protocol.MsgLeave: func(c Conn, _ *protocol.Message) { h.submit(c, engine.Leave{PlayerID: c.PlayerID()}) },

		// 游戏操作
		protocol.MsgStartGame: h.handleStartGame,
		protocol.MsgPlayCard:  h.handlePlayCard,
		protocol.MsgDrawCard:  func(c Conn, _ *protocol.Message) { h.submit(c, engine.DrawCard{PlayerID: c.PlayerID()}) },

		// 信息查询
		protocol.MsgPreviewDraw:    func(c Conn, _ *protocol.Message) { h.handlePreviewDraw(c) },
		protocol.MsgGetState:       func(c Conn, _ *protocol.Message) { h.handleGetState(c) },
		protocol.MsgGetLeaderboard: h.handleGetLeaderboard,
	}
}

// readOnly 旁观连接（没有玩家身份）也可以发送的消息
var readOnly = map[protocol.MessageType]bool{
	protocol.MsgPing:           true,
	protocol.MsgPreviewDraw:    true,
	protocol.MsgGetState:       true,
	protocol.MsgGetLeaderboard: true,
}

// Handle 处理消息
func (h *Handler) Handle(c Conn, msg *protocol.Message) {
	if handler, ok := h.handlers[msg.Type]; ok {
		if c.PlayerID() == "" && !readOnly[msg.Type] {
			c.SendMessage(codec.NewErrorMessage(protocol.ErrCodeUnauthorize))
			return
		}
		handler(c, msg)
		return
	}

	log.Printf("⚠️  未知消息类型: '%s' (来自玩家: %s, 连接: %s)", msg.Type, c.PlayerID(), c.ID())
	c.SendMessage(codec.NewErrorMessage(protocol.ErrCodeInvalidMsg))
}

// sendError 把错误转换为错误消息。过期的超时推进不通知
func sendError(c Conn, err error) {
	var gameErr *apperrors.GameError
	switch {
	case errors.As(err, &gameErr):
		if gameErr.Kind == apperrors.KindStale {
			return
		}
		c.SendMessage(codec.NewErrorMessage(gameErr.Code))
	default:
		c.SendMessage(codec.NewErrorMessageWithText(protocol.ErrCodeUnknown, err.Error()))
	}
}
