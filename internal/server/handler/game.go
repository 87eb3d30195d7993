package handler

import (
	"context"
	"time"

	"github.com/notunoflip/notunoflip.github.io/internal/game/card"
	"github.com/notunoflip/notunoflip.github.io/internal/game/engine"
	"github.com/notunoflip/notunoflip.github.io/internal/protocol"
	"github.com/notunoflip/notunoflip.github.io/internal/protocol/codec"
)

// handlePing 处理心跳消息
func (h *Handler) handlePing(c Conn, msg *protocol.Message) {
	payload, err := codec.ParsePayload[protocol.PingPayload](msg)
	if err != nil {
		return
	}

	// 立即回复 pong
	c.SendMessage(codec.MustNewMessage(protocol.MsgPong, protocol.PongPayload{
		ClientTimestamp: payload.Timestamp,
		ServerTimestamp: time.Now().UnixMilli(),
	}))
}

// submit 提交命令。成功后的状态由房间推送，这里只回错误
func (h *Handler) submit(c Conn, cmd engine.Command) (engine.Snapshot, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	snap, err := h.rooms.Submit(ctx, c.RoomID(), cmd)
	if err != nil {
		sendError(c, err)
		return snap, false
	}
	return snap, true
}

// handleJoin 加入房间。重复加入不会产生推送，所以直接回一次视图
func (h *Handler) handleJoin(c Conn) {
	snap, ok := h.submit(c, engine.Join{PlayerID: c.PlayerID()})
	if ok {
		c.SendMessage(codec.MustNewMessage(protocol.MsgState, snap.View(c.PlayerID())))
	}
}

// handleStartGame 房主开始游戏
func (h *Handler) handleStartGame(c Conn, msg *protocol.Message) {
	payload, err := codec.ParsePayload[protocol.StartGamePayload](msg)
	if err != nil {
		c.SendMessage(codec.NewErrorMessage(protocol.ErrCodeInvalidMsg))
		return
	}
	h.submit(c, engine.StartGame{HostID: c.PlayerID(), CardsPerPlayer: payload.CardsPerPlayer})
}

// handlePlayCard 处理出牌
func (h *Handler) handlePlayCard(c Conn, msg *protocol.Message) {
	payload, err := codec.ParsePayload[protocol.PlayCardPayload](msg)
	if err != nil || payload.RoomCardID == "" {
		c.SendMessage(codec.NewErrorMessage(protocol.ErrCodeInvalidMsg))
		return
	}
	h.submit(c, engine.PlayCard{
		PlayerID:    c.PlayerID(),
		RoomCardID:  payload.RoomCardID,
		ChosenColor: card.Color(payload.ChosenColor),
	})
}

// handlePreviewDraw 查看牌堆顶朝外的一面
func (h *Handler) handlePreviewDraw(c Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	r, err := h.rooms.Lookup(ctx, c.RoomID())
	if err != nil {
		sendError(c, err)
		return
	}
	preview, err := r.PreviewDrawTop()
	if err != nil {
		sendError(c, err)
		return
	}
	c.SendMessage(codec.MustNewMessage(protocol.MsgPreview, preview))
}

// handleGetState 拉取自己的视图
func (h *Handler) handleGetState(c Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	r, err := h.rooms.Lookup(ctx, c.RoomID())
	if err != nil {
		sendError(c, err)
		return
	}
	c.SendMessage(codec.MustNewMessage(protocol.MsgState, r.Snapshot().View(c.PlayerID())))
}
