package handler

import (
	"context"

	"github.com/notunoflip/notunoflip.github.io/internal/protocol"
	"github.com/notunoflip/notunoflip.github.io/internal/protocol/codec"
	"github.com/notunoflip/notunoflip.github.io/internal/server/storage"
)

// handleGetLeaderboard 获取排行榜
func (h *Handler) handleGetLeaderboard(c Conn, msg *protocol.Message) {
	payload, err := codec.ParsePayload[protocol.GetLeaderboardPayload](msg)
	if err != nil {
		c.SendMessage(codec.NewErrorMessage(protocol.ErrCodeInvalidMsg))
		return
	}
	if h.leaderboard == nil {
		c.SendMessage(codec.MustNewMessage(protocol.MsgLeaderboardResult, []storage.LeaderboardEntry{}))
		return
	}

	entries, err := h.leaderboard.GetLeaderboard(context.Background(), payload.Limit)
	if err != nil {
		c.SendMessage(codec.NewErrorMessageWithText(protocol.ErrCodeUnknown, "获取排行榜失败"))
		return
	}
	if entries == nil {
		entries = []storage.LeaderboardEntry{}
	}
	c.SendMessage(codec.MustNewMessage(protocol.MsgLeaderboardResult, entries))
}
