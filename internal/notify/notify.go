// Package notify 把房间快照扇出到多个订阅方
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/notunoflip/notunoflip.github.io/internal/game/engine"
)

// 事件类型
const (
	EventState  = "state"
	EventClosed = "closed"
)

// Event 发往消息总线的事件。只携带旁观视图，不泄露手牌
type Event struct {
	Type      string             `json:"type"`
	RoomID    string             `json:"room_id"`
	Version   uint64             `json:"version,omitempty"`
	View      *engine.PlayerView `json:"view,omitempty"`
	Timestamp int64              `json:"timestamp"`
}

func stateEvent(snap engine.Snapshot) Event {
	view := snap.View("")
	return Event{
		Type:      EventState,
		RoomID:    snap.RoomID,
		Version:   snap.Version,
		View:      &view,
		Timestamp: time.Now().UnixMilli(),
	}
}

func closedEvent(roomID string) Event {
	return Event{Type: EventClosed, RoomID: roomID, Timestamp: time.Now().UnixMilli()}
}

// Multi 依次通知所有订阅方，单个失败不影响其他
type Multi []engine.Notifier

// Publish 返回所有失败的合并错误
func (m Multi) Publish(ctx context.Context, snap engine.Snapshot) error {
	var errs []error
	for _, n := range m {
		if err := n.Publish(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RoomClosed 转发给所有订阅方
func (m Multi) RoomClosed(roomID string) {
	for _, n := range m {
		n.RoomClosed(roomID)
	}
}
