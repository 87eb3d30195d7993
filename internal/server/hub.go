package server

import (
	"context"
	"log"
	"sync"

	"github.com/notunoflip/notunoflip.github.io/internal/game/engine"
	"github.com/notunoflip/notunoflip.github.io/internal/protocol"
	"github.com/notunoflip/notunoflip.github.io/internal/protocol/codec"
)

// Subscriber 订阅某个房间推送的连接
type Subscriber interface {
	ID() string
	PlayerID() string // 空表示旁观
	RoomID() string
	SendMessage(msg *protocol.Message)
	Close()
}

// Hub 本节点的房间订阅表。作为 Notifier 把每个快照按玩家视角推给订阅方
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Subscriber // roomID -> connID -> 订阅方
}

// NewHub 创建订阅表
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[string]Subscriber)}
}

// Register 登记连接
func (h *Hub) Register(s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.rooms[s.RoomID()]
	if !ok {
		subs = make(map[string]Subscriber)
		h.rooms[s.RoomID()] = subs
	}
	subs[s.ID()] = s
}

// Unregister 注销连接，房间没有订阅方时删除
func (h *Hub) Unregister(s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.rooms[s.RoomID()]
	if !ok {
		return
	}
	delete(subs, s.ID())
	if len(subs) == 0 {
		delete(h.rooms, s.RoomID())
	}
}

// subscribers 拷贝一份订阅方，发送时不持锁
func (h *Hub) subscribers(roomID string) []Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := h.rooms[roomID]
	out := make([]Subscriber, 0, len(subs))
	for _, s := range subs {
		out = append(out, s)
	}
	return out
}

// Publish 每个订阅方只收到自己的视图
func (h *Hub) Publish(_ context.Context, snap engine.Snapshot) error {
	views := make(map[string]*protocol.Message)
	for _, s := range h.subscribers(snap.RoomID) {
		msg, ok := views[s.PlayerID()]
		if !ok {
			msg = codec.MustNewMessage(protocol.MsgState, snap.View(s.PlayerID()))
			views[s.PlayerID()] = msg
		}
		s.SendMessage(msg)
	}
	return nil
}

// RoomClosed 通知并断开房间内所有连接
func (h *Hub) RoomClosed(roomID string) {
	h.mu.Lock()
	subs := h.rooms[roomID]
	delete(h.rooms, roomID)
	h.mu.Unlock()

	if len(subs) == 0 {
		return
	}
	msg := codec.MustNewMessage(protocol.MsgRoomClosed, protocol.RoomClosedPayload{RoomID: roomID})
	for _, s := range subs {
		s.SendMessage(msg)
		s.Close()
	}
	log.Printf("🏠 房间 %s 已关闭，断开 %d 个连接", roomID, len(subs))
}

// Broadcast 发给所有连接
func (h *Hub) Broadcast(msg *protocol.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, subs := range h.rooms {
		for _, s := range subs {
			s.SendMessage(msg)
		}
	}
}

// OnlineCount 在线连接数
func (h *Hub) OnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, subs := range h.rooms {
		n += len(subs)
	}
	return n
}

// CloseAll 关闭所有连接
func (h *Hub) CloseAll() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[string]map[string]Subscriber)
	h.mu.Unlock()

	for _, subs := range rooms {
		for _, s := range subs {
			s.Close()
		}
	}
}
