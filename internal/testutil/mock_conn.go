//go:build !production

package testutil

import (
	"sync"

	"github.com/notunoflip/notunoflip.github.io/internal/protocol"
)

// MockConn 记录收到消息的连接
type MockConn struct {
	ConnID string
	Player string
	Room   string

	mu       sync.Mutex
	messages []*protocol.Message
	closed   bool
}

// NewMockConn 创建已绑定玩家和房间的连接
func NewMockConn(playerID, roomID string) *MockConn {
	return &MockConn{ConnID: "conn-" + playerID, Player: playerID, Room: roomID}
}

func (c *MockConn) ID() string       { return c.ConnID }
func (c *MockConn) PlayerID() string { return c.Player }
func (c *MockConn) RoomID() string   { return c.Room }

func (c *MockConn) SendMessage(msg *protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

// Messages 返回收到的消息副本
func (c *MockConn) Messages() []*protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*protocol.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Last 最后一条消息，没有时返回 nil
func (c *MockConn) Last() *protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) == 0 {
		return nil
	}
	return c.messages[len(c.messages)-1]
}

func (c *MockConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Closed 是否调用过 Close
func (c *MockConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
