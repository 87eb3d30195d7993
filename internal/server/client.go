package server

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/notunoflip/notunoflip.github.io/internal/protocol"
	"github.com/notunoflip/notunoflip.github.io/internal/protocol/codec"
)

const (
	// 写入超时
	writeWait = 10 * time.Second

	// 读取超时（pong 等待时间）
	pongWait = 60 * time.Second

	// ping 发送间隔（必须小于 pongWait）
	pingPeriod = (pongWait * 9) / 10

	// 消息最大大小
	maxMessageSize = 4096

	// 多次超速后断开
	maxRateWarnings = 5
)

// Client 订阅一个房间的 WebSocket 连接
type Client struct {
	id       string
	playerID string
	roomID   string
	ip       string

	server  *Server
	conn    *websocket.Conn
	send    chan []byte
	release func() // 归还连接名额

	mu     sync.RWMutex
	closed bool
}

// NewClient 创建连接
func NewClient(s *Server, conn *websocket.Conn, playerID, roomID, ip string) *Client {
	return &Client{
		id:       uuid.NewString(),
		playerID: playerID,
		roomID:   roomID,
		ip:       ip,
		server:   s,
		conn:     conn,
		send:     make(chan []byte, 256),
		release:  func() {},
	}
}

func (c *Client) ID() string       { return c.id }
func (c *Client) PlayerID() string { return c.playerID }
func (c *Client) RoomID() string   { return c.roomID }

// ReadPump 从 WebSocket 读取消息
func (c *Client) ReadPump() {
	defer func() {
		c.handleDisconnect()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("读取错误: %v", err)
			}
			return
		}

		allowed, warning := c.server.messageLimiter.AllowMessage(c.id)
		if !allowed {
			c.SendMessage(codec.NewErrorMessageWithText(protocol.ErrCodeRateLimit, "消息发送过于频繁"))
			if c.server.messageLimiter.WarningCount(c.id) > maxRateWarnings {
				log.Printf("🚫 玩家 %s (IP: %s) 多次超速，断开连接", c.playerID, c.ip)
				return
			}
			continue
		}
		if warning {
			c.SendMessage(codec.NewErrorMessageWithText(protocol.ErrCodeRateLimit, "请求过于频繁，请放慢速度"))
		}

		msg, err := codec.Decode(data)
		if err != nil {
			c.SendMessage(codec.NewErrorMessage(protocol.ErrCodeInvalidMsg))
			continue
		}
		c.server.handler.Handle(c, msg)
		codec.PutMessage(msg)
	}
}

// WritePump 向 WebSocket 写入消息
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 通道已关闭
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage 发送消息。缓冲区满时断开这个慢连接
func (c *Client) SendMessage(msg *protocol.Message) {
	data, err := codec.Encode(msg)
	if err != nil {
		log.Printf("消息编码错误: %v", err)
		return
	}

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	select {
	case c.send <- data:
		c.mu.RUnlock()
	default:
		c.mu.RUnlock()
		log.Printf("🚫 连接 %s 发送缓冲区已满", c.id)
		c.Close()
	}
}

// Close 关闭发送通道，WritePump 随后关闭连接。可重复调用
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// handleDisconnect 注销订阅并归还名额。房间里的座位保留
func (c *Client) handleDisconnect() {
	c.server.hub.Unregister(c)
	c.server.messageLimiter.Remove(c.id)
	c.Close()
	c.release()
	log.Printf("❌ 玩家 %s 断开房间 %s", c.playerID, c.roomID)
}
