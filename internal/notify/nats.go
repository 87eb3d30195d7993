package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/notunoflip/notunoflip.github.io/internal/game/engine"
	"github.com/notunoflip/notunoflip.github.io/internal/logger"
)

// DefaultSubjectPrefix 房间事件的 subject 前缀，完整 subject 为 <prefix>.<room>
const DefaultSubjectPrefix = "uno.room"

// NATSConfig NATS 连接配置
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

// ConnectNATS 建立 NATS 连接
func ConnectNATS(cfg NATSConfig) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("📮 与 NATS 断开连接: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("📮 已重连 NATS: %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Println("📮 NATS 连接已关闭")
		}),
		nats.Timeout(10 * time.Second),
	}
	return nats.Connect(cfg.URL, opts...)
}

// natsConn *nats.Conn 满足的发布接口
type natsConn interface {
	Publish(subj string, data []byte) error
}

// NATSPublisher 把房间事件发布到 NATS，供其他节点订阅
type NATSPublisher struct {
	nc     natsConn
	prefix string
}

// NewNATSPublisher 创建发布器。prefix 为空时使用默认前缀
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	return newNATSPublisher(nc, prefix)
}

func newNATSPublisher(nc natsConn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{nc: nc, prefix: prefix}
}

// Subject 房间对应的 subject
func (p *NATSPublisher) Subject(roomID string) string {
	return p.prefix + "." + roomID
}

// Publish 发布状态事件
func (p *NATSPublisher) Publish(_ context.Context, snap engine.Snapshot) error {
	return p.send(stateEvent(snap))
}

// RoomClosed 发布关闭事件
func (p *NATSPublisher) RoomClosed(roomID string) {
	if err := p.send(closedEvent(roomID)); err != nil {
		logger.LogError("房间 %s 关闭事件发布失败: %v", roomID, err)
	}
}

func (p *NATSPublisher) send(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.nc.Publish(p.Subject(ev.RoomID), data); err != nil {
		return fmt.Errorf("nats publish %s: %w", ev.RoomID, err)
	}
	return nil
}
