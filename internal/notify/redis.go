package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/notunoflip/notunoflip.github.io/internal/game/engine"
	"github.com/notunoflip/notunoflip.github.io/internal/logger"
)

// DefaultChannelPrefix Redis 频道前缀，完整频道为 <prefix><room>
const DefaultChannelPrefix = "uno:events:"

// RedisPublisher 通过 Redis PUBLISH 推送房间事件
type RedisPublisher struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisPublisher 创建发布器。prefix 为空时使用默认前缀
func NewRedisPublisher(client redis.UniversalClient, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

// Channel 房间对应的频道
func (p *RedisPublisher) Channel(roomID string) string {
	return p.prefix + roomID
}

// Publish 发布状态事件
func (p *RedisPublisher) Publish(ctx context.Context, snap engine.Snapshot) error {
	return p.send(ctx, stateEvent(snap))
}

// RoomClosed 发布关闭事件
func (p *RedisPublisher) RoomClosed(roomID string) {
	if err := p.send(context.Background(), closedEvent(roomID)); err != nil {
		logger.LogError("房间 %s 关闭事件发布失败: %v", roomID, err)
	}
}

func (p *RedisPublisher) send(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.Channel(ev.RoomID), data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", ev.RoomID, err)
	}
	return nil
}
