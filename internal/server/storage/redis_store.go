package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/notunoflip/notunoflip.github.io/internal/game/engine"
)

const (
	// Redis key 前缀
	matchKeyPrefix = "uno:match:"

	// DefaultMatchExpiration 房间数据过期时间
	DefaultMatchExpiration = 2 * time.Hour
)

// RedisStore Redis 存储，每个房间一个 JSON 值
type RedisStore struct {
	client     redis.UniversalClient
	expiration time.Duration
}

// NewRedisStore 创建 Redis 存储。expiration <= 0 时使用默认值
func NewRedisStore(client redis.UniversalClient, expiration time.Duration) *RedisStore {
	if expiration <= 0 {
		expiration = DefaultMatchExpiration
	}
	return &RedisStore{client: client, expiration: expiration}
}

func matchKey(roomID string) string {
	return matchKeyPrefix + roomID
}

// SaveMatch 保存房间到 Redis，每次保存都会刷新过期时间
func (rs *RedisStore) SaveMatch(ctx context.Context, rec *engine.MatchRecord) error {
	if rec == nil {
		return nil
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("序列化房间数据失败: %w", err)
	}
	return rs.client.Set(ctx, matchKey(rec.RoomID), data, rs.expiration).Err()
}

// LoadMatch 从 Redis 加载房间，不存在时返回 nil, nil
func (rs *RedisStore) LoadMatch(ctx context.Context, roomID string) (*engine.MatchRecord, error) {
	data, err := rs.client.Get(ctx, matchKey(roomID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var rec engine.MatchRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("反序列化房间数据失败: %w", err)
	}
	return &rec, nil
}

// DeleteMatch 从 Redis 删除房间
func (rs *RedisStore) DeleteMatch(ctx context.Context, roomID string) error {
	return rs.client.Del(ctx, matchKey(roomID)).Err()
}

// ListRoomIDs 获取所有房间号
func (rs *RedisStore) ListRoomIDs(ctx context.Context) ([]string, error) {
	var ids []string
	iter := rs.client.Scan(ctx, 0, matchKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, iter.Val()[len(matchKeyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// TTL 房间数据剩余的过期时间
func (rs *RedisStore) TTL(ctx context.Context, roomID string) (time.Duration, error) {
	return rs.client.TTL(ctx, matchKey(roomID)).Result()
}
