package storage

import (
	"context"
	"errors"
	"log"

	"github.com/notunoflip/notunoflip.github.io/internal/game/engine"
	"github.com/notunoflip/notunoflip.github.io/internal/logger"
)

// Lister 可以列出所有房间号的存储
type Lister interface {
	ListRoomIDs(ctx context.Context) ([]string, error)
}

// TieredStore 缓存层 + 持久层。写入先落持久层，读取优先走缓存
type TieredStore struct {
	cache   engine.Store
	durable engine.Store
}

// NewTieredStore 组合两层存储
func NewTieredStore(cache, durable engine.Store) *TieredStore {
	return &TieredStore{cache: cache, durable: durable}
}

// SaveMatch 两层都写，持久层失败时不更新缓存
func (ts *TieredStore) SaveMatch(ctx context.Context, rec *engine.MatchRecord) error {
	if err := ts.durable.SaveMatch(ctx, rec); err != nil {
		// 缓存里可能是旧版本，删掉让下次读取回源
		return errors.Join(err, ts.cache.DeleteMatch(ctx, rec.RoomID))
	}
	return ts.cache.SaveMatch(ctx, rec)
}

// LoadMatch 缓存未命中时回源并回填
func (ts *TieredStore) LoadMatch(ctx context.Context, roomID string) (*engine.MatchRecord, error) {
	rec, err := ts.cache.LoadMatch(ctx, roomID)
	if err != nil {
		logger.LogError("读取缓存房间 %s 失败: %v", roomID, err)
	}
	if rec != nil {
		return rec, nil
	}

	rec, err = ts.durable.LoadMatch(ctx, roomID)
	if err != nil || rec == nil {
		return rec, err
	}
	if err := ts.cache.SaveMatch(ctx, rec); err != nil {
		logger.LogError("回填缓存房间 %s 失败: %v", roomID, err)
	} else {
		log.Printf("🏠 房间 %s 从持久层回填缓存", roomID)
	}
	return rec, nil
}

// DeleteMatch 两层都删
func (ts *TieredStore) DeleteMatch(ctx context.Context, roomID string) error {
	return errors.Join(
		ts.durable.DeleteMatch(ctx, roomID),
		ts.cache.DeleteMatch(ctx, roomID),
	)
}

// ListRoomIDs 以持久层为准
func (ts *TieredStore) ListRoomIDs(ctx context.Context) ([]string, error) {
	if l, ok := ts.durable.(Lister); ok {
		return l.ListRoomIDs(ctx)
	}
	if l, ok := ts.cache.(Lister); ok {
		return l.ListRoomIDs(ctx)
	}
	return nil, nil
}
