package room

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/notunoflip/notunoflip.github.io/internal/apperrors"
	"github.com/notunoflip/notunoflip.github.io/internal/game/engine"
	"github.com/notunoflip/notunoflip.github.io/internal/logger"
)

// cleanupInterval 清理协程的执行间隔
const cleanupInterval = 1 * time.Minute

// Lister 可以列出所有已保存房间的存储
type Lister interface {
	ListRoomIDs(ctx context.Context) ([]string, error)
}

// Registry 房间号到房间引擎的映射。首次 Join 时创建，关闭时移除
type Registry struct {
	opts        engine.Options
	roomTimeout time.Duration
	now         func() time.Time

	rooms map[string]*engine.Room
	mu    sync.RWMutex

	// 正在关闭的房间，关闭期间不恢复也不新建
	closing map[string]int
	// 每次 CloseRoom 加一，恢复时用来发现并发关闭
	closeSeq uint64

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRegistry 创建房间注册表并启动清理协程
func NewRegistry(opts engine.Options, roomTimeout time.Duration) *Registry {
	rg := &Registry{
		opts:        opts,
		roomTimeout: roomTimeout,
		now:         time.Now,
		rooms:       make(map[string]*engine.Room),
		closing:     make(map[string]int),
		stop:        make(chan struct{}),
	}
	if opts.Clock != nil {
		rg.now = opts.Clock.Now
	}

	// 启动房间清理协程
	go rg.cleanupLoop()

	return rg
}

// Get 获取内存中的房间
func (rg *Registry) Get(roomID string) *engine.Room {
	rg.mu.RLock()
	defer rg.mu.RUnlock()
	return rg.rooms[roomID]
}

// Lookup 获取房间，内存中没有时尝试从存储恢复
func (rg *Registry) Lookup(ctx context.Context, roomID string) (*engine.Room, error) {
	for {
		if r := rg.Get(roomID); r != nil {
			return r, nil
		}
		if rg.opts.Store == nil {
			return nil, apperrors.ErrRoomNotFound
		}

		rg.mu.RLock()
		closing := rg.closing[roomID] > 0
		seq := rg.closeSeq
		rg.mu.RUnlock()
		if closing {
			return nil, apperrors.ErrRoomNotFound
		}

		rec, err := rg.opts.Store.LoadMatch(ctx, roomID)
		if err != nil {
			return nil, fmt.Errorf("load room %s: %w", roomID, err)
		}
		if rec == nil {
			return nil, apperrors.ErrRoomNotFound
		}

		restored, err := engine.Restore(rec, rg.opts)
		if err != nil {
			return nil, err
		}
		if r, ok := rg.register(ctx, restored, seq); ok {
			return r, nil
		}
		// 读取期间有房间被关闭，读到的记录可能已删除，重新读
	}
}

// GetOrCreate 获取房间，不存在时创建新的大厅
func (rg *Registry) GetOrCreate(ctx context.Context, roomID string) (*engine.Room, error) {
	r, err := rg.Lookup(ctx, roomID)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, apperrors.ErrRoomNotFound) {
		return nil, err
	}

	rg.mu.Lock()
	defer rg.mu.Unlock()
	if existing, ok := rg.rooms[roomID]; ok {
		return existing, nil
	}
	if rg.closing[roomID] > 0 {
		return nil, apperrors.ErrRoomNotFound
	}
	r = engine.New(roomID, rg.opts)
	rg.rooms[roomID] = r
	log.Printf("🏠 创建房间 %s", roomID)
	return r, nil
}

// register 登记恢复出来的房间。并发恢复同一个房间时保留先登记的；
// 读取之后发生过关闭时丢弃并返回 false
func (rg *Registry) register(ctx context.Context, r *engine.Room, seq uint64) (*engine.Room, bool) {
	rg.mu.Lock()
	if existing, ok := rg.rooms[r.ID()]; ok {
		rg.mu.Unlock()
		r.Discard()
		return existing, true
	}
	if rg.closeSeq != seq {
		rg.mu.Unlock()
		r.Discard()
		return nil, false
	}
	rg.rooms[r.ID()] = r
	rg.mu.Unlock()

	// 重新推送一次快照，让订阅方（计时器等）接上恢复的状态
	if rg.opts.Notifier != nil {
		if err := rg.opts.Notifier.Publish(ctx, r.Snapshot()); err != nil {
			logger.LogError("房间 %s 恢复后推送失败: %v", r.ID(), err)
		}
	}
	return r, true
}

// Submit 把命令路由到房间。Join 会按需创建房间
func (rg *Registry) Submit(ctx context.Context, roomID string, cmd engine.Command) (engine.Snapshot, error) {
	var (
		r   *engine.Room
		err error
	)
	if _, ok := cmd.(engine.Join); ok {
		r, err = rg.GetOrCreate(ctx, roomID)
	} else {
		r, err = rg.Lookup(ctx, roomID)
	}
	if err != nil {
		return engine.Snapshot{}, err
	}
	return r.Submit(ctx, cmd)
}

// CloseRoom 关闭房间并删除持久化数据。删除完成前同一房间号不能被恢复或新建
func (rg *Registry) CloseRoom(ctx context.Context, roomID string) error {
	rg.mu.Lock()
	r, ok := rg.rooms[roomID]
	delete(rg.rooms, roomID)
	rg.closing[roomID]++
	rg.closeSeq++
	rg.mu.Unlock()

	defer func() {
		rg.mu.Lock()
		if rg.closing[roomID]--; rg.closing[roomID] == 0 {
			delete(rg.closing, roomID)
		}
		rg.mu.Unlock()
	}()

	if ok {
		r.Close()
	}
	if rg.opts.Store != nil {
		if err := rg.opts.Store.DeleteMatch(ctx, roomID); err != nil {
			return fmt.Errorf("delete room %s: %w", roomID, err)
		}
	}
	if !ok {
		return apperrors.ErrRoomNotFound
	}
	return nil
}

// RestoreAll 启动时恢复存储中的全部房间
func (rg *Registry) RestoreAll(ctx context.Context) (int, error) {
	lister, ok := rg.opts.Store.(Lister)
	if !ok {
		return 0, nil
	}
	ids, err := lister.ListRoomIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list rooms: %w", err)
	}

	restored := 0
	for _, id := range ids {
		if _, err := rg.Lookup(ctx, id); err != nil {
			logger.LogError("恢复房间 %s 失败: %v", id, err)
			continue
		}
		restored++
	}
	log.Printf("🏠 已恢复 %d/%d 个房间", restored, len(ids))
	return restored, nil
}

// RoomIDs 当前内存中的房间号，按字典序
func (rg *Registry) RoomIDs() []string {
	rg.mu.RLock()
	defer rg.mu.RUnlock()
	ids := make([]string, 0, len(rg.rooms))
	for id := range rg.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetActiveGamesCount 获取进行中的游戏数量
func (rg *Registry) GetActiveGamesCount() int {
	rg.mu.RLock()
	defer rg.mu.RUnlock()

	count := 0
	for _, r := range rg.rooms {
		if r.Snapshot().Phase == engine.PhaseInProgress {
			count++
		}
	}
	return count
}

// Shutdown 停止清理协程并关闭所有房间，保留持久化数据
func (rg *Registry) Shutdown() {
	rg.stopOnce.Do(func() { close(rg.stop) })

	rg.mu.Lock()
	rooms := rg.rooms
	rg.rooms = make(map[string]*engine.Room)
	rg.mu.Unlock()

	for _, r := range rooms {
		r.Close()
	}
}

// cleanupLoop 定期清理超时房间
func (rg *Registry) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rg.stop:
			return
		case <-ticker.C:
			rg.cleanup(context.Background())
		}
	}
}

// cleanup 清理超时房间：空房间、长时间无人开始的大厅、已结束的对局
func (rg *Registry) cleanup(ctx context.Context) {
	now := rg.now()

	var expired []string
	rg.mu.RLock()
	for id, r := range rg.rooms {
		snap := r.Snapshot()
		idle := now.Sub(snap.UpdatedAt) > rg.roomTimeout
		switch {
		case snap.Phase == engine.PhaseLobby && len(snap.Players) == 0 && now.Sub(snap.UpdatedAt) > cleanupInterval:
			expired = append(expired, id)
		case snap.Phase != engine.PhaseInProgress && idle:
			expired = append(expired, id)
		}
	}
	rg.mu.RUnlock()

	for _, id := range expired {
		if err := rg.CloseRoom(ctx, id); err != nil && !errors.Is(err, apperrors.ErrRoomNotFound) {
			logger.LogError("清理房间 %s 失败: %v", id, err)
			continue
		}
		log.Printf("🏠 房间 %s 超时已清理", id)
	}
}
