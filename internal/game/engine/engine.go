package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/notunoflip/notunoflip.github.io/internal/apperrors"
	"github.com/notunoflip/notunoflip.github.io/internal/logger"
)

type request struct {
	cmd   Command
	reply chan result
}

type result struct {
	snap Snapshot
	err  error
}

// Room 单个房间的引擎。所有命令进入有界队列，由一个协程按到达顺序执行
type Room struct {
	id    string
	opts  Options
	state *matchState // 只由 run 协程访问

	queue     chan request
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	latest atomic.Pointer[Snapshot]
}

// New 创建大厅阶段的房间并启动处理协程
func New(id string, opts Options) *Room {
	opts = opts.withDefaults()
	return start(id, opts, newMatchState(opts.Clock.Now()))
}

// Restore 从持久化数据恢复房间
func Restore(rec *MatchRecord, opts Options) (*Room, error) {
	if rec == nil {
		return nil, errors.New("空的房间记录")
	}
	st, err := stateFromRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("restore room %s: %w", rec.RoomID, err)
	}
	log.Printf("🏠 房间 %s 已从存储恢复 (阶段 %s, 版本 %d)", rec.RoomID, st.phase, st.version)
	return start(rec.RoomID, opts.withDefaults(), st), nil
}

func start(id string, opts Options, st *matchState) *Room {
	r := &Room{
		id:      id,
		opts:    opts,
		state:   st,
		queue:   make(chan request, opts.QueueDepth),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	snap := st.snapshot(id, "")
	r.latest.Store(&snap)

	go r.run()
	return r
}

// ID 房间号
func (r *Room) ID() string { return r.id }

// Snapshot 最近一次成功命令之后的快照
func (r *Room) Snapshot() Snapshot {
	return *r.latest.Load()
}

// PreviewDrawTop 只读，返回牌堆顶朝外的一面
func (r *Room) PreviewDrawTop() (DrawPreview, error) {
	snap := r.Snapshot()
	if !snap.Started() {
		return DrawPreview{}, apperrors.ErrGameNotStart
	}
	p, ok := snap.PreviewDrawTop()
	if !ok {
		return DrawPreview{}, apperrors.ErrDeckExhausted
	}
	return p, nil
}

// Submit 提交命令并等待结果。队列已满时立即返回 ErrRoomBusy。
// ctx 取消只影响等待，已入队的命令仍会执行。
func (r *Room) Submit(ctx context.Context, cmd Command) (Snapshot, error) {
	select {
	case <-r.done:
		return Snapshot{}, apperrors.ErrRoomClosed
	default:
	}

	req := request{cmd: cmd, reply: make(chan result, 1)}
	select {
	case r.queue <- req:
	default:
		log.Printf("🚫 房间 %s 队列已满，拒绝 %s", r.id, cmd.Name())
		return Snapshot{}, apperrors.ErrRoomBusy
	}

	select {
	case res := <-req.reply:
		return res.snap, res.err
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-r.done:
		return Snapshot{}, apperrors.ErrRoomClosed
	}
}

// Close 停止处理协程并通知订阅方。可重复调用
func (r *Room) Close() { r.stop(true) }

// Discard 停止处理协程但不通知订阅方，用于丢弃多余的恢复副本
func (r *Room) Discard() { r.stop(false) }

func (r *Room) stop(notify bool) {
	r.closeOnce.Do(func() {
		close(r.done)
		<-r.stopped
		if notify {
			r.opts.Notifier.RoomClosed(r.id)
			log.Printf("🏠 房间 %s 已关闭", r.id)
		}
	})
}

// Done 房间关闭时关闭
func (r *Room) Done() <-chan struct{} {
	return r.done
}

func (r *Room) run() {
	defer close(r.stopped)
	for {
		select {
		case <-r.done:
			return
		case req := <-r.queue:
			req.reply <- r.handle(req.cmd)
		}
	}
}

// handle 在副本上执行命令，成功后提交、持久化并通知
func (r *Room) handle(cmd Command) (res result) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.LogPanic(rec)
			res = result{snap: r.Snapshot(), err: fmt.Errorf("房间 %s 处理 %s 时崩溃: %v", r.id, cmd.Name(), rec)}
		}
	}()

	now := r.opts.Clock.Now()
	next := r.state.clone()
	if err := r.apply(next, cmd, now); err != nil {
		if errors.Is(err, errNoChange) {
			return result{snap: r.Snapshot()}
		}
		r.logRejected(cmd, err)
		return result{snap: r.Snapshot(), err: err}
	}

	next.version++
	next.updatedAt = now
	r.state = next

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := r.opts.Store.SaveMatch(ctx, next.record(r.id)); err != nil {
		logger.LogError("房间 %s 保存失败 (版本 %d): %v", r.id, next.version, err)
	}

	snap := next.snapshot(r.id, cmd.Name())
	r.latest.Store(&snap)

	if err := r.opts.Notifier.Publish(ctx, snap); err != nil {
		logger.LogError("房间 %s 推送失败 (版本 %d): %v", r.id, snap.Version, err)
	}
	return result{snap: snap}
}

func (r *Room) logRejected(cmd Command, err error) {
	switch apperrors.KindOf(err) {
	case apperrors.KindStale:
		log.Printf("⏰ 房间 %s 忽略过期的超时推进", r.id)
	case apperrors.KindValidation, apperrors.KindPrecondition, apperrors.KindResource:
		log.Printf("🚫 房间 %s 拒绝 %s: %v", r.id, cmd.Name(), err)
	default:
		logger.LogError("房间 %s 执行 %s 失败: %v", r.id, cmd.Name(), err)
	}
}
