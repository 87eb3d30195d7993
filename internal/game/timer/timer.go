package timer

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/notunoflip/notunoflip.github.io/internal/apperrors"
	"github.com/notunoflip/notunoflip.github.io/internal/game/engine"
	"github.com/notunoflip/notunoflip.github.io/internal/logger"
)

const (
	// defaultRetry 房间繁忙或未到时的最短重试间隔
	defaultRetry = time.Second

	submitTimeout = 5 * time.Second
)

// Submitter 把命令提交给房间
type Submitter interface {
	Submit(ctx context.Context, roomID string, cmd engine.Command) (engine.Snapshot, error)
}

type entry struct {
	turn  uint64
	timer *time.Timer
}

// Scheduler 回合超时调度器。作为 Notifier 观察快照，
// 每个进行中的回合安排一次 AdvanceOnTimeout。
type Scheduler struct {
	timeout time.Duration
	retry   time.Duration
	now     func() time.Time

	mu        sync.Mutex
	submitter Submitter
	timers    map[string]*entry
}

// New 创建调度器，Bind 之前不会提交任何命令
func New(timeout time.Duration) *Scheduler {
	return &Scheduler{
		timeout: timeout,
		retry:   defaultRetry,
		now:     time.Now,
		timers:  make(map[string]*entry),
	}
}

// Bind 设置命令提交方（通常是房间注册表）
func (s *Scheduler) Bind(sub Submitter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitter = sub
}

// Publish 根据快照重置房间的计时器
func (s *Scheduler) Publish(_ context.Context, snap engine.Snapshot) error {
	if snap.Phase != engine.PhaseInProgress {
		s.cancel(snap.RoomID)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.timers[snap.RoomID]; ok {
		if e.turn == snap.Turn {
			return nil
		}
		e.timer.Stop()
	}

	delay := max(s.timeout-s.now().Sub(snap.TurnStartedAt), 0)
	s.schedule(snap.RoomID, snap.Turn, delay)
	return nil
}

// RoomClosed 取消房间的计时器
func (s *Scheduler) RoomClosed(roomID string) {
	s.cancel(roomID)
}

// Pending 当前安排了计时器的房间数
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// schedule 调用方需持有 s.mu
func (s *Scheduler) schedule(roomID string, turn uint64, delay time.Duration) {
	s.timers[roomID] = &entry{
		turn: turn,
		timer: time.AfterFunc(delay, func() {
			s.fire(roomID, turn)
		}),
	}
}

func (s *Scheduler) cancel(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.timers[roomID]; ok {
		e.timer.Stop()
		delete(s.timers, roomID)
	}
}

func (s *Scheduler) fire(roomID string, turn uint64) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r)
		}
	}()

	s.mu.Lock()
	sub := s.submitter
	if e, ok := s.timers[roomID]; ok && e.turn == turn {
		delete(s.timers, roomID)
	}
	s.mu.Unlock()

	if sub == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	snap, err := sub.Submit(ctx, roomID, engine.AdvanceOnTimeout{Turn: turn})
	switch {
	case err == nil:
		log.Printf("⏰ 房间 %s 第 %d 回合超时，已自动推进", roomID, turn)
	case apperrors.KindOf(err) == apperrors.KindStale:
		// 回合已被玩家推进
	case errors.Is(err, apperrors.ErrRoomBusy):
		s.rearm(roomID, turn, s.retry)
	case errors.Is(err, apperrors.ErrTurnNotExpired):
		// 房间记录的回合开始时间比本地晚（如恢复后时钟不一致），按剩余时间重排
		delay := s.retry
		if snap.Turn == turn && !snap.TurnStartedAt.IsZero() {
			delay = max(s.timeout-s.now().Sub(snap.TurnStartedAt), s.retry)
		}
		log.Printf("⏰ 房间 %s 第 %d 回合未到时，%v 后重试", roomID, turn, delay)
		s.rearm(roomID, turn, delay)
	default:
		log.Printf("⏰ 房间 %s 第 %d 回合超时推进失败: %v", roomID, turn, err)
	}
}

// rearm 该房间没有新计时器时，重新安排同一回合
func (s *Scheduler) rearm(roomID string, turn uint64, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.timers[roomID]; !ok {
		s.schedule(roomID, turn, delay)
	}
}
