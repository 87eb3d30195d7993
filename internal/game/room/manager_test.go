package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/notunoflip/notunoflip.github.io/internal/apperrors"
	"github.com/notunoflip/notunoflip.github.io/internal/game/card"
	"github.com/notunoflip/notunoflip.github.io/internal/game/engine"
	"github.com/notunoflip/notunoflip.github.io/internal/testutil"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(t *testing.T, opts engine.Options) *Registry {
	t.Helper()
	rg := NewRegistry(opts, time.Hour)
	t.Cleanup(rg.Shutdown)
	return rg
}

func lobbyRecord(roomID string, players ...string) *engine.MatchRecord {
	return &engine.MatchRecord{
		RoomID:  roomID,
		Phase:   engine.PhaseLobby,
		HostID:  players[0],
		Players: players,
		Side:    card.SideLight,
	}
}

func TestRegistry_JoinCreatesRoom(t *testing.T) {
	t.Parallel()

	rg := newTestRegistry(t, engine.DefaultOptions())
	ctx := context.Background()

	snap, err := rg.Submit(ctx, "r1", engine.Join{PlayerID: "A"})
	require.NoError(t, err)
	assert.Equal(t, "r1", snap.RoomID)
	assert.Equal(t, []string{"A"}, snap.Players)

	_, err = rg.Submit(ctx, "missing", engine.DrawCard{PlayerID: "A"})
	assert.ErrorIs(t, err, apperrors.ErrRoomNotFound)

	assert.Equal(t, []string{"r1"}, rg.RoomIDs())
	assert.NotNil(t, rg.Get("r1"))
	assert.Nil(t, rg.Get("missing"))
}

func TestRegistry_LookupRestoresFromStore(t *testing.T) {
	t.Parallel()

	store := new(testutil.MockStore)
	store.On("LoadMatch", mock.Anything, "r2").Return(lobbyRecord("r2", "A", "B"), nil).Once()
	notifier := new(testutil.MockNotifier)
	notifier.On("Publish", mock.Anything, mock.AnythingOfType("engine.Snapshot")).Return(nil).Once()
	notifier.On("RoomClosed", "r2").Return()

	opts := engine.DefaultOptions()
	opts.Store = store
	opts.Notifier = notifier
	rg := newTestRegistry(t, opts)

	r, err := rg.Lookup(context.Background(), "r2")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, r.Snapshot().Players)
	assert.Equal(t, "A", r.Snapshot().HostID)

	again, err := rg.Lookup(context.Background(), "r2")
	require.NoError(t, err)
	assert.Same(t, r, again)

	store.AssertNumberOfCalls(t, "LoadMatch", 1)
	notifier.AssertNumberOfCalls(t, "Publish", 1)
}

func TestRegistry_StoreErrorIsNotNotFound(t *testing.T) {
	t.Parallel()

	store := new(testutil.MockStore)
	store.On("LoadMatch", mock.Anything, "r3").Return(nil, assert.AnError)

	opts := engine.DefaultOptions()
	opts.Store = store
	rg := newTestRegistry(t, opts)

	_, err := rg.GetOrCreate(context.Background(), "r3")
	assert.ErrorIs(t, err, assert.AnError)
	assert.Nil(t, rg.Get("r3"))
}

func TestRegistry_CloseRoom(t *testing.T) {
	t.Parallel()

	store := new(testutil.MockStore)
	store.On("LoadMatch", mock.Anything, "r4").Return(nil, nil)
	store.On("SaveMatch", mock.Anything, mock.Anything).Return(nil)
	store.On("DeleteMatch", mock.Anything, "r4").Return(nil)

	opts := engine.DefaultOptions()
	opts.Store = store
	rg := newTestRegistry(t, opts)
	ctx := context.Background()

	_, err := rg.Submit(ctx, "r4", engine.Join{PlayerID: "A"})
	require.NoError(t, err)
	r := rg.Get("r4")
	require.NotNil(t, r)

	require.NoError(t, rg.CloseRoom(ctx, "r4"))
	assert.Nil(t, rg.Get("r4"))
	_, err = r.Submit(ctx, engine.Join{PlayerID: "B"})
	assert.ErrorIs(t, err, apperrors.ErrRoomClosed)

	assert.ErrorIs(t, rg.CloseRoom(ctx, "r4"), apperrors.ErrRoomNotFound)
	store.AssertCalled(t, "DeleteMatch", mock.Anything, "r4")
}

func TestRegistry_Cleanup(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	opts := engine.DefaultOptions()
	opts.Clock = clock
	rg := newTestRegistry(t, opts)
	ctx := context.Background()

	_, err := rg.Submit(ctx, "idle-lobby", engine.Join{PlayerID: "A"})
	require.NoError(t, err)
	_, err = rg.GetOrCreate(ctx, "empty")
	require.NoError(t, err)

	for _, p := range []string{"A", "B"} {
		_, err = rg.Submit(ctx, "playing", engine.Join{PlayerID: p})
		require.NoError(t, err)
	}
	_, err = rg.Submit(ctx, "playing", engine.StartGame{HostID: "A"})
	require.NoError(t, err)

	// 未超时时不清理
	rg.cleanup(ctx)
	assert.Len(t, rg.RoomIDs(), 3)

	clock.Advance(2 * time.Hour)
	rg.cleanup(ctx)

	assert.Equal(t, []string{"playing"}, rg.RoomIDs())
	assert.Equal(t, 1, rg.GetActiveGamesCount())
}

func TestRegistry_RestoreAll(t *testing.T) {
	t.Parallel()

	store := new(testutil.MockStore)
	store.On("ListRoomIDs", mock.Anything).Return([]string{"a", "b"}, nil)
	store.On("LoadMatch", mock.Anything, "a").Return(lobbyRecord("a", "P"), nil)
	store.On("LoadMatch", mock.Anything, "b").Return(nil, nil)

	opts := engine.DefaultOptions()
	opts.Store = store
	rg := newTestRegistry(t, opts)

	n, err := rg.RestoreAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"a"}, rg.RoomIDs())
}

func TestRegistry_ConcurrentGetOrCreate(t *testing.T) {
	t.Parallel()

	rg := newTestRegistry(t, engine.DefaultOptions())

	const n = 20
	rooms := make([]*engine.Room, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := rg.GetOrCreate(context.Background(), "shared")
			assert.NoError(t, err)
			rooms[i] = r
		}()
	}
	wg.Wait()

	for _, r := range rooms {
		assert.Same(t, rooms[0], r)
	}
}

// gatedStore 内存存储，可以让 LoadMatch 和 DeleteMatch 停在中途
type gatedStore struct {
	mu  sync.Mutex
	rec *engine.MatchRecord

	loadGate   chan struct{}
	loadEnter  chan struct{}
	deleteGate chan struct{}
	deleteIn   chan struct{}
}

func (s *gatedStore) SaveMatch(_ context.Context, rec *engine.MatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = rec
	return nil
}

func (s *gatedStore) LoadMatch(context.Context, string) (*engine.MatchRecord, error) {
	s.mu.Lock()
	rec, gate, enter := s.rec, s.loadGate, s.loadEnter
	s.loadGate, s.loadEnter = nil, nil
	s.mu.Unlock()
	if gate != nil {
		close(enter)
		<-gate
	}
	return rec, nil
}

func (s *gatedStore) DeleteMatch(context.Context, string) error {
	s.mu.Lock()
	gate, in := s.deleteGate, s.deleteIn
	s.mu.Unlock()
	if gate != nil {
		close(in)
		<-gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = nil
	return nil
}

func (s *gatedStore) stored() *engine.MatchRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec
}

func TestRegistry_CommandsDuringCloseDoNotRestore(t *testing.T) {
	t.Parallel()

	store := &gatedStore{
		rec:        lobbyRecord("r5", "A", "B"),
		deleteGate: make(chan struct{}),
		deleteIn:   make(chan struct{}),
	}
	opts := engine.DefaultOptions()
	opts.Store = store
	rg := newTestRegistry(t, opts)
	ctx := context.Background()

	_, err := rg.Lookup(ctx, "r5")
	require.NoError(t, err)

	closed := make(chan error, 1)
	go func() { closed <- rg.CloseRoom(ctx, "r5") }()
	<-store.deleteIn

	_, err = rg.Submit(ctx, "r5", engine.Leave{PlayerID: "B"})
	assert.ErrorIs(t, err, apperrors.ErrRoomNotFound)
	_, err = rg.Submit(ctx, "r5", engine.Join{PlayerID: "C"})
	assert.ErrorIs(t, err, apperrors.ErrRoomNotFound)

	close(store.deleteGate)
	require.NoError(t, <-closed)
	assert.Nil(t, rg.Get("r5"))
	assert.Nil(t, store.stored())

	// 关闭结束后可以用同一房间号重新开房
	snap, err := rg.Submit(ctx, "r5", engine.Join{PlayerID: "C"})
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, snap.Players)
}

func TestRegistry_RestoreRacingCloseIsDropped(t *testing.T) {
	t.Parallel()

	store := &gatedStore{
		rec:       lobbyRecord("r6", "A"),
		loadGate:  make(chan struct{}),
		loadEnter: make(chan struct{}),
	}
	gate, enter := store.loadGate, store.loadEnter
	notifier := new(testutil.MockNotifier)

	opts := engine.DefaultOptions()
	opts.Store = store
	opts.Notifier = notifier
	rg := newTestRegistry(t, opts)
	ctx := context.Background()

	looked := make(chan error, 1)
	go func() {
		_, err := rg.Lookup(ctx, "r6")
		looked <- err
	}()
	<-enter

	// 读取已经拿到旧记录，此时房间被关闭
	assert.ErrorIs(t, rg.CloseRoom(ctx, "r6"), apperrors.ErrRoomNotFound)
	close(gate)

	assert.ErrorIs(t, <-looked, apperrors.ErrRoomNotFound)
	assert.Nil(t, rg.Get("r6"))
	assert.Nil(t, store.stored())
	notifier.AssertNotCalled(t, "RoomClosed", "r6")
	notifier.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}
