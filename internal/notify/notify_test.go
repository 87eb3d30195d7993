package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/notunoflip/notunoflip.github.io/internal/game/card"
	"github.com/notunoflip/notunoflip.github.io/internal/game/engine"
	"github.com/notunoflip/notunoflip.github.io/internal/testutil"
)

// startedSnapshot 两人开局后的快照
func startedSnapshot(t *testing.T) engine.Snapshot {
	t.Helper()
	r := engine.New("R1", engine.Options{Seed: func() uint64 { return 7 }})
	t.Cleanup(r.Close)

	ctx := context.Background()
	for _, cmd := range []engine.Command{
		engine.Join{PlayerID: "alice"},
		engine.Join{PlayerID: "bob"},
		engine.StartGame{HostID: "alice"},
	} {
		_, err := r.Submit(ctx, cmd)
		require.NoError(t, err)
	}
	return r.Snapshot()
}

func TestMulti_PublishAll(t *testing.T) {
	t.Parallel()

	a, b := new(testutil.MockNotifier), new(testutil.MockNotifier)
	snap := engine.Snapshot{RoomID: "R1", Version: 3}
	a.On("Publish", mock.Anything, snap).Return(nil).Once()
	b.On("Publish", mock.Anything, snap).Return(nil).Once()

	require.NoError(t, Multi{a, b}.Publish(context.Background(), snap))
	a.AssertExpectations(t)
	b.AssertExpectations(t)
}

func TestMulti_ContinuesAfterFailure(t *testing.T) {
	t.Parallel()

	a, b := new(testutil.MockNotifier), new(testutil.MockNotifier)
	snap := engine.Snapshot{RoomID: "R1"}
	boom := errors.New("boom")
	a.On("Publish", mock.Anything, snap).Return(boom).Once()
	b.On("Publish", mock.Anything, snap).Return(nil).Once()

	err := Multi{a, b}.Publish(context.Background(), snap)
	assert.ErrorIs(t, err, boom)
	b.AssertExpectations(t)
}

func TestMulti_RoomClosed(t *testing.T) {
	t.Parallel()

	a, b := new(testutil.MockNotifier), new(testutil.MockNotifier)
	a.On("RoomClosed", "R1").Once()
	b.On("RoomClosed", "R1").Once()

	Multi{a, b}.RoomClosed("R1")
	a.AssertExpectations(t)
	b.AssertExpectations(t)
}

func TestStateEvent_HidesHands(t *testing.T) {
	t.Parallel()

	snap := startedSnapshot(t)
	ev := stateEvent(snap)

	assert.Equal(t, EventState, ev.Type)
	assert.Equal(t, "R1", ev.RoomID)
	assert.Equal(t, snap.Version, ev.Version)
	require.NotNil(t, ev.View)
	assert.Empty(t, ev.View.Hand)
	require.Len(t, ev.View.Seats, 2)

	require.Equal(t, card.SideLight, snap.CurrentSide)
	for _, seat := range ev.View.Seats {
		assert.Equal(t, 7, seat.CardCount)
		for _, c := range seat.Cards {
			assert.Equal(t, card.ColorUnknown, c.Light.Color, "light face is active and must be masked")
		}
	}
}

// fakeConn 记录发布的消息
type fakeConn struct {
	mu   sync.Mutex
	msgs map[string][][]byte
	err  error
}

func (c *fakeConn) Publish(subj string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.msgs == nil {
		c.msgs = make(map[string][][]byte)
	}
	c.msgs[subj] = append(c.msgs[subj], data)
	return nil
}
