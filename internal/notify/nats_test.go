package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNATSPublisher_Subject(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "uno.room.R1", newNATSPublisher(&fakeConn{}, "").Subject("R1"))
	assert.Equal(t, "game.R1", newNATSPublisher(&fakeConn{}, "game").Subject("R1"))
}

func TestNATSPublisher_PublishState(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	p := newNATSPublisher(conn, "")
	snap := startedSnapshot(t)

	require.NoError(t, p.Publish(context.Background(), snap))
	require.Len(t, conn.msgs["uno.room.R1"], 1)

	var ev Event
	require.NoError(t, json.Unmarshal(conn.msgs["uno.room.R1"][0], &ev))
	assert.Equal(t, EventState, ev.Type)
	assert.Equal(t, snap.Version, ev.Version)
	require.NotNil(t, ev.View)
	assert.Equal(t, snap.ActivePlayerID, ev.View.ActivePlayerID)
	assert.Empty(t, ev.View.Hand)
}

func TestNATSPublisher_RoomClosed(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	p := newNATSPublisher(conn, "")
	p.RoomClosed("R2")

	require.Len(t, conn.msgs["uno.room.R2"], 1)
	var ev Event
	require.NoError(t, json.Unmarshal(conn.msgs["uno.room.R2"][0], &ev))
	assert.Equal(t, EventClosed, ev.Type)
	assert.Nil(t, ev.View)
}

func TestNATSPublisher_Error(t *testing.T) {
	t.Parallel()

	boom := errors.New("nats: connection closed")
	p := newNATSPublisher(&fakeConn{err: boom}, "")
	err := p.Publish(context.Background(), startedSnapshot(t))
	assert.ErrorIs(t, err, boom)

	// 关闭事件失败只记日志
	assert.NotPanics(t, func() { p.RoomClosed("R1") })
}
