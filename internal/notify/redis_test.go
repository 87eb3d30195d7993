package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisPublisher_PublishAndClose(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	p := NewRedisPublisher(client, "")
	assert.Equal(t, "uno:events:R1", p.Channel("R1"))

	sub := client.Subscribe(ctx, p.Channel("R1"))
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx) // 等待订阅确认
	require.NoError(t, err)
	ch := sub.Channel()

	snap := startedSnapshot(t)
	require.NoError(t, p.Publish(ctx, snap))
	p.RoomClosed("R1")

	var got []Event
	for len(got) < 2 {
		select {
		case msg := <-ch:
			var ev Event
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
			got = append(got, ev)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for events")
		}
	}

	assert.Equal(t, EventState, got[0].Type)
	assert.Equal(t, snap.Version, got[0].Version)
	assert.Equal(t, EventClosed, got[1].Type)
	assert.Equal(t, "R1", got[1].RoomID)
}
