package redisbroker

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/groupchat/pkg/logger"
	"github.com/mahaj/groupchat/pkg/realtime"
)

func dial(t *testing.T) *Broker {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb, err := Dial(context.Background(), addr, os.Getenv("REDIS_PASSWORD"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, logger.Discard())
}

func TestPublishSubscribe(t *testing.T) {
	ctx := context.Background()
	b := dial(t)
	room := realtime.GroupRoom(uuid.NewString())

	sub, err := b.Subscribe(ctx, room)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, b.Publish(ctx, realtime.Event{ID: "1", Name: realtime.EventMessageCreated, Room: room, Data: []byte(`{"id":"m1"}`)}))

	select {
	case ev := <-sub.Events():
		assert.Equal(t, "1", ev.ID)
		assert.JSONEq(t, `{"id":"m1"}`, string(ev.Data))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPresenceCounts(t *testing.T) {
	ctx := context.Background()
	p := NewPresence(dial(t).rdb)
	group := uuid.NewString()

	require.NoError(t, p.Add(ctx, group, "alice"))
	require.NoError(t, p.Add(ctx, group, "alice"))
	require.NoError(t, p.Add(ctx, group, "bob"))
	require.NoError(t, p.Remove(ctx, group, "alice"))

	online, err := p.Online(ctx, group)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, online)

	require.NoError(t, p.Remove(ctx, group, "alice"))
	online, err = p.Online(ctx, group)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, online)
}
