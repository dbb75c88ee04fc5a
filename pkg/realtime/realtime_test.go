package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/groupchat/pkg/logger"
	"github.com/mahaj/groupchat/pkg/snowflake"
)

func TestRooms(t *testing.T) {
	assert.Equal(t, "group:g1", GroupRoom("g1"))
	assert.Equal(t, "user:u1", UserRoom("u1"))

	id, ok := GroupOf("group:g1")
	assert.True(t, ok)
	assert.Equal(t, "g1", id)
	_, ok = GroupOf("user:u1")
	assert.False(t, ok)
}

func TestLocalBrokerRoutesByRoom(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBroker(logger.Discard())

	a, err := b.Subscribe(ctx, "group:a")
	require.NoError(t, err)
	other, err := b.Subscribe(ctx, "group:b")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, Event{ID: "1", Name: EventMessageCreated, Room: "group:a"}))

	select {
	case ev := <-a.Events():
		assert.Equal(t, "1", ev.ID)
	case <-time.After(time.Second):
		t.Fatal("expected event on group:a")
	}
	select {
	case ev := <-other.Events():
		t.Fatalf("unexpected event on group:b: %+v", ev)
	default:
	}

	require.NoError(t, a.Close())
	_, open := <-a.Events()
	assert.False(t, open)

	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Publish(ctx, Event{Room: "group:b"}), ErrBrokerClosed)
	_, err = b.Subscribe(ctx, "group:c")
	assert.ErrorIs(t, err, ErrBrokerClosed)
}

func TestRecentIDsWindow(t *testing.T) {
	r := newRecentIDs(2)
	assert.True(t, r.add("a"))
	assert.False(t, r.add("a"))
	assert.True(t, r.add("b"))
	assert.True(t, r.add("c")) // evicts a
	assert.True(t, r.add("a"))
	assert.False(t, r.add("c"))
	assert.True(t, r.add(""))
	assert.True(t, r.add(""))
}

func TestMemoryPresence(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPresence()
	require.NoError(t, p.Add(ctx, "g", "bob"))
	require.NoError(t, p.Add(ctx, "g", "alice"))
	require.NoError(t, p.Add(ctx, "g", "bob"))
	require.NoError(t, p.Remove(ctx, "g", "bob"))

	online, err := p.Online(ctx, "g")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, online)

	require.NoError(t, p.Remove(ctx, "g", "bob"))
	require.NoError(t, p.Remove(ctx, "g", "alice"))
	online, err = p.Online(ctx, "g")
	require.NoError(t, err)
	assert.Empty(t, online)
}

func TestFanoutRequiresAttach(t *testing.T) {
	ctx := context.Background()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	f := NewFanout(node, logger.Discard(), nil)

	assert.False(t, f.Ready())
	assert.ErrorIs(t, f.ToGroup(ctx, "g", EventMessageCreated, nil), ErrNotAttached)

	b := NewLocalBroker(logger.Discard())
	sub, err := b.Subscribe(ctx, UserRoom("bob"))
	require.NoError(t, err)
	f.Attach(b)
	assert.True(t, f.Ready())

	require.NoError(t, f.ToUser(ctx, "bob", EventNotificationCreated, map[string]string{"id": "n1"}))
	ev := <-sub.Events()
	assert.Equal(t, EventNotificationCreated, ev.Name)
	assert.Equal(t, "user:bob", ev.Room)
	assert.NotEmpty(t, ev.ID)

	var data map[string]string
	require.NoError(t, json.Unmarshal(ev.Data, &data))
	assert.Equal(t, "n1", data["id"])
}
