package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/groupchat/pkg/auth"
	"github.com/mahaj/groupchat/pkg/logger"
	"github.com/mahaj/groupchat/pkg/snowflake"
)

type fakeMembers struct {
	mu     sync.Mutex
	groups map[string][]string // user -> groups
}

func (f *fakeMembers) GroupIDs(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.groups[userID]...), nil
}

func (f *fakeMembers) IsMember(_ context.Context, groupID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.groups[userID] {
		if g == groupID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeMembers) add(userID, groupID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups[userID] = append(f.groups[userID], groupID)
}

type harness struct {
	server  *httptest.Server
	tokens  *auth.Manager
	hub     *Hub
	broker  *LocalBroker
	fanout  *Fanout
	members *fakeMembers
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logger.Discard()
	broker := NewLocalBroker(log)
	hub := NewHub(broker, NewMemoryPresence(), log, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	members := &fakeMembers{groups: map[string][]string{}}
	tokens := auth.NewManager("test-secret", time.Hour)
	server := httptest.NewServer(NewGateway(hub, tokens, members, nil, log))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fanout := NewFanout(node, log, nil)
	fanout.Attach(broker)

	t.Cleanup(func() {
		server.Close()
		cancel()
		_ = broker.Close()
	})
	return &harness{server: server, tokens: tokens, hub: hub, broker: broker, fanout: fanout, members: members}
}

func (h *harness) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (h *harness) connect(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	token, err := h.tokens.GenerateToken(userID)
	require.NoError(t, err)
	conn := h.dial(t, "?token="+token)
	ev := readEvent(t, conn)
	require.Equal(t, EventConnected, ev.Name)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestGatewayRejectsBadToken(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "?token=garbage")

	ev := readEvent(t, conn)
	assert.Equal(t, EventError, ev.Name)
	assert.JSONEq(t, `{"message":"invalid token","status":401}`, string(ev.Data))

	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestGatewayRejectsMissingToken(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "")
	ev := readEvent(t, conn)
	assert.Equal(t, EventError, ev.Name)
	assert.JSONEq(t, `{"message":"missing token","status":401}`, string(ev.Data))
}

func TestGroupEventsReachMembers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.members.add("alice", "g1")
	h.members.add("bob", "g1")

	alice := h.connect(t, "alice")
	bob := h.connect(t, "bob")
	carol := h.connect(t, "carol")

	require.NoError(t, h.fanout.ToGroup(ctx, "g1", EventMessageCreated, map[string]string{"id": "m1"}))

	for _, conn := range []*websocket.Conn{alice, bob} {
		ev := readEvent(t, conn)
		assert.Equal(t, EventMessageCreated, ev.Name)
		assert.Equal(t, "group:g1", ev.Room)
	}

	// carol only sees her personal events.
	require.NoError(t, h.fanout.ToUser(ctx, "carol", EventNotificationCreated, map[string]string{"id": "n1"}))
	ev := readEvent(t, carol)
	assert.Equal(t, EventNotificationCreated, ev.Name)

	online, err := h.hub.Presence().Online(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, online)
}

func TestJoinGroupChecksMembership(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	conn := h.connect(t, "dave")

	require.NoError(t, conn.WriteJSON(Request{Event: RequestJoinGroup, Data: "g2"}))
	ev := readEvent(t, conn)
	assert.Equal(t, EventError, ev.Name)
	assert.JSONEq(t, `{"message":"you are not a member of this group","status":403}`, string(ev.Data))

	h.members.add("dave", "g2")
	require.NoError(t, conn.WriteJSON(Request{Event: RequestJoinGroup, Data: "g2"}))
	ev = readEvent(t, conn)
	assert.Equal(t, EventJoinedGroup, ev.Name)
	assert.JSONEq(t, `{"groupId":"g2"}`, string(ev.Data))

	require.NoError(t, h.fanout.ToGroup(ctx, "g2", EventMessageDeleted, map[string]string{"messageId": "m9"}))
	ev = readEvent(t, conn)
	assert.Equal(t, EventMessageDeleted, ev.Name)

	require.NoError(t, conn.WriteJSON(Request{Event: RequestLeaveGroup, Data: "g2"}))
	ev = readEvent(t, conn)
	assert.Equal(t, EventLeftGroup, ev.Name)

	require.NoError(t, h.fanout.ToGroup(ctx, "g2", EventMessageCreated, map[string]string{"id": "m10"}))
	require.NoError(t, h.fanout.ToUser(ctx, "dave", EventNotificationCreated, map[string]string{"id": "n2"}))
	ev = readEvent(t, conn)
	assert.Equal(t, EventNotificationCreated, ev.Name, "group event delivered after leaveGroup")
}

func TestDuplicateEventDeliveredOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.members.add("erin", "g3")
	conn := h.connect(t, "erin")

	dup := Event{ID: "42", Name: EventReactionCreated, Room: "group:g3", Data: []byte(`{}`)}
	require.NoError(t, h.broker.Publish(ctx, dup))
	require.NoError(t, h.broker.Publish(ctx, dup))
	require.NoError(t, h.fanout.ToGroup(ctx, "g3", EventMessageCreated, map[string]string{}))

	ev := readEvent(t, conn)
	assert.Equal(t, "42", ev.ID)
	ev = readEvent(t, conn)
	assert.Equal(t, EventMessageCreated, ev.Name)
}

func TestUnknownRequest(t *testing.T) {
	h := newHarness(t)
	conn := h.connect(t, "frank")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"dance"}`)))
	ev := readEvent(t, conn)
	assert.Equal(t, EventError, ev.Name)

	var status struct {
		Status int `json:"status"`
	}
	require.NoError(t, json.Unmarshal(ev.Data, &status))
	assert.Equal(t, http.StatusBadRequest, status.Status)
}

// gatedBroker holds every Subscribe until release is closed.
type gatedBroker struct {
	*LocalBroker
	release chan struct{}
}

func (b *gatedBroker) Subscribe(ctx context.Context, room string) (Subscription, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.LocalBroker.Subscribe(ctx, room)
}

func TestFailedRegistrationIsUndone(t *testing.T) {
	log := logger.Discard()
	broker := &gatedBroker{LocalBroker: NewLocalBroker(log), release: make(chan struct{})}
	presence := NewMemoryPresence()
	hub := NewHub(broker, presence, log, nil)
	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	go hub.Run(runCtx)

	members := &fakeMembers{groups: map[string][]string{"alice": {"g1"}}}
	gw := NewGateway(hub, auth.NewManager("test-secret", time.Hour), members, nil, log)
	client := newClient(hub, nil, members, "alice", []string{"g1"}, log)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- gw.register(ctx, client) }()

	// Let the request time out while Run is still subscribing, then let
	// Run finish applying it.
	<-ctx.Done()
	time.Sleep(50 * time.Millisecond)
	close(broker.release)

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("register did not return")
	}
	select {
	case <-client.done:
	case <-time.After(5 * time.Second):
		t.Fatal("client was not unregistered")
	}

	assert.Empty(t, hub.Rooms(client))
	online, err := presence.Online(context.Background(), "g1")
	require.NoError(t, err)
	assert.Empty(t, online)
}
