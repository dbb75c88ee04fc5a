package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/groupchat/pkg/apperr"
	"github.com/mahaj/groupchat/pkg/logger"
	"github.com/mahaj/groupchat/pkg/model"
	"github.com/mahaj/groupchat/pkg/store"
	"github.com/mahaj/groupchat/pkg/store/sqlstore"
)

type pushed struct {
	user  string
	event string
}

type fakePusher struct {
	mu     sync.Mutex
	events []pushed
}

func (p *fakePusher) ToUser(_ context.Context, userID, name string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, pushed{userID, name})
	return nil
}

func (p *fakePusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func setup(t *testing.T) (*Service, *sqlstore.Store, *fakePusher) {
	t.Helper()
	db, err := sqlstore.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	push := &fakePusher{}
	return NewService(db, db, push, logger.Discard(), nil), db, push
}

func TestCreatePushesNotification(t *testing.T) {
	ctx := context.Background()
	svc, _, push := setup(t)

	n, err := svc.Create(ctx, "bob", model.NotificationMention, model.NotificationPayload{GroupID: "g", MessageID: "m"}, "")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.False(t, n.Read)
	assert.Equal(t, []pushed{{"bob", "notification.created"}}, push.events)
}

func TestCreateHonoursPreferences(t *testing.T) {
	ctx := context.Background()
	svc, _, push := setup(t)

	_, err := svc.SetPreferences(ctx, "bob", model.NotifyNone)
	require.NoError(t, err)
	n, err := svc.Create(ctx, "bob", model.NotificationMention, model.NotificationPayload{}, "")
	require.NoError(t, err)
	assert.Nil(t, n)

	_, err = svc.SetPreferences(ctx, "bob", model.NotifyMentions)
	require.NoError(t, err)
	n, err = svc.Create(ctx, "bob", model.NotificationReaction, model.NotificationPayload{}, "")
	require.NoError(t, err)
	assert.Nil(t, n)
	n, err = svc.Create(ctx, "bob", model.NotificationMention, model.NotificationPayload{}, "")
	require.NoError(t, err)
	assert.NotNil(t, n)

	assert.Equal(t, 1, push.count())
}

func TestSetPreferencesRejectsUnknownLevel(t *testing.T) {
	svc, _, _ := setup(t)
	_, err := svc.SetPreferences(context.Background(), "bob", "loud")
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
}

func TestDeliverIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _, push := setup(t)
	job := Job{Key: MentionKey("m1", "bob"), Recipient: "bob", Type: model.NotificationMention,
		Payload: model.NotificationPayload{MessageID: "m1"}}

	require.NoError(t, svc.Deliver(ctx, job))
	require.NoError(t, svc.Deliver(ctx, job))

	res, err := svc.List(ctx, "bob", nil, store.Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Total)
	assert.Equal(t, 1, push.count())
}

func TestListAndReadState(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup(t)
	var ids []string
	for i := 0; i < 3; i++ {
		n, err := svc.Create(ctx, "bob", model.NotificationMention, model.NotificationPayload{}, "")
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}

	n, err := svc.SetRead(ctx, "bob", ids[0], true)
	require.NoError(t, err)
	assert.True(t, n.Read)

	_, err = svc.SetRead(ctx, "alice", ids[0], true)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	unread := false
	res, err := svc.List(ctx, "bob", &unread, store.Page{Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Total)

	count, err := svc.UnreadCount(ctx, "bob")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	changed, err := svc.MarkAllRead(ctx, "bob")
	require.NoError(t, err)
	assert.EqualValues(t, 2, changed)

	_, err = svc.List(ctx, "bob", nil, store.Page{Limit: -1})
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))

	res, err = svc.List(ctx, "nobody", nil, store.Page{})
	require.NoError(t, err)
	assert.NotNil(t, res.Items)
	assert.Empty(t, res.Items)
}

func TestListClampsLimit(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup(t)
	for i := 0; i < DefaultPageSize+2; i++ {
		_, err := svc.Create(ctx, "bob", model.NotificationMention, model.NotificationPayload{}, "")
		require.NoError(t, err)
	}

	res, err := svc.List(ctx, "bob", nil, store.Page{})
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, res.Limit)
	assert.Len(t, res.Items, DefaultPageSize)
	assert.EqualValues(t, DefaultPageSize+2, res.Total)

	res, err = svc.List(ctx, "bob", nil, store.Page{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, res.Limit)
	assert.Len(t, res.Items, DefaultPageSize+2)
}

type flaky struct {
	mu       sync.Mutex
	failures int
	calls    int
	done     []Job
}

func (f *flaky) Deliver(_ context.Context, job Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("store unavailable")
	}
	f.done = append(f.done, job)
	return nil
}

func TestLocalDispatcherRetries(t *testing.T) {
	h := &flaky{failures: 2}
	d := NewLocal(h, 1, 8, logger.Discard(), nil)

	require.NoError(t, d.Dispatch(context.Background(), Job{Key: "k1", Recipient: "bob", Type: model.NotificationMention}))
	require.NoError(t, d.Close())

	assert.Equal(t, 3, h.calls)
	require.Len(t, h.done, 1)
	assert.Equal(t, "k1", h.done[0].Key)

	assert.ErrorIs(t, d.Dispatch(context.Background(), Job{Key: "k2"}), ErrDispatcherClosed)
}

func TestLocalDispatcherGivesUp(t *testing.T) {
	h := &flaky{failures: 100}
	d := NewLocal(h, 2, 8, logger.Discard(), nil)
	start := time.Now()
	require.NoError(t, d.Dispatch(context.Background(), Job{Key: "k"}))
	require.NoError(t, d.Close())
	assert.Equal(t, maxAttempts, h.calls)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestInlineDispatcher(t *testing.T) {
	h := &flaky{failures: 1}
	d := Inline{Handler: h, Log: logger.Discard()}
	err := d.Dispatch(context.Background(), Job{Key: "a"}, Job{Key: "b"})
	assert.Error(t, err)
	require.Len(t, h.done, 1)
	assert.Equal(t, "b", h.done[0].Key)
}
