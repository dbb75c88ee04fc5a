package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/mahaj/groupchat/pkg/metrics"
	"github.com/mahaj/groupchat/pkg/snowflake"
)

// ErrNotAttached is returned by a Fanout that has no publisher yet.
var ErrNotAttached = errors.New("realtime: fanout has no publisher attached")

// Fanout is the publishing side used by the services. It is created
// detached; Attach installs the publisher once the backbone is up.
type Fanout struct {
	mu      sync.RWMutex
	pub     Publisher
	ids     *snowflake.Node
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewFanout(ids *snowflake.Node, log *slog.Logger, m *metrics.Metrics) *Fanout {
	return &Fanout{ids: ids, log: log, metrics: m}
}

// Attach installs the publisher. Calling it again replaces the previous one.
func (f *Fanout) Attach(p Publisher) {
	f.mu.Lock()
	f.pub = p
	f.mu.Unlock()
}

// Ready reports whether a publisher is attached.
func (f *Fanout) Ready() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.pub != nil
}

// Publish wraps payload in an event with a fresh id and publishes it.
func (f *Fanout) Publish(ctx context.Context, room, name string, payload any) error {
	f.mu.RLock()
	pub := f.pub
	f.mu.RUnlock()
	if pub == nil {
		return ErrNotAttached
	}

	ev, err := newEvent(f.ids.GenerateString(), name, room, payload)
	if err != nil {
		return err
	}
	if err := pub.Publish(ctx, ev); err != nil {
		return err
	}
	f.metrics.EventPublished(name)
	f.log.Debug("event published", "room", room, "event", name, "id", ev.ID)
	return nil
}

// ToGroup publishes to a group room.
func (f *Fanout) ToGroup(ctx context.Context, groupID, name string, payload any) error {
	return f.Publish(ctx, GroupRoom(groupID), name, payload)
}

// ToUser publishes to a personal room.
func (f *Fanout) ToUser(ctx context.Context, userID, name string, payload any) error {
	return f.Publish(ctx, UserRoom(userID), name, payload)
}
