package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/mahaj/groupchat/pkg/metrics"
)

const recentWindow = 4096

var ErrHubStopped = errors.New("realtime: hub stopped")

type roomChange struct {
	client *Client
	room   string
	join   bool
	done   chan error
}

// Hub owns the room table of one gateway process. Room membership changes
// are applied by Run one at a time; delivery reads the table concurrently.
type Hub struct {
	log      *slog.Logger
	broker   Subscriber
	presence Presence
	metrics  *metrics.Metrics

	register   chan roomChange
	unregister chan *Client
	changes    chan roomChange

	mu    sync.RWMutex
	rooms map[string]map[*Client]bool // room -> clients

	// Touched only by Run.
	subs map[string]Subscription

	seen *recentIDs
	done chan struct{}
}

func NewHub(broker Subscriber, presence Presence, log *slog.Logger, m *metrics.Metrics) *Hub {
	if presence == nil {
		presence = NewMemoryPresence()
	}
	return &Hub{
		log:        log,
		broker:     broker,
		presence:   presence,
		metrics:    m,
		register:   make(chan roomChange),
		unregister: make(chan *Client),
		changes:    make(chan roomChange),
		rooms:      make(map[string]map[*Client]bool),
		subs:       make(map[string]Subscription),
		seen:       newRecentIDs(recentWindow),
		done:       make(chan struct{}),
	}
}

// Presence returns the presence tracker the hub reports to.
func (h *Hub) Presence() Presence { return h.presence }

// Run applies registrations and room changes until ctx is done, then
// closes every subscription.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer func() {
		for room, sub := range h.subs {
			_ = sub.Close()
			delete(h.subs, room)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case rc := <-h.register:
			// The personal room is joined first; a failure there aborts
			// the session.
			err := h.join(ctx, rc.client, UserRoom(rc.client.UserID))
			if err == nil {
				h.metrics.SessionOpened()
				for _, room := range rc.client.initial {
					if jerr := h.join(ctx, rc.client, room); jerr != nil {
						h.log.Error("failed to join room", "room", room, "user", rc.client.UserID, "error", jerr)
					}
				}
			}
			rc.done <- err
		case c := <-h.unregister:
			h.mu.RLock()
			var rooms []string
			for room := range c.rooms {
				rooms = append(rooms, room)
			}
			h.mu.RUnlock()
			if len(rooms) > 0 {
				h.metrics.SessionClosed()
			}
			for _, room := range rooms {
				h.leave(ctx, c, room)
			}
			c.shutdown()
			h.log.Debug("client unregistered", "user", c.UserID)
		case rc := <-h.changes:
			if rc.join {
				rc.done <- h.join(ctx, rc.client, rc.room)
			} else {
				h.leave(ctx, rc.client, rc.room)
				rc.done <- nil
			}
		}
	}
}

func (h *Hub) join(ctx context.Context, c *Client, room string) error {
	h.mu.RLock()
	already := h.rooms[room][c]
	h.mu.RUnlock()
	if already {
		return nil
	}

	if _, ok := h.subs[room]; !ok {
		sub, err := h.broker.Subscribe(ctx, room)
		if err != nil {
			return err
		}
		h.subs[room] = sub
		go h.forward(sub)
	}

	h.mu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][c] = true
	c.rooms[room] = true
	h.mu.Unlock()

	if groupID, ok := GroupOf(room); ok {
		if err := h.presence.Add(ctx, groupID, c.UserID); err != nil {
			h.log.Warn("failed to record presence", "group", groupID, "user", c.UserID, "error", err)
		}
	}
	h.log.Debug("client joined room", "user", c.UserID, "room", room)
	return nil
}

func (h *Hub) leave(ctx context.Context, c *Client, room string) {
	h.mu.Lock()
	clients, ok := h.rooms[room]
	if !ok || !clients[c] {
		h.mu.Unlock()
		return
	}
	delete(clients, c)
	delete(c.rooms, room)
	empty := len(clients) == 0
	if empty {
		delete(h.rooms, room)
	}
	h.mu.Unlock()

	if groupID, ok := GroupOf(room); ok {
		if err := h.presence.Remove(ctx, groupID, c.UserID); err != nil {
			h.log.Warn("failed to clear presence", "group", groupID, "user", c.UserID, "error", err)
		}
	}
	if empty {
		if sub, ok := h.subs[room]; ok {
			_ = sub.Close()
			delete(h.subs, room)
		}
	}
	h.log.Debug("client left room", "user", c.UserID, "room", room)
}

func (h *Hub) forward(sub Subscription) {
	for ev := range sub.Events() {
		h.Deliver(ev)
	}
}

// Deliver writes ev to every local session in ev.Room. An event id seen
// within the recent window is dropped.
func (h *Hub) Deliver(ev Event) {
	if !h.seen.add(ev.ID) {
		h.metrics.EventDuplicate()
		return
	}
	frame, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("failed to marshal event", "event", ev.Name, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[ev.Room] {
		if c.enqueue(frame) {
			h.metrics.EventDelivered()
		}
	}
}

// Rooms returns the rooms a session is currently in.
func (h *Hub) Rooms(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		out = append(out, room)
	}
	return out
}

func (h *Hub) submit(ctx context.Context, ch chan roomChange, rc roomChange) error {
	rc.done = make(chan error, 1)
	select {
	case ch <- rc:
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-rc.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Register subscribes c to its personal room and the rooms in c.initial.
func (h *Hub) Register(ctx context.Context, c *Client) error {
	return h.submit(ctx, h.register, roomChange{client: c})
}

// Unregister removes c from every room and stops its pumps.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
		c.shutdown()
	}
}

func (h *Hub) Join(ctx context.Context, c *Client, room string) error {
	return h.submit(ctx, h.changes, roomChange{client: c, room: room, join: true})
}

func (h *Hub) Leave(ctx context.Context, c *Client, room string) error {
	return h.submit(ctx, h.changes, roomChange{client: c, room: room})
}
