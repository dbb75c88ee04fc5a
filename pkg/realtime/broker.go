package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Publisher sends an event to every subscriber of ev.Room.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Subscription is a stream of events for one room. Events is closed after
// Close returns.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

type Subscriber interface {
	Subscribe(ctx context.Context, room string) (Subscription, error)
}

// Broker is the pub-sub backbone between publishers and hubs.
type Broker interface {
	Publisher
	Subscriber
}

var ErrBrokerClosed = errors.New("realtime: broker closed")

const subscriptionBuffer = 1024

// LocalBroker is an in-process Broker for single-instance deployments and
// tests. A subscriber whose buffer is full misses the event.
type LocalBroker struct {
	log    *slog.Logger
	mu     sync.RWMutex
	rooms  map[string]map[*localSub]struct{}
	closed bool
}

func NewLocalBroker(log *slog.Logger) *LocalBroker {
	return &LocalBroker{log: log, rooms: make(map[string]map[*localSub]struct{})}
}

type localSub struct {
	b    *LocalBroker
	room string
	ch   chan Event
	once sync.Once
}

func (s *localSub) Events() <-chan Event { return s.ch }

func (s *localSub) Close() error {
	s.once.Do(func() {
		s.b.mu.Lock()
		if subs, ok := s.b.rooms[s.room]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(s.b.rooms, s.room)
			}
		}
		s.b.mu.Unlock()
		close(s.ch)
	})
	return nil
}

func (b *LocalBroker) Subscribe(_ context.Context, room string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}
	s := &localSub{b: b, room: room, ch: make(chan Event, subscriptionBuffer)}
	if b.rooms[room] == nil {
		b.rooms[room] = make(map[*localSub]struct{})
	}
	b.rooms[room][s] = struct{}{}
	return s, nil
}

func (b *LocalBroker) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBrokerClosed
	}
	for s := range b.rooms[ev.Room] {
		select {
		case s.ch <- ev:
		default:
			b.log.Warn("subscriber buffer full, dropping event", "room", ev.Room, "event", ev.Name, "id", ev.ID)
		}
	}
	return nil
}

// Close ends every open subscription.
func (b *LocalBroker) Close() error {
	b.mu.Lock()
	b.closed = true
	var subs []*localSub
	for _, set := range b.rooms {
		for s := range set {
			subs = append(subs, s)
		}
	}
	b.mu.Unlock()
	for _, s := range subs {
		_ = s.Close()
	}
	return nil
}
