// Package redisbroker carries realtime events between processes over Redis
// pub/sub and keeps group presence in Redis hashes.
package redisbroker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/mahaj/groupchat/pkg/realtime"
)

const channelPrefix = "rt:"

// Broker implements realtime.Broker with one Redis subscription per room.
type Broker struct {
	rdb *redis.Client
	log *slog.Logger
}

var _ realtime.Broker = (*Broker)(nil)

func New(rdb *redis.Client, log *slog.Logger) *Broker {
	return &Broker{rdb: rdb, log: log}
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return rdb, nil
}

func (b *Broker) Publish(ctx context.Context, ev realtime.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channelPrefix+ev.Room, payload).Err()
}

// Subscribe returns once Redis has confirmed the subscription, so events
// published afterwards are not missed.
func (b *Broker) Subscribe(ctx context.Context, room string) (realtime.Subscription, error) {
	ps := b.rdb.Subscribe(ctx, channelPrefix+room)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", room, err)
	}
	s := &subscription{ps: ps, out: make(chan realtime.Event, 256)}
	go s.pump(b.log, room)
	return s, nil
}

type subscription struct {
	ps   *redis.PubSub
	out  chan realtime.Event
	once sync.Once
}

func (s *subscription) Events() <-chan realtime.Event { return s.out }

func (s *subscription) pump(log *slog.Logger, room string) {
	defer close(s.out)
	for msg := range s.ps.Channel() {
		var ev realtime.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			log.Warn("dropping malformed event", "room", room, "error", err)
			continue
		}
		s.out <- ev
	}
}

// Close unsubscribes; Events is closed once the pump drains.
func (s *subscription) Close() error {
	var err error
	s.once.Do(func() { err = s.ps.Close() })
	return err
}
