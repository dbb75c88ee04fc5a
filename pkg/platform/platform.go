// Package platform opens the storage and messaging backends selected by the
// configuration. Every process of the deployment builds its dependencies
// through here so that they agree on where data lives.
package platform

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mahaj/groupchat/pkg/config"
	"github.com/mahaj/groupchat/pkg/db"
	"github.com/mahaj/groupchat/pkg/metrics"
	"github.com/mahaj/groupchat/pkg/notify"
	"github.com/mahaj/groupchat/pkg/notify/kafkaqueue"
	"github.com/mahaj/groupchat/pkg/realtime"
	"github.com/mahaj/groupchat/pkg/realtime/redisbroker"
	"github.com/mahaj/groupchat/pkg/store"
	"github.com/mahaj/groupchat/pkg/store/scyllastore"
	"github.com/mahaj/groupchat/pkg/store/sqlstore"
)

// Stores holds the relational store and the message store, which is the
// same SQLite database unless Scylla hosts are configured.
type Stores struct {
	SQL      *sqlstore.Store
	Messages store.Messages

	scylla *db.Session
}

func OpenStores(cfg *config.Config, log *slog.Logger) (*Stores, error) {
	sql, err := sqlstore.Open(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	st := &Stores{SQL: sql, Messages: sql}
	if !cfg.UseScylla() {
		log.Info("message history in sqlite", "dsn", cfg.DatabaseDSN)
		return st, nil
	}

	session, err := db.NewSession(cfg.ScyllaHosts, cfg.ScyllaKeyspace, log)
	if err != nil {
		_ = sql.Close()
		return nil, err
	}
	st.scylla = session
	st.Messages = scyllastore.New(session)
	return st, nil
}

func (s *Stores) Close() error {
	if s.scylla != nil {
		s.scylla.Close()
	}
	return s.SQL.Close()
}

// Backbone is the pub-sub broker plus the presence registry hubs report to.
type Backbone struct {
	Broker   realtime.Broker
	Presence realtime.Presence

	close func() error
}

// OpenBackbone connects to Redis when configured. Without Redis the broker
// and presence live in this process, which only works when the gateway is
// embedded in the API process.
func OpenBackbone(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Backbone, error) {
	if !cfg.UseRedis() {
		local := realtime.NewLocalBroker(log)
		return &Backbone{Broker: local, Presence: realtime.NewMemoryPresence(), close: local.Close}, nil
	}
	rdb, err := redisbroker.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return nil, err
	}
	log.Info("connected to redis", "addr", cfg.RedisAddr)
	return &Backbone{
		Broker:   redisbroker.New(rdb, log),
		Presence: redisbroker.NewPresence(rdb),
		close:    rdb.Close,
	}, nil
}

func (b *Backbone) Close() error {
	return b.close()
}

// Jobs is the notification job dispatcher together with its shutdown.
type Jobs struct {
	notify.Dispatcher
	io interface{ Close() error }
}

// OpenJobs returns a Kafka producer when brokers are configured; jobs are
// then handled by the notifier process. Otherwise jobs run on a local
// worker pool against handler.
func OpenJobs(cfg *config.Config, handler notify.Handler, log *slog.Logger, m *metrics.Metrics) *Jobs {
	if cfg.UseKafka() {
		log.Info("notification jobs on kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.NotificationTopic)
		p := kafkaqueue.NewProducer(cfg.KafkaBrokers, cfg.NotificationTopic)
		return &Jobs{Dispatcher: p, io: p}
	}
	local := notify.NewLocal(handler, 4, 1024, log, m)
	return &Jobs{Dispatcher: local, io: local}
}

func (j *Jobs) Close() error {
	return j.io.Close()
}

// ErrGatewayNeedsRedis is returned when a standalone gateway is started
// without a shared broker.
var ErrGatewayNeedsRedis = errors.New("standalone gateway requires REDIS_ADDR")
