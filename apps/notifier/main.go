// Command notifier consumes notification jobs from Kafka, stores the
// resulting notifications and pushes them to the recipients' rooms.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/mahaj/groupchat/pkg/config"
	"github.com/mahaj/groupchat/pkg/logger"
	"github.com/mahaj/groupchat/pkg/metrics"
	"github.com/mahaj/groupchat/pkg/notify"
	"github.com/mahaj/groupchat/pkg/notify/kafkaqueue"
	"github.com/mahaj/groupchat/pkg/platform"
	"github.com/mahaj/groupchat/pkg/realtime"
	"github.com/mahaj/groupchat/pkg/snowflake"
)

var errNoKafka = errors.New("notifier requires KAFKA_BROKERS")

func main() {
	cfg, err := config.Load("")
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.Init(cfg.LogLevel, cfg.LogSink, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("notifier stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	if !cfg.UseKafka() {
		return errNoKafka
	}
	m := metrics.New()

	stores, err := platform.OpenStores(cfg, log)
	if err != nil {
		return err
	}
	defer stores.Close()

	backbone, err := platform.OpenBackbone(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backbone.Close()
	if !cfg.UseRedis() {
		log.Warn("no redis configured, notifications are stored but not pushed to live sessions")
	}

	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return err
	}
	fanout := realtime.NewFanout(node, log, m)
	fanout.Attach(backbone.Broker)

	notes := notify.NewService(stores.SQL, stores.SQL, fanout, log, m)
	consumer := kafkaqueue.NewConsumer(cfg.KafkaBrokers, cfg.NotificationTopic, cfg.NotifierGroup, notes, log, m)
	defer consumer.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("notifier consuming", "topic", cfg.NotificationTopic, "group", cfg.NotifierGroup)
		return consumer.Consume(ctx)
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: m.Handler()}
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return srv.Shutdown(context.Background())
	})
	return g.Wait()
}
