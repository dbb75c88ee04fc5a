package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mahaj/groupchat/pkg/auth"
	"github.com/mahaj/groupchat/pkg/config"
	"github.com/mahaj/groupchat/pkg/directory"
	"github.com/mahaj/groupchat/pkg/logger"
	"github.com/mahaj/groupchat/pkg/metrics"
	"github.com/mahaj/groupchat/pkg/platform"
	"github.com/mahaj/groupchat/pkg/realtime"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.Init(cfg.LogLevel, cfg.LogSink, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("gateway stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	if !cfg.UseRedis() {
		return platform.ErrGatewayNeedsRedis
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

	hub := realtime.NewHub(backbone.Broker, backbone.Presence, log, m)
	dir := directory.New(stores.SQL, stores.SQL)
	tokens := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL)

	mux := http.NewServeMux()
	mux.Handle("/ws", realtime.NewGateway(hub, tokens, dir, cfg.AllowOrigins, log))
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: cfg.GatewayAddr, Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		log.Info("gateway listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
