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

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/mahaj/groupchat/pkg/api"
	"github.com/mahaj/groupchat/pkg/auth"
	"github.com/mahaj/groupchat/pkg/config"
	"github.com/mahaj/groupchat/pkg/directory"
	"github.com/mahaj/groupchat/pkg/group"
	"github.com/mahaj/groupchat/pkg/logger"
	"github.com/mahaj/groupchat/pkg/message"
	"github.com/mahaj/groupchat/pkg/metrics"
	"github.com/mahaj/groupchat/pkg/notify"
	"github.com/mahaj/groupchat/pkg/platform"
	"github.com/mahaj/groupchat/pkg/realtime"
	"github.com/mahaj/groupchat/pkg/snowflake"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load("")
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.Init(cfg.LogLevel, cfg.LogSink, cfg.LogFormat)
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("api service stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
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

	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return err
	}

	fanout := realtime.NewFanout(node, log, m)
	fanout.Attach(backbone.Broker)

	notes := notify.NewService(stores.SQL, stores.SQL, fanout, log, m)
	jobs := platform.OpenJobs(cfg, notes, log, m)
	defer jobs.Close()

	dir := directory.New(stores.SQL, stores.SQL)
	groups := group.NewService(group.Stores{
		Groups:        stores.SQL,
		Memberships:   stores.SQL,
		Messages:      stores.Messages,
		Notifications: stores.SQL,
	}, dir, notes, log)
	messages := message.NewService(stores.Messages, dir, fanout, jobs, node, log)
	tokens := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL)

	router := api.NewRouter(api.Deps{
		Groups:        groups,
		Messages:      messages,
		Notifications: notes,
		Presence:      backbone.Presence,
		Tokens:        tokens,
		Metrics:       m,
		Log:           log,
		DevLogin:      cfg.DevLogin,
		AllowOrigins:  cfg.AllowOrigins,
	})

	g, ctx := errgroup.WithContext(ctx)
	serve(ctx, g, log, "api", &http.Server{Addr: cfg.HTTPAddr, Handler: router})

	if cfg.EmbedGateway {
		hub := realtime.NewHub(backbone.Broker, backbone.Presence, log, m)
		g.Go(func() error {
			hub.Run(ctx)
			return nil
		})
		mux := http.NewServeMux()
		mux.Handle("/ws", realtime.NewGateway(hub, tokens, dir, cfg.AllowOrigins, log))
		serve(ctx, g, log, "gateway", &http.Server{Addr: cfg.GatewayAddr, Handler: mux})
	}
	return g.Wait()
}

// serve runs srv until ctx is done and then shuts it down gracefully.
func serve(ctx context.Context, g *errgroup.Group, log *slog.Logger, name string, srv *http.Server) {
	g.Go(func() error {
		log.Info(name+" listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down " + name)
		return srv.Shutdown(shutdownCtx)
	})
}
