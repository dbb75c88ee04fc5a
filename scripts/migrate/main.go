// Command migrate creates the relational schema and, when Scylla hosts are
// configured, the keyspace and message tables.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/mahaj/groupchat/pkg/config"
	"github.com/mahaj/groupchat/pkg/db"
	"github.com/mahaj/groupchat/pkg/logger"
	"github.com/mahaj/groupchat/pkg/store/scyllastore"
	"github.com/mahaj/groupchat/pkg/store/sqlstore"
)

func main() {
	replication := flag.Int("replication", 1, "scylla replication factor for a new keyspace")
	flag.Parse()

	cfg, err := config.Load("")
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.Init(cfg.LogLevel, cfg.LogSink, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	st, err := sqlstore.Open(cfg.DatabaseDSN)
	if err != nil {
		log.Error("failed to migrate sqlite", "dsn", cfg.DatabaseDSN, "error", err)
		os.Exit(1)
	}
	_ = st.Close()
	log.Info("sqlite schema up to date", "dsn", cfg.DatabaseDSN)

	if !cfg.UseScylla() {
		return
	}
	if err := db.CreateKeyspace(ctx, cfg.ScyllaHosts, cfg.ScyllaKeyspace, *replication); err != nil {
		log.Error("failed to create keyspace", "keyspace", cfg.ScyllaKeyspace, "error", err)
		os.Exit(1)
	}
	session, err := db.NewSession(cfg.ScyllaHosts, cfg.ScyllaKeyspace, log)
	if err != nil {
		log.Error("failed to connect to scylla", "error", err)
		os.Exit(1)
	}
	defer session.Close()
	if err := scyllastore.CreateSchema(ctx, session); err != nil {
		log.Error("failed to create message tables", "error", err)
		os.Exit(1)
	}
	log.Info("scylla schema up to date", "keyspace", cfg.ScyllaKeyspace)
}
