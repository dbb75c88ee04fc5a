// Package db opens ScyllaDB sessions.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/gocql/gocql"
)

type Session struct {
	*gocql.Session
}

func newCluster(hosts []string) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(hosts...)
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        1 * time.Second,
	}
	return cluster
}

// NewSession connects to keyspace on the given hosts at QUORUM consistency.
func NewSession(hosts []string, keyspace string, log *slog.Logger) (*Session, error) {
	cluster := newCluster(hosts)
	cluster.Keyspace = keyspace

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect scylla %v/%s: %w", hosts, keyspace, err)
	}
	log.Info("connected to scylla", "hosts", hosts, "keyspace", keyspace)
	return &Session{Session: session}, nil
}

var keyspaceName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,47}$`)

// CreateKeyspace creates keyspace with SimpleStrategy replication if it
// does not exist yet.
func CreateKeyspace(ctx context.Context, hosts []string, keyspace string, replication int) error {
	if !keyspaceName.MatchString(keyspace) {
		return fmt.Errorf("invalid keyspace name %q", keyspace)
	}
	if replication <= 0 {
		replication = 1
	}
	cluster := newCluster(hosts)
	cluster.Consistency = gocql.All
	session, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("connect scylla %v: %w", hosts, err)
	}
	defer session.Close()

	stmt := fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s
		WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}`,
		keyspace, replication)
	return session.Query(stmt).WithContext(ctx).Exec()
}
