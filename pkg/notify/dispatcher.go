package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mahaj/groupchat/pkg/metrics"
)

var ErrDispatcherClosed = errors.New("notify: dispatcher closed")

const (
	maxAttempts  = 4
	retryBackoff = 50 * time.Millisecond
)

// Inline delivers jobs synchronously on the caller's goroutine.
type Inline struct {
	Handler Handler
	Log     *slog.Logger
}

func (d Inline) Dispatch(ctx context.Context, jobs ...Job) error {
	var errs []error
	for _, job := range jobs {
		if err := d.Handler.Deliver(ctx, job); err != nil {
			d.Log.Error("notification job failed", "key", job.Key, "recipient", job.Recipient, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Local queues jobs in memory and delivers them from a pool of workers,
// retrying failed jobs a few times. Jobs still queued when the process
// exits are lost; use the Kafka queue when that matters.
type Local struct {
	handler Handler
	log     *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	jobs   chan Job
	wg     sync.WaitGroup
}

func NewLocal(handler Handler, workers, buffer int, log *slog.Logger, m *metrics.Metrics) *Local {
	if workers <= 0 {
		workers = 4
	}
	if buffer <= 0 {
		buffer = 1024
	}
	d := &Local{handler: handler, log: log, metrics: m, jobs: make(chan Job, buffer)}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *Local) Dispatch(ctx context.Context, jobs ...Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	for _, job := range jobs {
		select {
		case d.jobs <- job:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close stops accepting jobs and waits for queued ones to finish.
func (d *Local) Close() error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()
	d.wg.Wait()
	return nil
}

func (d *Local) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		DeliverWithRetry(context.Background(), d.handler, job, d.log, d.metrics)
	}
}

// DeliverWithRetry calls h until it succeeds, maxAttempts is reached or ctx
// is done, and reports whether the job was delivered.
func DeliverWithRetry(ctx context.Context, h Handler, job Job, log *slog.Logger, m *metrics.Metrics) bool {
	backoff := retryBackoff
	for attempt := 1; ; attempt++ {
		err := h.Deliver(ctx, job)
		if err == nil {
			return true
		}
		if attempt == maxAttempts || ctx.Err() != nil {
			log.Error("giving up on notification job", "key", job.Key, "recipient", job.Recipient, "attempts", attempt, "error", err)
			m.Notification(string(job.Type), metrics.OutcomeFailed)
			return false
		}
		log.Warn("notification job failed, retrying", "key", job.Key, "attempt", attempt, "error", err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
		}
		backoff *= 2
	}
}
