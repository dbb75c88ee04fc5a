package kafkaqueue

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/groupchat/pkg/logger"
	"github.com/mahaj/groupchat/pkg/model"
	"github.com/mahaj/groupchat/pkg/notify"
)

type recorder struct {
	mu   sync.Mutex
	jobs []notify.Job
}

func (r *recorder) Deliver(_ context.Context, job notify.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func TestProducerEmptyDispatch(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, "unused")
	defer p.Close()
	require.NoError(t, p.Dispatch(context.Background()))
}

func TestRoundTrip(t *testing.T) {
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		t.Skip("KAFKA_BROKERS not set")
	}
	list := strings.Split(brokers, ",")
	topic := "notification-jobs-test-" + uuid.NewString()

	p := NewProducer(list, topic)
	defer p.Close()
	job := notify.Job{Key: notify.MentionKey("m1", "bob"), Recipient: "bob", Type: model.NotificationMention}
	require.NoError(t, p.Dispatch(context.Background(), job))

	rec := &recorder{}
	c := NewConsumer(list, topic, "test-"+uuid.NewString(), rec, logger.Discard(), nil)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go func() { _ = c.Consume(ctx) }()

	require.Eventually(t, func() bool { return rec.count() == 1 }, 30*time.Second, 100*time.Millisecond)
}
