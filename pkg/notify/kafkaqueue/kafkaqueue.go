// Package kafkaqueue carries notification jobs through a Kafka topic. Jobs
// are keyed by their dedupe key so redeliveries of one job land on the
// same partition.
package kafkaqueue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mahaj/groupchat/pkg/metrics"
	"github.com/mahaj/groupchat/pkg/notify"
)

// Producer implements notify.Dispatcher.
type Producer struct {
	writer *kafka.Writer
}

var _ notify.Dispatcher = (*Producer)(nil)

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}}
}

func (p *Producer) Dispatch(ctx context.Context, jobs ...notify.Job) error {
	msgs := make([]kafka.Message, 0, len(jobs))
	for _, job := range jobs {
		value, err := json.Marshal(job)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{Key: []byte(job.Key), Value: value, Time: time.Now()})
	}
	if len(msgs) == 0 {
		return nil
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer reads jobs as part of a consumer group and commits each offset
// only after the job was handled, giving at-least-once delivery.
type Consumer struct {
	reader  *kafka.Reader
	handler notify.Handler
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewConsumer(brokers []string, topic, groupID string, handler notify.Handler, log *slog.Logger, m *metrics.Metrics) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: r, handler: handler, log: log, metrics: m}
}

// Consume processes jobs until ctx is done.
func (c *Consumer) Consume(ctx context.Context) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return err
			}
			c.log.Warn("error fetching job, retrying in 1s", "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		var job notify.Job
		if err := json.Unmarshal(m.Value, &job); err != nil {
			c.log.Error("dropping malformed job", "partition", m.Partition, "offset", m.Offset, "error", err)
		} else {
			notify.DeliverWithRetry(ctx, c.handler, job, c.log, c.metrics)
		}

		if ctx.Err() != nil {
			// Leave the offset uncommitted so the job is redelivered.
			return nil
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.log.Warn("failed to commit job offset", "offset", m.Offset, "error", err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
