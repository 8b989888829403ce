package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// ErrPoison marks a message the handler can never process; it is committed and skipped.
var ErrPoison = errors.New("poison message")

const (
	defaultAttempts = 3
	defaultBackoff  = 500 * time.Millisecond
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Delivery is a fetched message as handlers see it.
type Delivery struct {
	Topic     string
	Partition int
	Offset    int64
	Key       string
	Value     []byte
	Headers   map[string]string
	Time      time.Time
}

type Handler func(ctx context.Context, d Delivery) error

type Consumer struct {
	r        messageReader
	attempts int
	backoff  time.Duration
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return &Consumer{
		r:        kafka.NewReader(cfg),
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
	}
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r, attempts: defaultAttempts}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Consume hands messages to h one by one and commits each after h is done with it.
// A message h keeps failing on stops the loop uncommitted, so it is redelivered.
func (c *Consumer) Consume(ctx context.Context, h Handler) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch message")
		}
		d := Delivery{
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Key:       string(msg.Key),
			Value:     msg.Value,
			Headers:   fromHeaders(msg.Headers),
			Time:      msg.Time,
		}
		if err := c.handle(ctx, h, d); err != nil {
			if !errors.Is(err, ErrPoison) {
				return errors.Wrapf(err, "handle offset %d", msg.Offset)
			}
			slog.Warn("kafka message skipped", "topic", msg.Topic, "offset", msg.Offset, "error", err.Error())
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit message")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, h Handler, d Delivery) error {
	for attempt := 1; ; attempt++ {
		err := h(ctx, d)
		if err == nil || errors.Is(err, ErrPoison) || attempt >= c.attempts {
			return err
		}
		slog.Warn("kafka handler failed, retrying", "offset", d.Offset, "attempt", attempt, "error", err.Error())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
}
