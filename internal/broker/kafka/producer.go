package kafka

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Record is one outgoing message. Records with the same Key keep their order.
type Record struct {
	Key     string
	Value   []byte
	Headers map[string]string
}

// Producer writes to a single topic fixed at construction.
type Producer struct {
	w     messageWriter
	topic string
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			BatchTimeout:           50 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
		topic: topic,
	}
}

func newProducerWithWriter(w messageWriter, topic string) *Producer {
	return &Producer{w: w, topic: topic}
}

func (p *Producer) Topic() string { return p.topic }

func (p *Producer) Send(ctx context.Context, recs ...Record) error {
	if len(recs) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(recs))
	for _, r := range recs {
		msgs = append(msgs, kafka.Message{
			Key:     []byte(r.Key),
			Value:   r.Value,
			Headers: toHeaders(r.Headers),
		})
	}
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		return errors.Wrapf(err, "kafka send to %s", p.topic)
	}
	return nil
}

func (p *Producer) Close() error {
	if c, ok := p.w.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func toHeaders(m map[string]string) []kafka.Header {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]kafka.Header, 0, len(keys))
	for _, k := range keys {
		out = append(out, kafka.Header{Key: k, Value: []byte(m[k])})
	}
	return out
}

func fromHeaders(hs []kafka.Header) map[string]string {
	if len(hs) == 0 {
		return nil
	}
	out := make(map[string]string, len(hs))
	for _, h := range hs {
		out[h.Key] = string(h.Value)
	}
	return out
}
