// Package journal records courier actions: the agent publishes them to kafka,
// the journal service stores and serves them.
package journal

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/BearBump/CourierBox/internal/broker/kafka"
	"github.com/BearBump/CourierBox/internal/broker/messages"
	"github.com/BearBump/CourierBox/internal/models"
	"github.com/google/uuid"
)

const DefaultTopic = "courier.actions"

const (
	publishTimeout = 5 * time.Second
	// queueSize bounds how many actions wait for kafka; beyond it they are dropped.
	queueSize = 256
)

const (
	HeaderEventID = "event_id"
	HeaderAction  = "action"
)

type Producer interface {
	Send(ctx context.Context, recs ...kafka.Record) error
}

// Publisher sends action records to kafka from its own goroutine, so a slow or
// unreachable broker never holds up a courier action. Losing a record only loses
// history: failures and overflow are logged and never reach the courier.
type Publisher struct {
	p       Producer
	queue   chan models.ActionRecord
	timeout time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewPublisher(p Producer) *Publisher {
	pb := &Publisher{
		p:       p,
		queue:   make(chan models.ActionRecord, queueSize),
		timeout: publishTimeout,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go pb.run()
	return pb
}

// Record queues rec and returns at once.
func (pb *Publisher) Record(_ context.Context, rec models.ActionRecord) {
	select {
	case <-pb.stop:
		slog.Warn("publisher closed, courier action dropped", "order_id", rec.OrderID, "action", rec.Action)
		return
	default:
	}
	select {
	case pb.queue <- rec:
	default:
		slog.Warn("journal queue full, courier action dropped", "order_id", rec.OrderID, "action", rec.Action)
	}
}

// Close publishes what is still queued, giving up after the publish timeout.
func (pb *Publisher) Close() error {
	pb.stopOnce.Do(func() { close(pb.stop) })
	<-pb.done
	return nil
}

func (pb *Publisher) run() {
	defer close(pb.done)
	for {
		select {
		case rec := <-pb.queue:
			pb.publish(context.Background(), rec)
		case <-pb.stop:
			ctx, cancel := context.WithTimeout(context.Background(), pb.timeout)
			defer cancel()
			for {
				select {
				case rec := <-pb.queue:
					pb.publish(ctx, rec)
				default:
					return
				}
			}
		}
	}
}

func (pb *Publisher) publish(ctx context.Context, rec models.ActionRecord) {
	msg := ToMessage(rec)
	b, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal courier action", "order_id", rec.OrderID, "error", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(ctx, pb.timeout)
	defer cancel()
	err = pb.p.Send(ctx, kafka.Record{
		Key:   strconv.FormatInt(rec.OrderID, 10),
		Value: b,
		Headers: map[string]string{
			HeaderEventID: msg.EventID,
			HeaderAction:  msg.Action,
		},
	})
	if err != nil {
		slog.Error("publish courier action", "order_id", rec.OrderID, "action", rec.Action, "error", err.Error())
		return
	}
	slog.Debug("courier action published", "event_id", msg.EventID, "order_id", rec.OrderID)
}

func ToMessage(rec models.ActionRecord) messages.CourierAction {
	id := rec.EventID
	if id == "" {
		id = uuid.NewString()
	}
	return messages.CourierAction{
		EventID:    id,
		Courier:    rec.Courier,
		Action:     string(rec.Action),
		OrderID:    rec.OrderID,
		FromStatus: string(rec.FromStatus),
		ToStatus:   string(rec.ToStatus),
		OK:         rec.OK,
		Error:      rec.Error,
		At:         rec.At,
	}
}
