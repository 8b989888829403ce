package journal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/CourierBox/internal/broker/kafka"
	"github.com/BearBump/CourierBox/internal/broker/messages"
	"github.com/BearBump/CourierBox/internal/models"
	"github.com/BearBump/CourierBox/internal/storage/pgjournal"
	"github.com/pkg/errors"
)

var ErrInvalidAction = errors.New("invalid courier action")

type Repository interface {
	InsertAction(ctx context.Context, rec models.ActionRecord) (bool, error)
	ListActions(ctx context.Context, f pgjournal.ActionFilter) ([]*models.ActionRecord, error)
}

type Service struct {
	repo Repository
}

func New(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Apply(ctx context.Context, msg messages.CourierAction) error {
	if msg.EventID == "" {
		return errors.Wrap(ErrInvalidAction, "event_id is required")
	}
	if msg.OrderID <= 0 {
		return errors.Wrap(ErrInvalidAction, "order_id is required")
	}
	switch models.ActionKind(msg.Action) {
	case models.ActionClaim, models.ActionUnclaim, models.ActionAdvance, models.ActionRevert:
	default:
		return errors.Wrapf(ErrInvalidAction, "unknown action %q", msg.Action)
	}
	if msg.At.IsZero() {
		msg.At = time.Now().UTC()
	}

	_, err := s.repo.InsertAction(ctx, models.ActionRecord{
		EventID:    msg.EventID,
		Courier:    msg.Courier,
		Action:     models.ActionKind(msg.Action),
		OrderID:    msg.OrderID,
		FromStatus: models.OrderStatus(msg.FromStatus),
		ToStatus:   models.OrderStatus(msg.ToStatus),
		OK:         msg.OK,
		Error:      msg.Error,
		At:         msg.At,
	})
	return err
}

func (s *Service) List(ctx context.Context, orderID int64, courier string, limit, offset int) ([]*models.ActionRecord, error) {
	return s.repo.ListActions(ctx, pgjournal.ActionFilter{
		OrderID: orderID,
		Courier: courier,
		Limit:   limit,
		Offset:  offset,
	})
}

// Handle is the journal's kafka handler. The event_id header stands in for a
// body that carries none.
func (s *Service) Handle(ctx context.Context, d kafka.Delivery) error {
	return s.handle(ctx, d.Value, d.Headers[HeaderEventID])
}

// HandleMessage decodes one kafka value and applies it. Values that can never be
// stored are reported as poison so the consumer commits past them.
func (s *Service) HandleMessage(ctx context.Context, value []byte) error {
	return s.handle(ctx, value, "")
}

func (s *Service) handle(ctx context.Context, value []byte, eventID string) error {
	var msg messages.CourierAction
	if err := json.Unmarshal(value, &msg); err != nil {
		return errors.Wrapf(kafka.ErrPoison, "decode courier action: %v", err)
	}
	if msg.EventID == "" {
		msg.EventID = eventID
	}
	if err := s.Apply(ctx, msg); err != nil {
		if errors.Is(err, ErrInvalidAction) {
			return errors.Wrapf(kafka.ErrPoison, "%v", err)
		}
		return errors.Wrap(err, "apply courier action")
	}
	return nil
}
