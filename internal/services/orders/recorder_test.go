package orders

import (
	"context"
	"time"

	"github.com/BearBump/CourierBox/internal/broker/kafka"
	"github.com/BearBump/CourierBox/internal/models"
	"github.com/BearBump/CourierBox/internal/services/journal"
	"github.com/stretchr/testify/mock"

	ordersmocks "github.com/BearBump/CourierBox/internal/services/orders/mocks"
)

// deadBroker accepts the connection and never answers.
type deadBroker struct {
	sent chan struct{}
}

func (b *deadBroker) Send(ctx context.Context, _ ...kafka.Record) error {
	b.sent <- struct{}{}
	<-ctx.Done()
	return ctx.Err()
}

func (s *OrdersSuite) TestClaim_UnreachableJournalDoesNotDelayCourier() {
	s.api.On("ListOrders", mock.Anything).Return([]models.Order{
		mkOrder(1, models.OrderStatusPending, near[0], near[1]),
	}, nil).Once()
	s.api.On("AssignOrder", mock.Anything, int64(1)).Return((*models.Order)(nil), nil).Once()

	broker := &deadBroker{sent: make(chan struct{}, 1)}
	pub := journal.NewPublisher(broker)
	s.opts.Recorder = pub

	v := s.available(AvailableConfig{})
	s.Require().NoError(v.LoadAvailable(ctx(), center, 5))

	start := time.Now()
	res := v.Claim(ctx(), 1)
	s.Require().NoError(res.Err)
	s.Require().Less(time.Since(start), time.Second)

	// запись всё равно ушла в брокер, просто не на пути курьера
	select {
	case <-broker.sent:
	case <-time.After(time.Second):
		s.T().Fatal("claim was never handed to the journal")
	}
	s.api.AssertExpectations(s.T())
}

func (s *OrdersSuite) TestRecorders_FanOutSkipsNil() {
	second := &ordersmocks.MockRecorder{}
	rec := models.ActionRecord{Action: models.ActionClaim, OrderID: 5, OK: true}
	s.rec.On("Record", mock.Anything, rec).Once()
	second.On("Record", mock.Anything, rec).Once()

	Recorders{s.rec, nil, second}.Record(ctx(), rec)

	s.rec.AssertExpectations(s.T())
	second.AssertExpectations(s.T())
}
