package orders

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/CourierBox/internal/clock"
	"github.com/BearBump/CourierBox/internal/integrations/backend"
	"github.com/BearBump/CourierBox/internal/models"
	"github.com/BearBump/CourierBox/internal/services/banner"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	ordersmocks "github.com/BearBump/CourierBox/internal/services/orders/mocks"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func ts(t time.Time) string { return t.Format(time.RFC3339) }

func mkOrder(id int64, status models.OrderStatus, lat, lon float64) models.Order {
	o := models.Order{
		ID:        id,
		Status:    status,
		City:      "Москва",
		Street:    "Тверская",
		CreatedAt: ts(t0.Add(time.Duration(id) * time.Minute)),
	}
	if lat != 0 || lon != 0 {
		o.Latitude = models.NewFlexFloat(lat)
		o.Longitude = models.NewFlexFloat(lon)
	}
	return o
}

func claimed(o models.Order, who string) models.Order {
	c := models.FlexString(who)
	o.Courier = &c
	return o
}

type OrdersSuite struct {
	suite.Suite

	api   *ordersmocks.MockBackend
	rec   *ordersmocks.MockRecorder
	clock *clock.Fake
	board *banner.Board
	opts  Options
}

func (s *OrdersSuite) SetupTest() {
	s.api = &ordersmocks.MockBackend{}
	s.rec = &ordersmocks.MockRecorder{}
	s.clock = clock.NewFake(t0.Add(time.Hour))
	s.board = banner.NewBoard(s.clock)
	s.opts = Options{
		Clock:    s.clock,
		Board:    s.board,
		Recorder: s.rec,
		Courier:  func() string { return "courier@example.com" },
	}
}

func (s *OrdersSuite) available(cfg AvailableConfig) *AvailableView {
	return NewAvailableView(s.api, NewHiddenSet(), cfg, s.opts)
}

func (s *OrdersSuite) expectRecord(kind models.ActionKind, id int64, ok bool) {
	s.rec.On("Record", mock.Anything, mock.MatchedBy(func(r models.ActionRecord) bool {
		return r.Action == kind && r.OrderID == id && r.OK == ok && r.Courier == "courier@example.com"
	})).Once()
}

func (s *OrdersSuite) apiErr(msg string) error {
	return &backend.APIError{StatusCode: 400, Message: msg}
}

func ids(items []Item) []int64 {
	out := make([]int64, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func ctx() context.Context { return context.Background() }

func TestOrdersSuite(t *testing.T) {
	suite.Run(t, new(OrdersSuite))
}
