package orders

import (
	"context"
	"time"

	"github.com/BearBump/CourierBox/internal/models"
	"github.com/BearBump/CourierBox/internal/services/banner"
	"github.com/stretchr/testify/mock"
)

// центр Москвы и точки вокруг него
var (
	center = models.GeoPoint{Lat: 55.7558, Lon: 37.6173}
	near   = [2]float64{55.7600, 37.6200} // ~0.5 км
	mid    = [2]float64{55.7800, 37.6500} // ~3.3 км
	far    = [2]float64{59.9343, 30.3351} // Санкт-Петербург
)

func (s *OrdersSuite) TestLoadAvailable_FiltersCandidates() {
	s.api.On("ListOrders", mock.Anything).Return([]models.Order{
		mkOrder(1, models.OrderStatusPending, near[0], near[1]),
		claimed(mkOrder(2, models.OrderStatusPending, near[0], near[1]), "other@example.com"),
		mkOrder(3, models.OrderStatusCourierAssigned, near[0], near[1]),
		mkOrder(4, models.OrderStatusPending, far[0], far[1]),
		mkOrder(5, models.OrderStatusPending, 0, 0),
		mkOrder(6, models.OrderStatusPending, mid[0], mid[1]),
	}, nil).Once()

	v := s.available(AvailableConfig{})
	s.Require().NoError(v.LoadAvailable(ctx(), center, 5))

	snap := v.Snapshot()
	s.Require().Equal(LocationProvided, snap.Source)
	s.Require().Equal(3, snap.Total)
	// по умолчанию новые сверху
	s.Require().Equal([]int64{6, 5, 1}, ids(snap.Orders))
	for _, it := range snap.Orders {
		if it.ID == 5 {
			s.Require().Nil(it.DistanceKm)
			continue
		}
		s.Require().NotNil(it.DistanceKm)
		s.Require().LessOrEqual(*it.DistanceKm, 5.0)
	}
	s.api.AssertExpectations(s.T())
}

func (s *OrdersSuite) TestLoadAvailable_DevModeKeepsFarOrders() {
	s.api.On("ListOrders", mock.Anything).Return([]models.Order{
		mkOrder(1, models.OrderStatusPending, near[0], near[1]),
		mkOrder(4, models.OrderStatusPending, far[0], far[1]),
	}, nil).Once()

	v := s.available(AvailableConfig{DevMode: true})
	s.Require().NoError(v.LoadAround(ctx()))
	s.Require().Equal(LocationDefault, v.Snapshot().Source)

	v.SetFilters(Filters{Sort: SortDistanceDesc})
	got := v.Orders()
	s.Require().Equal([]int64{4, 1}, ids(got))
	s.Require().Greater(*got[0].DistanceKm, 600.0)
}

func (s *OrdersSuite) TestLoadAround_DefaultRadiusIsFiftyKm() {
	zelenograd := [2]float64{55.9825, 37.1814} // ~37 км
	s.api.On("ListOrders", mock.Anything).Return([]models.Order{
		mkOrder(1, models.OrderStatusPending, near[0], near[1]),
		mkOrder(2, models.OrderStatusPending, zelenograd[0], zelenograd[1]),
		mkOrder(4, models.OrderStatusPending, far[0], far[1]),
	}, nil).Once()

	v := s.available(AvailableConfig{})
	s.Require().NoError(v.LoadAround(ctx()))
	s.Require().Equal(DefaultRadiusKm, v.Snapshot().RadiusKm)

	v.SetFilters(Filters{Sort: SortDistanceAsc})
	s.Require().Equal([]int64{1, 2}, ids(v.Orders()))
}

func (s *OrdersSuite) TestLoadAvailable_BackendErrorClearsList() {
	s.api.On("ListOrders", mock.Anything).Return([]models.Order{
		mkOrder(1, models.OrderStatusPending, near[0], near[1]),
	}, nil).Once()
	s.api.On("ListOrders", mock.Anything).Return(nil, s.apiErr("boom")).Once()

	v := s.available(AvailableConfig{})
	s.Require().NoError(v.LoadAvailable(ctx(), center, 5))
	s.Require().Len(v.Orders(), 1)

	s.Require().Error(v.LoadAvailable(ctx(), center, 5))
	s.Require().Empty(v.Orders())
}

func (s *OrdersSuite) TestFilters_SearchStatusAndDistanceSort() {
	a := mkOrder(1, models.OrderStatusPending, mid[0], mid[1])
	a.Street = "Арбат"
	b := mkOrder(2, models.OrderStatusPending, near[0], near[1])
	b.City = "МОСКВА"
	b.BuildingNum = "12к3"
	c := mkOrder(3, models.OrderStatusPending, 0, 0)
	s.api.On("ListOrders", mock.Anything).Return([]models.Order{a, b, c}, nil).Once()

	v := s.available(AvailableConfig{})
	s.Require().NoError(v.LoadAvailable(ctx(), center, 5))

	v.SetFilters(Filters{Search: "арбат"})
	s.Require().Equal([]int64{1}, ids(v.Orders()))

	v.SetFilters(Filters{Search: "12К"})
	s.Require().Equal([]int64{2}, ids(v.Orders()))

	v.SetFilters(Filters{Sort: SortDistanceAsc})
	s.Require().Equal([]int64{2, 1, 3}, ids(v.Orders()))

	v.SetFilters(Filters{Sort: SortDateAsc})
	s.Require().Equal([]int64{1, 2, 3}, ids(v.Orders()))

	v.SetFilters(Filters{Status: models.OrderStatusCompleted})
	s.Require().Empty(v.Orders())
}

func (s *OrdersSuite) TestClaim_SuccessRemovesOrderAndShowsBanner() {
	s.api.On("ListOrders", mock.Anything).Return([]models.Order{
		mkOrder(1, models.OrderStatusPending, near[0], near[1]),
		mkOrder(2, models.OrderStatusPending, near[0], near[1]),
	}, nil).Once()
	s.api.On("AssignOrder", mock.Anything, int64(1)).Return((*models.Order)(nil), nil).Once()
	s.expectRecord(models.ActionClaim, 1, true)

	v := s.available(AvailableConfig{})
	s.Require().NoError(v.LoadAvailable(ctx(), center, 5))

	res := v.Claim(ctx(), 1)
	s.Require().NoError(res.Err)
	s.Require().Equal([]int64{2}, ids(v.Orders()))

	bn, ok := s.board.Current()
	s.Require().True(ok)
	s.Require().Equal(banner.KindSuccess, bn.Kind)
	s.Require().Equal(claimSuccessText, bn.Text)

	s.clock.Advance(2 * time.Second)
	_, ok = s.board.Current()
	s.Require().False(ok)

	s.api.AssertExpectations(s.T())
	s.rec.AssertExpectations(s.T())
}

func (s *OrdersSuite) TestClaim_ErrorKeepsOrderAndBlocksUntilBannerExpires() {
	s.api.On("ListOrders", mock.Anything).Return([]models.Order{
		mkOrder(1, models.OrderStatusPending, near[0], near[1]),
	}, nil).Once()
	s.api.On("AssignOrder", mock.Anything, int64(1)).Return((*models.Order)(nil), s.apiErr("Заказ уже занят")).Once()
	s.expectRecord(models.ActionClaim, 1, false)

	v := s.available(AvailableConfig{})
	s.Require().NoError(v.LoadAvailable(ctx(), center, 5))

	res := v.Claim(ctx(), 1)
	s.Require().Error(res.Err)
	s.Require().Equal([]int64{1}, ids(v.Orders()))

	bn, ok := s.board.Current()
	s.Require().True(ok)
	s.Require().Equal(banner.KindError, bn.Kind)
	s.Require().Equal("Заказ уже занят", bn.Text)

	// пока баннер про этот заказ на экране, повторить нельзя
	s.Require().ErrorIs(v.Claim(ctx(), 1).Err, ErrActionPending)

	s.clock.Advance(5 * time.Second)
	s.api.On("AssignOrder", mock.Anything, int64(1)).Return((*models.Order)(nil), nil).Once()
	s.expectRecord(models.ActionClaim, 1, true)
	s.Require().NoError(v.Claim(ctx(), 1).Err)
	s.api.AssertExpectations(s.T())
}

func (s *OrdersSuite) TestClaim_UnknownOrderNeverCallsBackend() {
	v := s.available(AvailableConfig{})
	res := v.Claim(ctx(), 42)
	s.Require().ErrorIs(res.Err, ErrUnknownOrder)
	s.Require().True(IsValidation(res.Err))
	s.api.AssertNotCalled(s.T(), "AssignOrder", mock.Anything, mock.Anything)
	s.rec.AssertNotCalled(s.T(), "Record", mock.Anything, mock.Anything)
}

func (s *OrdersSuite) TestClaim_InFlightGuardAndClosedViewDropsResult() {
	s.api.On("ListOrders", mock.Anything).Return([]models.Order{
		mkOrder(1, models.OrderStatusPending, near[0], near[1]),
	}, nil).Once()

	entered := make(chan struct{})
	release := make(chan struct{})
	s.api.On("AssignOrder", mock.Anything, int64(1)).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return((*models.Order)(nil), nil).Once()
	s.expectRecord(models.ActionClaim, 1, true)

	v := s.available(AvailableConfig{})
	s.Require().NoError(v.LoadAvailable(ctx(), center, 5))

	done := make(chan Result, 1)
	go func() { done <- v.Claim(context.Background(), 1) }()
	<-entered

	s.Require().ErrorIs(v.Claim(ctx(), 1).Err, ErrActionPending)

	v.Close()
	close(release)
	res := <-done
	s.Require().NoError(res.Err)
	s.Require().True(res.Dropped)

	// закрытый вид не меняется и баннер не показывает
	_, ok := s.board.Current()
	s.Require().False(ok)
	s.Require().Len(v.Orders(), 1)
	s.rec.AssertExpectations(s.T())
}

func (s *OrdersSuite) TestHide_IsLocalAndSurvivesReload() {
	s.api.On("ListOrders", mock.Anything).Return([]models.Order{
		mkOrder(1, models.OrderStatusPending, near[0], near[1]),
		mkOrder(2, models.OrderStatusPending, near[0], near[1]),
	}, nil).Twice()

	hidden := NewHiddenSet()
	v := NewAvailableView(s.api, hidden, AvailableConfig{}, s.opts)
	s.Require().NoError(v.LoadAvailable(ctx(), center, 5))
	v.Hide(2)
	s.Require().Equal([]int64{1}, ids(v.Orders()))

	v.Close()
	v2 := NewAvailableView(s.api, hidden, AvailableConfig{}, s.opts)
	s.Require().NoError(v2.LoadAvailable(ctx(), center, 5))
	s.Require().Equal([]int64{1}, ids(v2.Orders()))
	s.Require().Equal(1, v2.Snapshot().Hidden)

	s.api.AssertNotCalled(s.T(), "AssignOrder", mock.Anything, mock.Anything)
	s.api.AssertNotCalled(s.T(), "UnassignOrder", mock.Anything, mock.Anything)
}

func (s *OrdersSuite) TestLoad_AfterCloseIsRejected() {
	v := s.available(AvailableConfig{})
	v.Close()
	s.Require().ErrorIs(v.LoadAvailable(ctx(), center, 5), ErrClosed)
	s.api.AssertNotCalled(s.T(), "ListOrders", mock.Anything)
}

func (s *OrdersSuite) TestLoadAvailable_NothingClaimable() {
	done := claimed(mkOrder(1, models.OrderStatusCompleted, near[0], near[1]), "other@example.com")
	s.api.On("ListOrders", mock.Anything).Return([]models.Order{
		done,
		claimed(mkOrder(2, models.OrderStatusPending, near[0], near[1]), "other@example.com"),
		mkOrder(3, models.OrderStatusCourierAssigned, near[0], near[1]),
	}, nil).Once()

	v := s.available(AvailableConfig{DevMode: true})
	s.Require().NoError(v.LoadAvailable(ctx(), center, 5))
	s.Require().Empty(v.Orders())
	s.Require().Equal(0, v.Snapshot().Total)
}
