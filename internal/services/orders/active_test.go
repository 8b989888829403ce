package orders

import (
	"time"

	"github.com/BearBump/CourierBox/internal/models"
	"github.com/BearBump/CourierBox/internal/services/banner"
	"github.com/stretchr/testify/mock"
)

func (s *OrdersSuite) activeOrder(id int64, status models.OrderStatus, changedAgo time.Duration) models.Order {
	o := claimed(mkOrder(id, status, 0, 0), "courier@example.com")
	o.StatusChangedAt = ts(s.clock.Now().Add(-changedAgo))
	return o
}

func (s *OrdersSuite) loadedActive(list ...models.Order) *ActiveView {
	s.api.On("AssignedOrders", mock.Anything).Return(list, nil).Once()
	v := NewActiveView(s.api, 0, s.opts)
	s.Require().NoError(v.Load(ctx()))
	return v
}

func (s *OrdersSuite) TestActive_ActionsFollowUndoWindow() {
	v := s.loadedActive(
		s.activeOrder(1, models.OrderStatusCourierOnTheWay, 5*time.Minute),
		s.activeOrder(2, models.OrderStatusCourierOnTheWayToMaster, time.Minute),
		claimed(mkOrder(3, models.OrderStatusAtLocation, 0, 0), "courier@example.com"),
	)

	got := v.Orders()
	s.Require().Len(got, 3)

	s.Require().Equal(models.OrderStatusAtLocation, *got[0].Actions.Next)
	s.Require().Equal(models.OrderStatusCourierAssigned, *got[0].Actions.Prev)
	s.Require().True(got[0].CanCancel)

	s.Require().Nil(got[1].Actions.Next)
	s.Require().Equal(models.OrderStatusAtLocation, *got[1].Actions.Prev)
	s.Require().False(got[1].CanCancel)

	// без status_changed_at действий нет
	s.Require().True(got[2].Actions.Empty())
	s.Require().True(got[2].CanCancel)

	s.clock.Advance(5*time.Minute + time.Second)
	got = v.Orders()
	s.Require().NotNil(got[0].Actions.Next)
	s.Require().Nil(got[0].Actions.Prev)
}

func (s *OrdersSuite) TestAdvance_RejectsWrongTargetBeforeNetwork() {
	v := s.loadedActive(s.activeOrder(1, models.OrderStatusCourierAssigned, time.Minute))

	res := v.AdvanceStatus(ctx(), 1, models.OrderStatusAtLocation)
	s.Require().ErrorIs(res.Err, ErrInvalidTransition)

	res = v.RevertStatus(ctx(), 1, models.OrderStatusPending)
	s.Require().ErrorIs(res.Err, ErrInvalidTransition)

	s.Require().ErrorIs(v.AdvanceStatus(ctx(), 99, models.OrderStatusCourierOnTheWay).Err, ErrUnknownOrder)
	s.api.AssertNotCalled(s.T(), "UpdateOrderStatus", mock.Anything, mock.Anything, mock.Anything)
}

func (s *OrdersSuite) TestAdvance_PatchesFromServerAnswer() {
	v := s.loadedActive(s.activeOrder(1, models.OrderStatusCourierAssigned, time.Hour))

	changed := ts(s.clock.Now())
	s.api.On("UpdateOrderStatus", mock.Anything, int64(1), models.OrderStatusCourierOnTheWay).
		Return(&models.Order{ID: 1, Status: models.OrderStatusCourierOnTheWay, StatusChangedAt: changed}, nil).Once()
	s.expectRecord(models.ActionAdvance, 1, true)

	res := v.AdvanceStatus(ctx(), 1, models.OrderStatusCourierOnTheWay)
	s.Require().NoError(res.Err)

	got := v.Orders()[0]
	s.Require().Equal(models.OrderStatusCourierOnTheWay, got.Status)
	s.Require().Equal(changed, got.StatusChangedAt)
	// только что сменили, значит откат доступен
	s.Require().Equal(models.OrderStatusCourierAssigned, *got.Actions.Prev)

	bn, ok := s.board.Current()
	s.Require().True(ok)
	s.Require().Equal(banner.KindSuccess, bn.Kind)
	s.clock.Advance(3 * time.Second)
	_, ok = s.board.Current()
	s.Require().False(ok)

	s.rec.AssertExpectations(s.T())
}

func (s *OrdersSuite) TestAdvance_NoBodyRefetchesOrder() {
	v := s.loadedActive(s.activeOrder(1, models.OrderStatusCourierOnTheWay, time.Hour))

	s.api.On("UpdateOrderStatus", mock.Anything, int64(1), models.OrderStatusAtLocation).
		Return((*models.Order)(nil), nil).Once()
	fresh := s.activeOrder(1, models.OrderStatusAtLocation, 0)
	s.api.On("GetOrder", mock.Anything, int64(1)).Return(fresh, nil).Once()
	s.expectRecord(models.ActionAdvance, 1, true)

	s.Require().NoError(v.AdvanceStatus(ctx(), 1, models.OrderStatusAtLocation).Err)
	got := v.Orders()[0]
	s.Require().Equal(models.OrderStatusAtLocation, got.Status)
	s.Require().Equal(fresh.StatusChangedAt, got.StatusChangedAt)
	s.api.AssertExpectations(s.T())
}

func (s *OrdersSuite) TestAdvance_ErrorLeavesStatus() {
	v := s.loadedActive(s.activeOrder(1, models.OrderStatusCourierOnTheWay, time.Hour))
	s.api.On("UpdateOrderStatus", mock.Anything, int64(1), models.OrderStatusAtLocation).
		Return((*models.Order)(nil), s.apiErr("Нельзя")).Once()
	s.expectRecord(models.ActionAdvance, 1, false)

	s.Require().Error(v.AdvanceStatus(ctx(), 1, models.OrderStatusAtLocation).Err)
	s.Require().Equal(models.OrderStatusCourierOnTheWay, v.Orders()[0].Status)
	bn, _ := s.board.Current()
	s.Require().Equal("Нельзя", bn.Text)
}

func (s *OrdersSuite) TestRevert_OutsideWindowRejected() {
	v := s.loadedActive(s.activeOrder(1, models.OrderStatusAtLocation, 11*time.Minute))
	s.Require().ErrorIs(v.RevertStatus(ctx(), 1, models.OrderStatusCourierOnTheWay).Err, ErrInvalidTransition)

	v = s.loadedActive(s.activeOrder(2, models.OrderStatusAtLocation, 10*time.Minute))
	s.api.On("UpdateOrderStatus", mock.Anything, int64(2), models.OrderStatusCourierOnTheWay).
		Return(&models.Order{ID: 2, Status: models.OrderStatusCourierOnTheWay, StatusChangedAt: ts(s.clock.Now())}, nil).Once()
	s.expectRecord(models.ActionRevert, 2, true)
	s.Require().NoError(v.RevertStatus(ctx(), 2, models.OrderStatusCourierOnTheWay).Err)
}

func (s *OrdersSuite) TestUnclaim() {
	v := s.loadedActive(
		s.activeOrder(1, models.OrderStatusCourierAssigned, time.Minute),
		s.activeOrder(2, models.OrderStatusCourierOnTheWayToMaster, time.Minute),
	)

	s.Require().ErrorIs(v.Unclaim(ctx(), 2).Err, ErrInvalidTransition)
	s.api.AssertNotCalled(s.T(), "UnassignOrder", mock.Anything, int64(2))

	s.api.On("UnassignOrder", mock.Anything, int64(1)).Return((*models.Order)(nil), nil).Once()
	s.rec.On("Record", mock.Anything, mock.MatchedBy(func(r models.ActionRecord) bool {
		return r.Action == models.ActionUnclaim && r.FromStatus == models.OrderStatusCourierAssigned && r.OK
	})).Once()

	s.Require().NoError(v.Unclaim(ctx(), 1).Err)
	s.Require().Equal([]int64{2}, ids(v.Orders()))
	bn, _ := s.board.Current()
	s.Require().Equal(unclaimSuccessText, bn.Text)
	s.rec.AssertExpectations(s.T())
}

func (s *OrdersSuite) TestHistory_SortedNewestFirst() {
	s.api.On("CompletedOrders", mock.Anything).Return([]models.Order{
		mkOrder(1, models.OrderStatusCompleted, 0, 0),
		mkOrder(3, models.OrderStatusCompleted, 0, 0),
		mkOrder(2, models.OrderStatusCancelled, 0, 0),
	}, nil).Once()

	v := NewHistoryView(s.api, s.opts)
	s.Require().NoError(v.Load(ctx()))
	got := v.Orders()
	s.Require().Equal([]int64{3, 2, 1}, ids(got))
	s.Require().Equal("Завершён", got[0].StatusLabel)
}

func (s *OrdersSuite) TestDetail_ClaimWithoutBodyUsesSessionEmail() {
	s.api.On("GetOrder", mock.Anything, int64(5)).Return(mkOrder(5, models.OrderStatusPending, 0, 0), nil).Once()
	s.api.On("AssignOrder", mock.Anything, int64(5)).Return((*models.Order)(nil), nil).Once()
	s.expectRecord(models.ActionClaim, 5, true)

	v := NewDetailView(s.api, func() string { return "courier@example.com" }, s.opts)
	_, err := v.Load(ctx(), 5)
	s.Require().NoError(err)

	s.Require().NoError(v.Claim(ctx(), 5).Err)
	cur, ok := v.Current()
	s.Require().True(ok)
	s.Require().NotNil(cur.Courier)
	s.Require().Equal(models.FlexString("courier@example.com"), *cur.Courier)

	// уже назначен, повторный отклик запрещён (после баннера)
	s.clock.Advance(2 * time.Second)
	s.Require().ErrorIs(v.Claim(ctx(), 5).Err, ErrInvalidTransition)
}

func (s *OrdersSuite) TestWorkspace_ActivationClosesPreviousAndResetForgetsHidden() {
	w := NewWorkspace(s.api, WorkspaceConfig{}, s.opts)
	first := w.Available()
	s.Require().Same(first, w.Available())

	second := w.ActivateAvailable()
	s.Require().True(first.Closed())
	s.Require().False(second.Closed())

	w.Hidden().Hide(7)
	s.board.Show(banner.KindSuccess, "x", 0, time.Minute)
	w.Reset()
	s.Require().True(second.Closed())
	s.Require().False(w.Hidden().IsHidden(7))
	_, ok := s.board.Current()
	s.Require().False(ok)
	s.Require().NotSame(second, w.Available())
}
