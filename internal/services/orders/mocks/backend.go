package mocks

import (
	"context"

	"github.com/BearBump/CourierBox/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) ListOrders(ctx context.Context) ([]models.Order, error) {
	args := m.Called(ctx)
	return orderList(args, 0), args.Error(1)
}

func (m *MockBackend) AssignedOrders(ctx context.Context) ([]models.Order, error) {
	args := m.Called(ctx)
	return orderList(args, 0), args.Error(1)
}

func (m *MockBackend) CompletedOrders(ctx context.Context) ([]models.Order, error) {
	args := m.Called(ctx)
	return orderList(args, 0), args.Error(1)
}

func (m *MockBackend) GetOrder(ctx context.Context, id int64) (models.Order, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Order), args.Error(1)
}

func (m *MockBackend) AssignOrder(ctx context.Context, id int64) (*models.Order, error) {
	args := m.Called(ctx, id)
	return orderPtr(args, 0), args.Error(1)
}

func (m *MockBackend) UnassignOrder(ctx context.Context, id int64) (*models.Order, error) {
	args := m.Called(ctx, id)
	return orderPtr(args, 0), args.Error(1)
}

func (m *MockBackend) UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) (*models.Order, error) {
	args := m.Called(ctx, id, status)
	return orderPtr(args, 0), args.Error(1)
}

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Record(ctx context.Context, rec models.ActionRecord) {
	m.Called(ctx, rec)
}

func orderList(args mock.Arguments, i int) []models.Order {
	v, _ := args.Get(i).([]models.Order)
	return v
}

func orderPtr(args mock.Arguments, i int) *models.Order {
	v, _ := args.Get(i).(*models.Order)
	return v
}
