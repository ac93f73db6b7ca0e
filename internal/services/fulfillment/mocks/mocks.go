// Package mocks holds testify mocks for the fulfillment collaborators.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/models"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(*models.Order)
	return o, args.Error(1)
}

func (m *MockRepository) SaveLabel(ctx context.Context, res models.LabelResult, status models.OrderStatus) error {
	args := m.Called(ctx, res, status)
	return args.Error(0)
}

type MockCarrier struct {
	mock.Mock
}

func (m *MockCarrier) CreateLabel(ctx context.Context, payload *carrier.LabelPayload) (*carrier.LabelResponse, error) {
	args := m.Called(ctx, payload)
	r, _ := args.Get(0).(*carrier.LabelResponse)
	return r, args.Error(1)
}

func (m *MockCarrier) GetPrice(ctx context.Context, req carrier.PriceRequest) (*carrier.PriceResult, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*carrier.PriceResult)
	return r, args.Error(1)
}

func (m *MockCarrier) GetDeliveryTime(ctx context.Context, req carrier.DeliveryTimeRequest) (*carrier.DeliveryTimeResult, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*carrier.DeliveryTimeResult)
	return r, args.Error(1)
}
