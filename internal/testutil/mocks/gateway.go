package mocks

import (
	"context"

	"github.com/kevin07696/payment-reconciler/internal/domain"
	"github.com/kevin07696/payment-reconciler/internal/domain/ports"
	"github.com/stretchr/testify/mock"
)

// MockPaymentGateway mocks ports.PaymentGateway
type MockPaymentGateway struct {
	mock.Mock
}

var _ ports.PaymentGateway = (*MockPaymentGateway)(nil)

func (m *MockPaymentGateway) CreatePayment(ctx context.Context, req ports.CreatePaymentRequest) (*domain.Notification, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Notification), args.Error(1)
}

func (m *MockPaymentGateway) UpdatePayment(ctx context.Context, paymentID string, req ports.UpdatePaymentRequest) (*domain.Notification, error) {
	args := m.Called(ctx, paymentID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Notification), args.Error(1)
}

func (m *MockPaymentGateway) CreatePaymentLink(ctx context.Context, paymentID string, req ports.CreateLinkRequest) (string, error) {
	args := m.Called(ctx, paymentID, req)
	return args.String(0), args.Error(1)
}

func (m *MockPaymentGateway) GetPayment(ctx context.Context, paymentID string) (*domain.Notification, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Notification), args.Error(1)
}

func (m *MockPaymentGateway) Capture(ctx context.Context, paymentID string, amount int64, callbackURL string) error {
	args := m.Called(ctx, paymentID, amount, callbackURL)
	return args.Error(0)
}

func (m *MockPaymentGateway) Cancel(ctx context.Context, paymentID string, callbackURL string) error {
	args := m.Called(ctx, paymentID, callbackURL)
	return args.Error(0)
}

func (m *MockPaymentGateway) Refund(ctx context.Context, paymentID string, amount int64, callbackURL string) error {
	args := m.Called(ctx, paymentID, amount, callbackURL)
	return args.Error(0)
}

// MockEventPublisher mocks ports.EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

var _ ports.EventPublisher = (*MockEventPublisher)(nil)

func (m *MockEventPublisher) PublishStatusChanged(ctx context.Context, event domain.PaymentStatusChanged) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}
