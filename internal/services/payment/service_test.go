package payment_test

import (
	"context"
	"testing"
	"time"

	"github.com/kevin07696/payment-reconciler/internal/adapters/memory"
	"github.com/kevin07696/payment-reconciler/internal/domain"
	"github.com/kevin07696/payment-reconciler/internal/services/payment"
	"github.com/kevin07696/payment-reconciler/internal/testutil/fixtures"
	"github.com/kevin07696/payment-reconciler/internal/testutil/mocks"
	"github.com/kevin07696/payment-reconciler/pkg/timeutil"
	"github.com/stretchr/testify/require"
)

const (
	testPaymentID   = "1001"
	testPrivateKey  = "private-key"
	testCallbackURL = "https://shop.example.com/api/v1/callbacks/unzerdirect"
)

type testEnv struct {
	service *payment.Service
	store   *memory.Store
	baskets *memory.BasketStore
	gateway *mocks.MockPaymentGateway
	logger  *mocks.MockLogger
	clock   *timeutil.StepClock
}

func newTestEnv(t *testing.T, opts ...func(*payment.Config)) *testEnv {
	t.Helper()

	env := &testEnv{
		store:   memory.NewStore(),
		baskets: memory.NewBasketStore(),
		gateway: new(mocks.MockPaymentGateway),
		logger:  mocks.NewMockLogger(),
		clock:   timeutil.NewStepClock(fixtures.BaseTime.Add(time.Hour), time.Millisecond),
	}

	cfg := payment.DefaultConfig()
	cfg.CallbackURL = testCallbackURL
	cfg.ContinueURL = "https://shop.example.com/checkout/finish"
	cfg.CancelURL = "https://shop.example.com/checkout/cancel"
	cfg.PrivateKey = testPrivateKey
	cfg.TestMode = true
	for _, opt := range opts {
		opt(&cfg)
	}

	env.service = payment.NewService(payment.Dependencies{
		DB:         env.store,
		Payments:   env.store.Payments(),
		Operations: env.store.Operations(),
		Gateway:    env.gateway,
		Baskets:    env.baskets,
		Clock:      env.clock,
		Logger:     env.logger,
	}, cfg)

	return env
}

// seed stores a CREATED payment with its create operation
func (e *testEnv) seed(t *testing.T, id string, amount int64) *domain.Payment {
	t.Helper()
	ctx := context.Background()

	now := e.clock.Now()
	p := &domain.Payment{
		ID:         id,
		OrderID:    "order-" + id,
		CustomerID: "customer-1",
		Currency:   "EUR",
		Amount:     amount,
		Status:     domain.PaymentStatusCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, e.store.Payments().Create(ctx, nil, p))
	require.NoError(t, e.store.Operations().Append(ctx, nil, &domain.Operation{
		PaymentID: id,
		Type:      domain.OperationTypeCreate,
		CreatedAt: now,
	}))
	return p
}

func (e *testEnv) load(t *testing.T, id string) *domain.Payment {
	t.Helper()
	p, err := e.service.GetPayment(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (e *testEnv) operations(t *testing.T, id string) []*domain.Operation {
	t.Helper()
	ops, err := e.service.ListOperations(context.Background(), id)
	require.NoError(t, err)
	return ops
}

func countType(ops []*domain.Operation, opType domain.OperationType) int {
	n := 0
	for _, op := range ops {
		if op.Type == opType {
			n++
		}
	}
	return n
}
