package payment_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/kevin07696/payment-reconciler/internal/domain"
	"github.com/kevin07696/payment-reconciler/internal/services/payment"
	"github.com/kevin07696/payment-reconciler/internal/testutil/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// authorize brings the seeded payment to FULLY_AUTHORIZED (scenario A)
func (e *testEnv) authorize(t *testing.T, id string, amount int64) {
	t.Helper()
	_, err := e.service.Reconcile(context.Background(), id,
		fixtures.Notification(id, true, fixtures.Authorized(1, amount)))
	require.NoError(t, err)
}

func TestPaymentLifecycle_Scenarios(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t, testPaymentID, 10000)
	env.authorize(t, testPaymentID, 10000)

	remote := []domain.RemoteOperation{fixtures.Authorized(1, 10000)}

	t.Run("B: partial capture", func(t *testing.T) {
		env.gateway.On("Capture", mock.Anything, testPaymentID, int64(6000), testCallbackURL).Return(nil).Once()

		p, err := env.service.RequestCapture(ctx, testPaymentID, 6000)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusCaptureRequested, p.Status)

		ops := env.operations(t, testPaymentID)
		last := ops[len(ops)-1]
		assert.Equal(t, domain.OperationTypeCaptureRequest, last.Type)
		assert.Nil(t, last.OperationID)
		assert.Equal(t, int64(6000), last.Amount)

		remote = append(remote, fixtures.Captured(2, 6000))
		p, err = env.service.Reconcile(ctx, testPaymentID, fixtures.Notification(testPaymentID, true, remote...))
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusPartlyCaptured, p.Status)
		assert.Equal(t, int64(6000), p.AmountCaptured)
	})

	t.Run("C: remaining capture", func(t *testing.T) {
		env.gateway.On("Capture", mock.Anything, testPaymentID, int64(4000), testCallbackURL).Return(nil).Once()

		_, err := env.service.RequestCapture(ctx, testPaymentID, 4000)
		require.NoError(t, err)

		remote = append(remote, fixtures.Captured(3, 4000))
		p, err := env.service.Reconcile(ctx, testPaymentID, fixtures.Notification(testPaymentID, true, remote...))
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusFullyCaptured, p.Status)
		assert.Equal(t, int64(10000), p.AmountCaptured)
	})

	t.Run("D: full refund", func(t *testing.T) {
		env.gateway.On("Refund", mock.Anything, testPaymentID, int64(10000), testCallbackURL).Return(nil).Once()

		p, err := env.service.RequestRefund(ctx, testPaymentID, 10000)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusRefundRequested, p.Status)

		remote = append(remote, fixtures.Refunded(4, 10000))
		p, err = env.service.Reconcile(ctx, testPaymentID, fixtures.Notification(testPaymentID, true, remote...))
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusFullyRefunded, p.Status)
		assert.Equal(t, int64(10000), p.AmountRefunded)
		assert.True(t, p.Status.IsTerminal())
	})

	t.Run("refund after full refund is rejected", func(t *testing.T) {
		_, err := env.service.RequestRefund(ctx, testPaymentID, 1)
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeInvalidState))
	})

	env.gateway.AssertExpectations(t)
}

func TestRequestCapture_ScenarioE_InvalidState(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, testPaymentID, 10000)
	before := env.operations(t, testPaymentID)

	_, err := env.service.RequestCapture(context.Background(), testPaymentID, 5000)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidState))
	assert.Equal(t, before, env.operations(t, testPaymentID))
	env.gateway.AssertNotCalled(t, "Capture", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRequestActions_AmountValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, testPaymentID, 10000)
	env.authorize(t, testPaymentID, 10000)
	ctx := context.Background()

	for _, amount := range []int64{0, -100, 10001} {
		_, err := env.service.RequestCapture(ctx, testPaymentID, amount)
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeInvalidAmount), "amount %d", amount)
	}

	_, err := env.service.RequestRefund(ctx, testPaymentID, 100)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeInvalidState))

	assert.Len(t, env.operations(t, testPaymentID), 2)
	env.gateway.AssertNotCalled(t, "Capture", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRequestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("cancel authorized payment", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, testPaymentID, 10000)
		env.authorize(t, testPaymentID, 10000)
		env.gateway.On("Cancel", mock.Anything, testPaymentID, testCallbackURL).Return(nil).Once()

		p, err := env.service.RequestCancel(ctx, testPaymentID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusCancelRequested, p.Status)

		p, err = env.service.Reconcile(ctx, testPaymentID, fixtures.Notification(testPaymentID, true,
			fixtures.Authorized(1, 10000), fixtures.Cancelled(2)))
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusCancelled, p.Status)
	})

	t.Run("cancel after capture is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, testPaymentID, 10000)
		_, err := env.service.Reconcile(ctx, testPaymentID, fixtures.Notification(testPaymentID, true,
			fixtures.Authorized(1, 10000), fixtures.Captured(2, 5000)))
		require.NoError(t, err)

		_, err = env.service.RequestCancel(ctx, testPaymentID)
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeInvalidState))
	})
}

func TestRequestAction_RollbackOnGatewayFailure(t *testing.T) {
	gatewayErr := &domain.GatewayError{
		Method:     http.MethodPost,
		Resource:   "/payments/1001/capture",
		StatusCode: http.StatusBadRequest,
		Body:       `{"message":"Validation error"}`,
	}

	tests := []struct {
		name   string
		config func(*payment.Config)
		setup  func(env *testEnv, cancel context.CancelFunc)
		check  func(t *testing.T, err error)
	}{
		{
			name: "gateway error",
			setup: func(env *testEnv, _ context.CancelFunc) {
				env.gateway.On("Capture", mock.Anything, testPaymentID, int64(4000), testCallbackURL).Return(gatewayErr)
			},
			check: func(t *testing.T, err error) {
				var gwErr *domain.GatewayError
				require.ErrorAs(t, err, &gwErr)
				assert.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
			},
		},
		{
			name:   "gateway timeout",
			config: func(cfg *payment.Config) { cfg.GatewayTimeout = 20 * time.Millisecond },
			setup: func(env *testEnv, _ context.CancelFunc) {
				env.gateway.On("Capture", mock.Anything, testPaymentID, int64(4000), testCallbackURL).
					Run(func(args mock.Arguments) {
						<-args.Get(0).(context.Context).Done()
					}).
					Return(context.DeadlineExceeded)
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, context.DeadlineExceeded)
			},
		},
		{
			name: "caller cancels during the call",
			setup: func(env *testEnv, cancel context.CancelFunc) {
				env.gateway.On("Capture", mock.Anything, testPaymentID, int64(4000), testCallbackURL).
					Run(func(args mock.Arguments) {
						cancel()
						<-args.Get(0).(context.Context).Done()
					}).
					Return(context.Canceled)
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, context.Canceled)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []func(*payment.Config)
			if tt.config != nil {
				opts = append(opts, tt.config)
			}
			env := newTestEnv(t, opts...)
			env.seed(t, testPaymentID, 10000)
			env.authorize(t, testPaymentID, 10000)

			opsBefore := env.operations(t, testPaymentID)
			before := env.load(t, testPaymentID)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			tt.setup(env, cancel)

			p, err := env.service.RequestCapture(ctx, testPaymentID, 4000)
			require.Error(t, err)
			assert.Nil(t, p)
			tt.check(t, err)

			after := env.load(t, testPaymentID)
			assert.Equal(t, opsBefore, env.operations(t, testPaymentID))
			assert.Equal(t, before.Status, after.Status)
			assert.Equal(t, before.AmountAuthorized, after.AmountAuthorized)
			assert.Equal(t, before.AmountCaptured, after.AmountCaptured)
			assert.Equal(t, before.AmountRefunded, after.AmountRefunded)
			assert.True(t, env.logger.HasMessage("Gateway call failed, rolling back provisional operation"))
		})
	}
}

func TestRequestAction_RequestedStatusBlocksSecondAction(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, testPaymentID, 10000)
	env.authorize(t, testPaymentID, 10000)
	env.gateway.On("Capture", mock.Anything, testPaymentID, int64(5000), testCallbackURL).Return(nil).Once()

	_, err := env.service.RequestCapture(context.Background(), testPaymentID, 5000)
	require.NoError(t, err)

	_, err = env.service.RequestCapture(context.Background(), testPaymentID, 5000)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeInvalidState))
	env.gateway.AssertNumberOfCalls(t, "Capture", 1)
}
