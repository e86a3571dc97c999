package payment_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/kevin07696/payment-reconciler/internal/domain"
	"github.com/kevin07696/payment-reconciler/internal/services/payment"
	"github.com/kevin07696/payment-reconciler/internal/testutil/fixtures"
	"github.com/kevin07696/payment-reconciler/internal/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func remotePayment(id string, amount int64, ops ...domain.RemoteOperation) *domain.Notification {
	n := fixtures.Notification(id, true, ops...)
	n.Link = &domain.RemoteLink{URL: "https://payment.unzerdirect.com/payments/" + id, Amount: amount}
	n.CreatedAt = fixtures.TimePtr(fixtures.BaseTime)
	n.Raw = fixtures.NotificationBody(n)
	return n
}

func TestImportPayment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	remote := remotePayment("4004", 7500, fixtures.Authorized(1, 7500), fixtures.Captured(2, 2500))
	env.gateway.On("GetPayment", mock.Anything, "4004").Return(remote, nil).Once()

	p, err := env.service.ImportPayment(ctx, "4004", payment.ImportPaymentInput{
		CustomerID:  "customer-9",
		OrderNumber: "20001",
	})
	require.NoError(t, err)

	assert.Equal(t, "order-4004", p.OrderID)
	assert.Equal(t, "customer-9", p.CustomerID)
	assert.Equal(t, int64(7500), p.Amount)
	require.NotNil(t, p.Link)
	assert.Equal(t, "https://payment.unzerdirect.com/payments/4004", *p.Link)
	require.NotNil(t, p.OrderNumber)
	assert.Equal(t, "20001", *p.OrderNumber)
	assert.Equal(t, domain.PaymentStatusPartlyCaptured, p.Status)
	assert.Equal(t, int64(2500), p.AmountCaptured)

	stored := env.load(t, "4004")
	assert.Equal(t, p.Status, stored.Status)

	ops := env.operations(t, "4004")
	require.Len(t, ops, 3)
	assert.Equal(t, domain.OperationTypeCreate, ops[0].Type)
	assert.Nil(t, ops[0].OperationID)
	require.NotNil(t, ops[0].GatewayCreatedAt)
	assert.True(t, fixtures.BaseTime.Equal(*ops[0].GatewayCreatedAt))
	assert.JSONEq(t, string(remote.Raw), string(ops[0].Payload))
	assert.Equal(t, 1, countType(ops, domain.OperationTypeAuthorize))
	assert.Equal(t, 1, countType(ops, domain.OperationTypeCapture))

	env.gateway.AssertExpectations(t)
}

func TestImportPayment_PublishesStatus(t *testing.T) {
	env := newTestEnv(t)
	events := new(mocks.MockEventPublisher)
	service := newServiceWithEvents(t, env, events)

	env.gateway.On("GetPayment", mock.Anything, "4004").
		Return(remotePayment("4004", 7500, fixtures.Authorized(1, 7500)), nil).Once()
	events.On("PublishStatusChanged", mock.Anything, mock.MatchedBy(func(e domain.PaymentStatusChanged) bool {
		return e.PaymentID == "4004" &&
			e.PreviousStatus == domain.PaymentStatusCreated.String() &&
			e.Status == domain.PaymentStatusFullyAuthorized.String() &&
			e.OrderNumber != nil && *e.OrderNumber == "20001"
	})).Return(nil).Once()

	_, err := service.ImportPayment(context.Background(), "4004", payment.ImportPaymentInput{
		CustomerID:  "customer-9",
		OrderNumber: "20001",
	})
	require.NoError(t, err)
	events.AssertExpectations(t)
}

func TestImportPayment_AlreadyStored(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, testPaymentID, 10000)

	_, err := env.service.ImportPayment(context.Background(), testPaymentID, payment.ImportPaymentInput{CustomerID: "customer-1"})
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodePaymentExists))
	env.gateway.AssertNotCalled(t, "GetPayment", mock.Anything, mock.Anything)
}

func TestImportPayment_Failures(t *testing.T) {
	tests := []struct {
		name   string
		remote *domain.Notification
		err    error
		check  func(t *testing.T, err error)
	}{
		{
			name: "gateway unavailable",
			err:  &domain.GatewayError{Resource: "/payments/4004", Err: errors.New("connection refused")},
			check: func(t *testing.T, err error) {
				assert.True(t, domain.IsGatewayError(err))
			},
		},
		{
			name:   "no payment link",
			remote: fixtures.Notification("4004", true, fixtures.Authorized(1, 7500)),
			check: func(t *testing.T, err error) {
				assert.True(t, domain.IsDomainError(err, domain.ErrorCodeReconciliationFailed))
			},
		},
		{
			name:   "different payment",
			remote: remotePayment("5005", 7500),
			check: func(t *testing.T, err error) {
				assert.True(t, domain.IsDomainError(err, domain.ErrorCodeReconciliationFailed))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.err != nil {
				env.gateway.On("GetPayment", mock.Anything, "4004").Return(nil, tt.err).Once()
			} else {
				env.gateway.On("GetPayment", mock.Anything, "4004").Return(tt.remote, nil).Once()
			}

			_, err := env.service.ImportPayment(context.Background(), "4004", payment.ImportPaymentInput{CustomerID: "customer-9"})
			require.Error(t, err)
			tt.check(t, err)

			_, err = env.service.GetPayment(context.Background(), "4004")
			assert.True(t, domain.IsNotFoundError(err), "nothing is stored")
		})
	}
}

func TestImportPayment_RequiresCustomer(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.ImportPayment(context.Background(), "4004", payment.ImportPaymentInput{})
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeValidationFailed))
}

func TestImportPayment_RawPayloadIsStoredVerbatim(t *testing.T) {
	env := newTestEnv(t)

	body := []byte(`{"id":4004,"order_id":"order-4004","currency":"EUR","test_mode":true,"accepted":true,` +
		`"link":{"url":"https://payment.unzerdirect.com/payments/4004","amount":7500},` +
		`"operations":[{"id":1,"type":"authorize","amount":7500,"qp_status_code":"20000","acquirer":"clearhaus"}]}`)
	remote, err := domain.DecodeNotification(body)
	require.NoError(t, err)
	env.gateway.On("GetPayment", mock.Anything, "4004").Return(remote, nil).Once()

	_, err = env.service.ImportPayment(context.Background(), "4004", payment.ImportPaymentInput{CustomerID: "customer-9"})
	require.NoError(t, err)

	ops := env.operations(t, "4004")
	require.Len(t, ops, 2)
	assert.JSONEq(t, string(body), string(ops[0].Payload))

	var stored map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(ops[1].Payload, &stored))
	assert.JSONEq(t, `"clearhaus"`, string(stored["acquirer"]))
}
