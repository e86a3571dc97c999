package payment_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/kevin07696/payment-reconciler/internal/domain"
	"github.com/kevin07696/payment-reconciler/internal/services/payment"
	"github.com/kevin07696/payment-reconciler/internal/testutil/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile_ScenarioA_FullAuthorization(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, testPaymentID, 10000)

	p, err := env.service.Reconcile(context.Background(), testPaymentID,
		fixtures.Notification(testPaymentID, true, fixtures.Authorized(1, 10000)))
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusFullyAuthorized, p.Status)
	assert.Equal(t, int64(10000), p.AmountAuthorized)

	stored := env.load(t, testPaymentID)
	assert.Equal(t, domain.PaymentStatusFullyAuthorized, stored.Status)

	ops := env.operations(t, testPaymentID)
	require.Len(t, ops, 2)
	require.NotNil(t, ops[1].OperationID)
	assert.Equal(t, "1", *ops[1].OperationID)
	assert.Equal(t, domain.OperationOutcomeSuccess, ops[1].Outcome)
	require.NotNil(t, ops[1].GatewayCreatedAt)
}

func TestReconcile_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, testPaymentID, 10000)
	ctx := context.Background()

	n := fixtures.Notification(testPaymentID, true,
		fixtures.Authorized(1, 10000),
		fixtures.Captured(2, 4000),
		fixtures.Refunded(3, 1000))

	first, err := env.service.Reconcile(ctx, testPaymentID, n)
	require.NoError(t, err)
	opsOnce := env.operations(t, testPaymentID)

	second, err := env.service.Reconcile(ctx, testPaymentID, n)
	require.NoError(t, err)
	opsTwice := env.operations(t, testPaymentID)

	assert.Equal(t, opsOnce, opsTwice)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, domain.PaymentStatusPartlyRefunded, second.Status)
	assert.Equal(t, first.AmountAuthorized, second.AmountAuthorized)
	assert.Equal(t, first.AmountCaptured, second.AmountCaptured)
	assert.Equal(t, first.AmountRefunded, second.AmountRefunded)
}

func TestReconcile_OrderIndependentWithinNotification(t *testing.T) {
	ops := []domain.RemoteOperation{
		fixtures.Authorized(1, 10000),
		fixtures.Captured(2, 6000),
		fixtures.Captured(3, 4000),
		fixtures.Refunded(4, 2500),
	}
	permutations := [][]int{
		{0, 1, 2, 3},
		{3, 2, 1, 0},
		{2, 0, 3, 1},
	}

	var (
		baseline    []*domain.Operation
		baselineSum *domain.Payment
	)
	for i, perm := range permutations {
		env := newTestEnv(t)
		env.seed(t, testPaymentID, 10000)

		remote := make([]domain.RemoteOperation, len(perm))
		for j, idx := range perm {
			remote[j] = ops[idx]
		}

		p, err := env.service.Reconcile(context.Background(), testPaymentID,
			fixtures.Notification(testPaymentID, true, remote...))
		require.NoError(t, err)

		log := env.operations(t, testPaymentID)
		if i == 0 {
			baseline, baselineSum = log, p
			continue
		}
		assert.Equal(t, baseline, log, "permutation %v", perm)
		assert.Equal(t, baselineSum.Status, p.Status)
		assert.Equal(t, baselineSum.AmountCaptured, p.AmountCaptured)
		assert.Equal(t, baselineSum.AmountRefunded, p.AmountRefunded)
	}
	assert.Equal(t, domain.PaymentStatusPartlyRefunded, baselineSum.Status)
}

func TestReconcile_UpdatesMatchedOperationInPlace(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, testPaymentID, 10000)
	ctx := context.Background()

	_, err := env.service.Reconcile(ctx, testPaymentID, fixtures.Notification(testPaymentID, true,
		fixtures.Authorized(1, 10000),
		fixtures.Pending(fixtures.Captured(2, 10000))))
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFullyAuthorized, env.load(t, testPaymentID).Status)
	before := env.operations(t, testPaymentID)

	p, err := env.service.Reconcile(ctx, testPaymentID, fixtures.Notification(testPaymentID, true,
		fixtures.Authorized(1, 10000),
		fixtures.Captured(2, 10000)))
	require.NoError(t, err)

	after := env.operations(t, testPaymentID)
	require.Len(t, after, len(before))
	assert.Equal(t, before[2].ID, after[2].ID)
	assert.Equal(t, domain.OperationOutcomePending, before[2].Outcome)
	assert.Equal(t, domain.OperationOutcomeSuccess, after[2].Outcome)
	assert.Equal(t, domain.PaymentStatusFullyCaptured, p.Status)
}

func TestReconcile_DuplicateRemoteIDLastWins(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, testPaymentID, 10000)

	p, err := env.service.Reconcile(context.Background(), testPaymentID, fixtures.Notification(testPaymentID, true,
		fixtures.Pending(fixtures.Authorized(1, 10000)),
		fixtures.Authorized(1, 10000)))
	require.NoError(t, err)

	ops := env.operations(t, testPaymentID)
	assert.Len(t, ops, 2)
	assert.Equal(t, domain.PaymentStatusFullyAuthorized, p.Status)
}

func TestReconcile_MalformedNotificationAppliesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, testPaymentID, 10000)

	broken := fixtures.Captured(2, 5000)
	broken.Type = ""

	_, err := env.service.Reconcile(context.Background(), testPaymentID,
		fixtures.Notification(testPaymentID, true, fixtures.Authorized(1, 10000), broken))
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeReconciliationFailed))

	assert.Len(t, env.operations(t, testPaymentID), 1)
	assert.Equal(t, domain.PaymentStatusCreated, env.load(t, testPaymentID).Status)
}

func TestReconcile_RejectsNotificationForOtherPayment(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, testPaymentID, 10000)

	_, err := env.service.Reconcile(context.Background(), testPaymentID,
		fixtures.Notification("2002", true, fixtures.Authorized(1, 10000)))
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeReconciliationFailed))
	assert.Len(t, env.operations(t, testPaymentID), 1)
}

func TestReconcile_SerialisesConcurrentDeliveries(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, testPaymentID, 10000)
	env.seed(t, "1002", 10000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			n := fixtures.Notification(testPaymentID, true,
				fixtures.Authorized(1, 10000),
				fixtures.Captured(int64(i+2), 100))
			_, err := env.service.Reconcile(context.Background(), testPaymentID, n)
			assert.NoError(t, err)
		}(i)
		go func() {
			defer wg.Done()
			_, err := env.service.Reconcile(context.Background(), "1002",
				fixtures.Notification("1002", true, fixtures.Authorized(1, 10000)))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p := env.load(t, testPaymentID)
	assert.Equal(t, int64(1000), p.AmountCaptured)
	assert.Equal(t, domain.PaymentStatusPartlyCaptured, p.Status)

	ops := env.operations(t, testPaymentID)
	assert.Equal(t, 1, countType(ops, domain.OperationTypeAuthorize))
	assert.Equal(t, 10, countType(ops, domain.OperationTypeCapture))

	assert.Equal(t, 1, countType(env.operations(t, "1002"), domain.OperationTypeAuthorize))
}

func TestHandleCallback(t *testing.T) {
	ctx := context.Background()

	t.Run("valid checksum reconciles", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, testPaymentID, 10000)

		body := fixtures.NotificationBody(fixtures.Notification(testPaymentID, true, fixtures.Authorized(1, 10000)))
		p, err := env.service.HandleCallback(ctx, body, payment.ComputeChecksum(body, testPrivateKey))
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusFullyAuthorized, p.Status)
	})

	t.Run("opaque string ids reconcile", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, "pay_abc", 10000)

		body := []byte(`{"id":"pay_abc","test_mode":true,"operations":[{"id":"op-7","type":"authorize","amount":10000,"qp_status_code":"20000","acquirer":"clearhaus","data":{"card":"visa"}}]}`)
		p, err := env.service.HandleCallback(ctx, body, payment.ComputeChecksum(body, testPrivateKey))
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusFullyAuthorized, p.Status)

		ops := env.operations(t, "pay_abc")
		require.Len(t, ops, 2)
		require.NotNil(t, ops[1].OperationID)
		assert.Equal(t, "op-7", *ops[1].OperationID)
		assert.JSONEq(t, `{"id":"op-7","type":"authorize","amount":10000,"qp_status_code":"20000","acquirer":"clearhaus","data":{"card":"visa"}}`, string(ops[1].Payload))

		// the same callback again leaves the log unchanged
		_, err = env.service.HandleCallback(ctx, body, payment.ComputeChecksum(body, testPrivateKey))
		require.NoError(t, err)
		assert.Len(t, env.operations(t, "pay_abc"), 2)
	})

	t.Run("checksum mismatch on a string id writes the sentinel", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, "pay_abc", 10000)

		body := []byte(`{"id":"pay_abc","test_mode":true,"operations":[]}`)
		_, err := env.service.HandleCallback(ctx, body, "bogus")
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeChecksumMismatch))

		ops := env.operations(t, "pay_abc")
		require.Len(t, ops, 2)
		assert.Equal(t, domain.OperationTypeChecksumFailure, ops[1].Type)
		assert.Equal(t, domain.PaymentStatusInvalidated, env.load(t, "pay_abc").Status)
	})

	t.Run("checksum mismatch appends exactly one sentinel", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, testPaymentID, 10000)

		body := fixtures.NotificationBody(fixtures.Notification(testPaymentID, true, fixtures.Authorized(1, 10000)))
		_, err := env.service.HandleCallback(ctx, body, payment.ComputeChecksum(body, "wrong-key"))
		require.Error(t, err)
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeChecksumMismatch))
		assert.True(t, domain.IsCallbackRejected(err))

		ops := env.operations(t, testPaymentID)
		require.Len(t, ops, 2)
		assert.Equal(t, domain.OperationTypeChecksumFailure, ops[1].Type)
		assert.Equal(t, int64(0), ops[1].Amount)
		assert.Nil(t, ops[1].OperationID)
		assert.JSONEq(t, string(body), string(ops[1].Payload))
		assert.Equal(t, 0, countType(ops, domain.OperationTypeAuthorize))

		p := env.load(t, testPaymentID)
		assert.Equal(t, domain.PaymentStatusInvalidated, p.Status)
		assert.Equal(t, int64(0), p.AmountAuthorized)
	})

	t.Run("checksum over re-serialised body does not match", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, testPaymentID, 10000)

		body := fixtures.NotificationBody(fixtures.Notification(testPaymentID, true, fixtures.Authorized(1, 10000)))
		var pretty map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &pretty))
		reencoded, err := json.MarshalIndent(pretty, "", "  ")
		require.NoError(t, err)

		_, err = env.service.HandleCallback(ctx, reencoded, payment.ComputeChecksum(body, testPrivateKey))
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeChecksumMismatch))
	})

	t.Run("missing checksum header", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, testPaymentID, 10000)

		body := fixtures.NotificationBody(fixtures.Notification(testPaymentID, true))
		_, err := env.service.HandleCallback(ctx, body, "")
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeChecksumMismatch))
		assert.Equal(t, domain.PaymentStatusInvalidated, env.load(t, testPaymentID).Status)
	})

	t.Run("test mode mismatch", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, testPaymentID, 10000)

		body := fixtures.NotificationBody(fixtures.Notification(testPaymentID, false, fixtures.Authorized(1, 10000)))
		_, err := env.service.HandleCallback(ctx, body, payment.ComputeChecksum(body, testPrivateKey))
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeTestModeMismatch))

		ops := env.operations(t, testPaymentID)
		require.Len(t, ops, 2)
		assert.Equal(t, domain.OperationTypeTestModeViolation, ops[1].Type)
		assert.Equal(t, domain.PaymentStatusInvalidated, env.load(t, testPaymentID).Status)
	})

	t.Run("unknown payment", func(t *testing.T) {
		env := newTestEnv(t)

		body := fixtures.NotificationBody(fixtures.Notification("9999", true, fixtures.Authorized(1, 10000)))
		_, err := env.service.HandleCallback(ctx, body, payment.ComputeChecksum(body, testPrivateKey))
		assert.True(t, domain.IsNotFoundError(err))
	})

	t.Run("invalid json", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, testPaymentID, 10000)

		_, err := env.service.HandleCallback(ctx, []byte(`{"id":`), "irrelevant")
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeReconciliationFailed))
		assert.Len(t, env.operations(t, testPaymentID), 1)
	})

	t.Run("operations delivered after a sentinel fold over it", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, testPaymentID, 10000)

		_, err := env.service.RegisterChecksumFailure(ctx, testPaymentID, json.RawMessage(`{"id":1001}`))
		require.NoError(t, err)

		body := fixtures.NotificationBody(fixtures.Notification(testPaymentID, true, fixtures.Authorized(1, 10000)))
		_, err = env.service.HandleCallback(ctx, body, payment.ComputeChecksum(body, testPrivateKey))
		require.NoError(t, err)

		assert.Equal(t, domain.PaymentStatusFullyAuthorized, env.load(t, testPaymentID).Status)
	})
}

func TestVerifyChecksum(t *testing.T) {
	body := []byte(`{"id":1001,"operations":[]}`)
	sum := payment.ComputeChecksum(body, "secret")

	assert.Len(t, sum, 64)
	assert.True(t, payment.VerifyChecksum(body, "secret", sum))
	assert.False(t, payment.VerifyChecksum(body, "other", sum))
	assert.False(t, payment.VerifyChecksum(append(body, ' '), "secret", sum))
	assert.False(t, payment.VerifyChecksum(body, "secret", ""))
}

func TestParseNotification(t *testing.T) {
	n, err := payment.ParseNotification([]byte(`{"id": 1001, "test_mode": true, "variables": {"a": 1}, "operations": [{"id": 7, "type": "authorize", "amount": 500, "qp_status_code": "20000"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "1001", n.PaymentID())
	assert.True(t, n.TestMode)
	require.Len(t, n.Operations, 1)
	assert.Equal(t, "7", n.Operations[0].RemoteID())
	assert.Equal(t, domain.OperationOutcomeSuccess, n.Operations[0].Outcome())
	assert.NotEmpty(t, n.Raw)

	_, err = payment.ParseNotification([]byte(`{"operations": []}`))
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeReconciliationFailed))
}

func TestReconcile_DelayedDelivery(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t, testPaymentID, 10000)

	_, err := env.service.Reconcile(ctx, testPaymentID,
		fixtures.Notification(testPaymentID, true, fixtures.Authorized(1, 10000), fixtures.Captured(3, 4000)))
	require.NoError(t, err)

	// capture 2 happened at the gateway before capture 3 but is delivered after it
	p, err := env.service.Reconcile(ctx, testPaymentID,
		fixtures.Notification(testPaymentID, true,
			fixtures.Authorized(1, 10000), fixtures.Captured(2, 6000), fixtures.Captured(3, 4000)))
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFullyCaptured, p.Status)
	assert.Equal(t, int64(10000), p.AmountCaptured)

	// the log is folded in local arrival order; the gateway time is kept alongside
	ops := env.operations(t, testPaymentID)
	require.Len(t, ops, 4)
	require.NotNil(t, ops[2].OperationID)
	require.NotNil(t, ops[3].OperationID)
	assert.Equal(t, "3", *ops[2].OperationID)
	assert.Equal(t, "2", *ops[3].OperationID)
	assert.True(t, ops[3].GatewayCreatedAt.Before(*ops[2].GatewayCreatedAt))
	assert.True(t, ops[3].CreatedAt.After(ops[2].CreatedAt))

	// an older notification arriving last matches by remote id and changes nothing
	p, err = env.service.Reconcile(ctx, testPaymentID,
		fixtures.Notification(testPaymentID, true, fixtures.Authorized(1, 10000)))
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFullyCaptured, p.Status)
	assert.Len(t, env.operations(t, testPaymentID), 4)
}
