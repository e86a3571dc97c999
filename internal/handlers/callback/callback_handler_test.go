package callback

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kevin07696/payment-reconciler/internal/domain"
	"github.com/kevin07696/payment-reconciler/internal/services/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) HandleCallback(ctx context.Context, body []byte, checksum string) (*domain.Payment, error) {
	args := m.Called(ctx, body, checksum)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

const callbackBody = `{"id":1001,"test_mode":false,"operations":[{"id":1,"type":"authorize","amount":5288,"qp_status_code":"20000"}]}`

func newRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/callbacks/unzerdirect", strings.NewReader(body))
	req.Header.Set(payment.ChecksumHeader, "abc123")
	return req
}

func TestHandleCallback_Success(t *testing.T) {
	processor := new(mockProcessor)
	processor.On("HandleCallback", mock.Anything, []byte(callbackBody), "abc123").
		Return(&domain.Payment{ID: "1001", Status: domain.PaymentStatusFullyAuthorized}, nil)

	rec := httptest.NewRecorder()
	NewHandler(processor, zap.NewNop()).HandleCallback(rec, newRequest(callbackBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	processor.AssertExpectations(t)
}

func TestHandleCallback_Failures(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantLevel zapcore.Level
	}{
		{"checksum mismatch", domain.ErrChecksumMismatch, zapcore.WarnLevel},
		{"test mode mismatch", domain.ErrTestModeMismatch, zapcore.WarnLevel},
		{"malformed", domain.NewReconciliationError("invalid notification body", errors.New("eof")), zapcore.WarnLevel},
		{"unknown payment", domain.NewPaymentNotFoundError("1001"), zapcore.WarnLevel},
		{"database", domain.WrapError(domain.ErrorCodeDatabaseError, "commit", errors.New("conn reset")), zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			processor := new(mockProcessor)
			processor.On("HandleCallback", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)

			rec := httptest.NewRecorder()
			NewHandler(processor, zap.New(core)).HandleCallback(rec, newRequest(callbackBody))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, 1, logs.Len())
			assert.Equal(t, tt.wantLevel, logs.All()[0].Level)
		})
	}
}

func TestHandleCallback_MethodNotAllowed(t *testing.T) {
	processor := new(mockProcessor)
	rec := httptest.NewRecorder()
	NewHandler(processor, zap.NewNop()).HandleCallback(rec, httptest.NewRequest(http.MethodGet, "/api/v1/callbacks/unzerdirect", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	processor.AssertNotCalled(t, "HandleCallback", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleCallback_BodyTooLarge(t *testing.T) {
	processor := new(mockProcessor)
	h := NewHandler(processor, zap.NewNop())
	h.maxBodyBytes = 16

	rec := httptest.NewRecorder()
	h.HandleCallback(rec, newRequest(callbackBody))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	processor.AssertNotCalled(t, "HandleCallback", mock.Anything, mock.Anything, mock.Anything)
}
