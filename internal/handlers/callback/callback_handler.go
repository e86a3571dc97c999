package callback

import (
	"context"
	"io"
	"net/http"

	"github.com/kevin07696/payment-reconciler/internal/domain"
	"github.com/kevin07696/payment-reconciler/internal/services/payment"
	"go.uber.org/zap"
)

// DefaultMaxBodyBytes bounds a callback body. Notifications carry the full
// operation history, so this is generous.
const DefaultMaxBodyBytes = 1 << 20

// CallbackProcessor verifies and reconciles a raw gateway callback
type CallbackProcessor interface {
	HandleCallback(ctx context.Context, body []byte, checksum string) (*domain.Payment, error)
}

// Handler receives gateway callbacks. The gateway only looks at the status
// code: 200 when the notification was merged, 400 otherwise.
type Handler struct {
	processor    CallbackProcessor
	logger       *zap.Logger
	maxBodyBytes int64
}

// NewHandler creates a callback handler
func NewHandler(processor CallbackProcessor, logger *zap.Logger) *Handler {
	return &Handler{
		processor:    processor,
		logger:       logger,
		maxBodyBytes: DefaultMaxBodyBytes,
	}
}

// HandleCallback handles POST /api/v1/callbacks/unzerdirect
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// the checksum covers the exact bytes, so the body is never re-encoded
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		h.logger.Warn("Failed to read callback body",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	p, err := h.processor.HandleCallback(r.Context(), body, r.Header.Get(payment.ChecksumHeader))
	if err != nil {
		h.logRejection(r, err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.logger.Info("Callback processed",
		zap.String("payment_id", p.ID),
		zap.String("status", p.Status.String()))
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) logRejection(r *http.Request, err error) {
	fields := []zap.Field{
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("code", string(domain.GetErrorCode(err))),
		zap.Error(err),
	}

	switch {
	case domain.IsCallbackRejected(err), domain.IsNotFoundError(err):
		h.logger.Warn("Callback rejected", fields...)
	default:
		h.logger.Error("Callback processing failed", fields...)
	}
}
