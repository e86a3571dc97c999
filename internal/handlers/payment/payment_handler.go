package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kevin07696/payment-reconciler/internal/domain"
	"github.com/kevin07696/payment-reconciler/internal/handlers"
	"github.com/kevin07696/payment-reconciler/internal/middleware"
	paymentsvc "github.com/kevin07696/payment-reconciler/internal/services/payment"
	"go.uber.org/zap"
)

// PaymentService is the part of the payment service the merchant backend drives
type PaymentService interface {
	GetPaymentDetail(ctx context.Context, paymentID string) (*paymentsvc.PaymentDetail, error)
	RequestCapture(ctx context.Context, paymentID string, amount int64) (*domain.Payment, error)
	RequestCancel(ctx context.Context, paymentID string) (*domain.Payment, error)
	RequestRefund(ctx context.Context, paymentID string, amount int64) (*domain.Payment, error)
	SyncPayment(ctx context.Context, paymentID string) (*domain.Payment, error)
	BatchAction(ctx context.Context, req paymentsvc.BatchRequest) (*paymentsvc.BatchResult, error)
	ImportPayment(ctx context.Context, paymentID string, in paymentsvc.ImportPaymentInput) (*domain.Payment, error)
}

// Handler serves the merchant payment endpoints
type Handler struct {
	service PaymentService
	logger  *zap.Logger
}

// NewHandler creates a payment handler
func NewHandler(service PaymentService, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// PaymentView is the JSON form of a payment
type PaymentView struct {
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	OrderNumber      *string   `json:"order_number,omitempty"`
	Link             *string   `json:"link,omitempty"`
	ID               string    `json:"id"`
	OrderID          string    `json:"order_id"`
	CustomerID       string    `json:"customer_id"`
	Currency         string    `json:"currency"`
	StatusName       string    `json:"status_name"`
	Status           int       `json:"status"`
	Amount           int64     `json:"amount"`
	AmountAuthorized int64     `json:"amount_authorized"`
	AmountCaptured   int64     `json:"amount_captured"`
	AmountRefunded   int64     `json:"amount_refunded"`
}

// OperationView is one row of the operation history
type OperationView struct {
	CreatedAt   time.Time `json:"created_at"`
	OperationID *string   `json:"operation_id,omitempty"`
	Type        string    `json:"type"`
	Outcome     string    `json:"outcome"`
	StatusCode  string    `json:"status_code,omitempty"`
	ID          int64     `json:"id"`
	Amount      int64     `json:"amount"`
}

// PaymentResponse answers the action endpoints
type PaymentResponse struct {
	handlers.Result
	Payment *PaymentView `json:"payment,omitempty"`
}

// DetailResponse answers GET /api/v1/payments/{id}
type DetailResponse struct {
	handlers.Result
	Payment    *PaymentView    `json:"payment"`
	Operations []OperationView `json:"operations"`
}

// ActionRequest is the body of capture and refund
type ActionRequest struct {
	Amount json.RawMessage `json:"amount"`
}

// GetPayment handles GET /api/v1/payments/{id}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	paymentID, ok := h.paymentID(w, pathParams)
	if !ok {
		return
	}

	detail, err := h.service.GetPaymentDetail(r.Context(), paymentID)
	if err != nil {
		h.fail(w, r, "get", paymentID, err)
		return
	}

	operations := make([]OperationView, 0, len(detail.Operations))
	for _, op := range detail.Operations {
		operations = append(operations, toOperationView(op))
	}

	handlers.WriteJSON(w, h.logger, http.StatusOK, DetailResponse{
		Result:     handlers.Result{Success: true},
		Payment:    toPaymentView(detail.Payment),
		Operations: operations,
	})
}

// Capture handles POST /api/v1/payments/{id}/capture
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	h.amountAction(w, r, pathParams, paymentsvc.ActionCapture, h.service.RequestCapture)
}

// Refund handles POST /api/v1/payments/{id}/refund
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	h.amountAction(w, r, pathParams, paymentsvc.ActionRefund, h.service.RequestRefund)
}

// Cancel handles POST /api/v1/payments/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	paymentID, ok := h.paymentID(w, pathParams)
	if !ok {
		return
	}

	p, err := h.service.RequestCancel(r.Context(), paymentID)
	h.respond(w, r, paymentsvc.ActionCancel, paymentID, p, err)
}

// Sync handles POST /api/v1/payments/{id}/sync
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	paymentID, ok := h.paymentID(w, pathParams)
	if !ok {
		return
	}

	p, err := h.service.SyncPayment(r.Context(), paymentID)
	h.respond(w, r, "sync", paymentID, p, err)
}

func (h *Handler) amountAction(
	w http.ResponseWriter,
	r *http.Request,
	pathParams map[string]string,
	action string,
	fn func(ctx context.Context, paymentID string, amount int64) (*domain.Payment, error),
) {
	paymentID, ok := h.paymentID(w, pathParams)
	if !ok {
		return
	}

	var req ActionRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err == nil && len(body) > 0 {
		err = json.Unmarshal(body, &req)
	}
	if err != nil {
		handlers.WriteJSON(w, h.logger, http.StatusBadRequest, handlers.Result{Message: "invalid request body"})
		return
	}

	p, err := fn(r.Context(), paymentID, ParseAmount(req.Amount))
	h.respond(w, r, action, paymentID, p, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, action, paymentID string, p *domain.Payment, err error) {
	if err != nil {
		h.fail(w, r, action, paymentID, err)
		return
	}

	subject, _ := middleware.SubjectFromContext(r.Context())
	h.logger.Info("Payment action accepted",
		zap.String("action", action),
		zap.String("payment_id", paymentID),
		zap.String("subject", subject),
		zap.String("status", p.Status.String()))

	handlers.WriteJSON(w, h.logger, http.StatusOK, PaymentResponse{
		Result:  handlers.Result{Success: true},
		Payment: toPaymentView(p),
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, action, paymentID string, err error) {
	status, _ := handlers.StatusForError(err)
	fields := []zap.Field{
		zap.String("action", action),
		zap.String("payment_id", paymentID),
		zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Payment request failed", fields...)
	} else {
		h.logger.Info("Payment request rejected", fields...)
	}
	handlers.WriteError(w, h.logger, err)
}

func (h *Handler) paymentID(w http.ResponseWriter, pathParams map[string]string) (string, bool) {
	paymentID := strings.TrimSpace(pathParams["id"])
	if paymentID == "" {
		handlers.WriteJSON(w, h.logger, http.StatusBadRequest, handlers.Result{Message: "No payment Id"})
		return "", false
	}
	return paymentID, true
}

// ParseAmount reads an amount in minor units given as a JSON number or a
// numeric string. Anything else is 0, which the service rejects as an
// invalid amount.
func ParseAmount(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		n = json.Number(strings.TrimSpace(s))
	}

	if v, err := n.Int64(); err == nil {
		return v
	}
	if f, err := strconv.ParseFloat(n.String(), 64); err == nil {
		return int64(f)
	}
	return 0
}

func toPaymentView(p *domain.Payment) *PaymentView {
	if p == nil {
		return nil
	}
	return &PaymentView{
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
		OrderNumber:      p.OrderNumber,
		Link:             p.Link,
		ID:               p.ID,
		OrderID:          p.OrderID,
		CustomerID:       p.CustomerID,
		Currency:         p.Currency,
		StatusName:       p.Status.String(),
		Status:           int(p.Status),
		Amount:           p.Amount,
		AmountAuthorized: p.AmountAuthorized,
		AmountCaptured:   p.AmountCaptured,
		AmountRefunded:   p.AmountRefunded,
	}
}

func toOperationView(op *domain.Operation) OperationView {
	return OperationView{
		CreatedAt:   op.CreatedAt,
		OperationID: op.OperationID,
		Type:        string(op.Type),
		Outcome:     string(op.Outcome),
		StatusCode:  op.StatusCode,
		ID:          op.ID,
		Amount:      op.Amount,
	}
}
