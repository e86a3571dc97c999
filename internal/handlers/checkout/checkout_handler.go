package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kevin07696/payment-reconciler/internal/domain"
	"github.com/kevin07696/payment-reconciler/internal/handlers"
	"github.com/kevin07696/payment-reconciler/internal/services/payment"
	"go.uber.org/zap"
)

// CheckoutService is the storefront side of the payment service
type CheckoutService interface {
	StartCheckout(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutResult, error)
	AttachOrder(ctx context.Context, paymentID, orderNumber string) (*domain.Payment, error)
	RestoreBasket(ctx context.Context, paymentID string) (*domain.Basket, error)
}

// Handler serves the storefront checkout endpoints
type Handler struct {
	service CheckoutService
	logger  *zap.Logger
}

// NewHandler creates a checkout handler
func NewHandler(service CheckoutService, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// CheckoutResponse carries the hosted payment page to redirect to
type CheckoutResponse struct {
	handlers.Result
	PaymentID string `json:"payment_id,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
	URL       string `json:"url,omitempty"`
}

// AttachOrderRequest links the finished shop order
type AttachOrderRequest struct {
	OrderNumber string `json:"order_number"`
}

// BasketResponse returns a parked basket, or none
type BasketResponse struct {
	handlers.Result
	Basket *domain.Basket `json:"basket"`
}

// StartCheckout handles POST /api/v1/checkout
func (h *Handler) StartCheckout(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req payment.CheckoutRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 256<<10)).Decode(&req); err != nil {
		handlers.WriteJSON(w, h.logger, http.StatusBadRequest, handlers.Result{Message: "invalid request body"})
		return
	}

	result, err := h.service.StartCheckout(r.Context(), req)
	if err != nil {
		h.fail(w, "start checkout", req.PaymentID, err)
		return
	}

	h.logger.Info("Checkout started",
		zap.String("payment_id", result.Payment.ID),
		zap.String("customer_id", req.CustomerID),
		zap.Int64("amount", req.Amount),
		zap.Bool("resumed", req.PaymentID == result.Payment.ID))

	handlers.WriteJSON(w, h.logger, http.StatusOK, CheckoutResponse{
		Result:    handlers.Result{Success: true},
		PaymentID: result.Payment.ID,
		OrderID:   result.Payment.OrderID,
		URL:       result.URL,
	})
}

// AttachOrder handles POST /api/v1/checkout/{id}/order
func (h *Handler) AttachOrder(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	paymentID := strings.TrimSpace(pathParams["id"])

	var req AttachOrderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		handlers.WriteJSON(w, h.logger, http.StatusBadRequest, handlers.Result{Message: "invalid request body"})
		return
	}

	p, err := h.service.AttachOrder(r.Context(), paymentID, req.OrderNumber)
	if err != nil {
		h.fail(w, "attach order", paymentID, err)
		return
	}

	handlers.WriteJSON(w, h.logger, http.StatusOK, CheckoutResponse{
		Result:    handlers.Result{Success: true},
		PaymentID: p.ID,
		OrderID:   p.OrderID,
	})
}

// RestoreBasket handles GET /api/v1/checkout/{id}/basket, used when the
// customer comes back from the cancel URL
func (h *Handler) RestoreBasket(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	paymentID := strings.TrimSpace(pathParams["id"])

	basket, err := h.service.RestoreBasket(r.Context(), paymentID)
	if err != nil {
		h.fail(w, "restore basket", paymentID, err)
		return
	}

	handlers.WriteJSON(w, h.logger, http.StatusOK, BasketResponse{
		Result: handlers.Result{Success: true},
		Basket: basket,
	})
}

func (h *Handler) fail(w http.ResponseWriter, action, paymentID string, err error) {
	status, _ := handlers.StatusForError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Checkout request failed",
			zap.String("action", action),
			zap.String("payment_id", paymentID),
			zap.Error(err))
	}
	handlers.WriteError(w, h.logger, err)
}
