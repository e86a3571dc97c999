package payment

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/kevin07696/payment-reconciler/internal/handlers"
	"github.com/kevin07696/payment-reconciler/internal/middleware"
	paymentsvc "github.com/kevin07696/payment-reconciler/internal/services/payment"
	"go.uber.org/zap"
)

// BatchRequest is the body of POST /api/v1/payments/batch
type BatchRequest struct {
	Action     string   `json:"action"`
	PaymentIDs []string `json:"payment_ids"`
}

// BatchItemView reports the action on one payment
type BatchItemView struct {
	Status     *int   `json:"status,omitempty"`
	PaymentID  string `json:"payment_id"`
	StatusName string `json:"status_name,omitempty"`
	Message    string `json:"message,omitempty"`
	Success    bool   `json:"success"`
}

// BatchResponse answers a batch action. Success is true when every payment succeeded.
type BatchResponse struct {
	handlers.Result
	Items     []BatchItemView `json:"items"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
}

// ImportRequest is the body of POST /api/v1/payments/{id}/import
type ImportRequest struct {
	CustomerID  string `json:"customer_id"`
	OrderNumber string `json:"order_number"`
}

// Batch handles POST /api/v1/payments/batch
func (h *Handler) Batch(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req BatchRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	result, err := h.service.BatchAction(r.Context(), paymentsvc.BatchRequest{
		Action:     strings.ToLower(strings.TrimSpace(req.Action)),
		PaymentIDs: req.PaymentIDs,
	})
	if err != nil {
		h.fail(w, r, "batch", "", err)
		return
	}

	items := make([]BatchItemView, 0, len(result.Items))
	for _, item := range result.Items {
		view := BatchItemView{
			PaymentID: item.PaymentID,
			Message:   item.Message,
			Success:   item.Success,
		}
		if item.Status != nil {
			status := int(*item.Status)
			view.Status = &status
			view.StatusName = item.Status.String()
		}
		items = append(items, view)
	}

	subject, _ := middleware.SubjectFromContext(r.Context())
	h.logger.Info("Batch payment action processed",
		zap.String("action", req.Action),
		zap.String("subject", subject),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed))

	handlers.WriteJSON(w, h.logger, http.StatusOK, BatchResponse{
		Result:    handlers.Result{Success: result.Failed == 0},
		Items:     items,
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
	})
}

// Import handles POST /api/v1/payments/{id}/import
func (h *Handler) Import(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	paymentID, ok := h.paymentID(w, pathParams)
	if !ok {
		return
	}

	var req ImportRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	p, err := h.service.ImportPayment(r.Context(), paymentID, paymentsvc.ImportPaymentInput{
		CustomerID:  strings.TrimSpace(req.CustomerID),
		OrderNumber: strings.TrimSpace(req.OrderNumber),
	})
	h.respond(w, r, "import", paymentID, p, err)
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err == nil {
		err = json.Unmarshal(body, v)
	}
	if err != nil {
		handlers.WriteJSON(w, h.logger, http.StatusBadRequest, handlers.Result{Message: "invalid request body"})
		return false
	}
	return true
}
