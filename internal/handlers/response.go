// Package handlers holds the HTTP surface of the reconciler. Merchant-facing
// endpoints answer with a {success, message} envelope.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kevin07696/payment-reconciler/internal/domain"
	"go.uber.org/zap"
)

// Result is the response envelope of the merchant endpoints
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// WriteJSON encodes v with the given status
func WriteJSON(w http.ResponseWriter, logger *zap.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

// WriteError writes a failed Result for err
func WriteError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, message := StatusForError(err)
	WriteJSON(w, logger, status, Result{Success: false, Message: message})
}

// StatusForError maps service errors onto an HTTP status and a client-safe message
func StatusForError(err error) (int, string) {
	message := "internal error"
	var de *domain.DomainError
	if errors.As(err, &de) {
		message = de.Message
	}

	switch {
	case domain.IsNotFoundError(err):
		return http.StatusNotFound, message
	case domain.IsDomainError(err, domain.ErrorCodeValidationFailed),
		domain.IsDomainError(err, domain.ErrorCodeValidationMissingField):
		return http.StatusBadRequest, message
	case domain.IsRejection(err):
		return http.StatusUnprocessableEntity, message
	case domain.IsDomainError(err, domain.ErrorCodeLockTimeout),
		domain.IsDomainError(err, domain.ErrorCodePaymentExists):
		return http.StatusConflict, message
	case errors.Is(err, domain.ErrGatewayTimedOut):
		return http.StatusGatewayTimeout, "payment gateway timeout"
	case domain.IsGatewayError(err):
		return http.StatusBadGateway, "payment gateway error"
	case domain.IsCallbackRejected(err):
		return http.StatusBadRequest, message
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
