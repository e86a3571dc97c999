package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Payment Errors (PAYMENT_*)
	ErrorCodePaymentNotFound ErrorCode = "PAYMENT_NOT_FOUND"
	ErrorCodeInvalidState    ErrorCode = "PAYMENT_INVALID_STATE"
	ErrorCodeInvalidAmount   ErrorCode = "PAYMENT_INVALID_AMOUNT"
	ErrorCodePaymentExists   ErrorCode = "PAYMENT_ALREADY_EXISTS"

	// Callback Errors (CALLBACK_*)
	ErrorCodeReconciliationFailed ErrorCode = "CALLBACK_RECONCILIATION_FAILED"
	ErrorCodeChecksumMismatch     ErrorCode = "CALLBACK_CHECKSUM_MISMATCH"
	ErrorCodeTestModeMismatch     ErrorCode = "CALLBACK_TEST_MODE_MISMATCH"

	// Authentication Errors (AUTH_*)
	ErrorCodeAuthMissing ErrorCode = "AUTH_MISSING"
	ErrorCodeAuthInvalid ErrorCode = "AUTH_INVALID"

	// Validation Errors (VALIDATION_*)
	ErrorCodeValidationFailed       ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationMissingField ErrorCode = "VALIDATION_MISSING_FIELD"

	// Payment Gateway Errors (GATEWAY_*)
	ErrorCodeGatewayError   ErrorCode = "GATEWAY_ERROR"
	ErrorCodeGatewayTimeout ErrorCode = "GATEWAY_TIMEOUT"

	// Internal Errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
	ErrorCodeLockTimeout   ErrorCode = "INTERNAL_LOCK_TIMEOUT"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError carrying the same code
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsNotFoundError checks if an error represents a "not found" condition
func IsNotFoundError(err error) bool {
	return GetErrorCode(err) == ErrorCodePaymentNotFound
}

// IsRejection checks if an error is a user-visible rejection raised before any side effect
func IsRejection(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeInvalidState ||
		code == ErrorCodeInvalidAmount ||
		code == ErrorCodeValidationFailed ||
		code == ErrorCodeValidationMissingField
}

// IsCallbackRejected checks if an inbound callback was refused at the trust boundary
func IsCallbackRejected(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeChecksumMismatch ||
		code == ErrorCodeTestModeMismatch ||
		code == ErrorCodeReconciliationFailed
}

// IsGatewayError checks if an error is a payment gateway error
func IsGatewayError(err error) bool {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return true
	}
	code := GetErrorCode(err)
	return code == ErrorCodeGatewayError || code == ErrorCodeGatewayTimeout
}

// Structured error instances for errors.Is matching.
// Do not call WithDetail on these, use the constructors below.
var (
	ErrPaymentNotFound      = NewDomainError(ErrorCodePaymentNotFound, "payment not found")
	ErrInvalidState         = NewDomainError(ErrorCodeInvalidState, "invalid payment state")
	ErrInvalidAmount        = NewDomainError(ErrorCodeInvalidAmount, "invalid amount")
	ErrReconciliationFailed = NewDomainError(ErrorCodeReconciliationFailed, "malformed notification")
	ErrChecksumMismatch     = NewDomainError(ErrorCodeChecksumMismatch, "checksum mismatch")
	ErrTestModeMismatch     = NewDomainError(ErrorCodeTestModeMismatch, "test mode mismatch")
	ErrAuthMissing          = NewDomainError(ErrorCodeAuthMissing, "authentication required")
	ErrAuthInvalid          = NewDomainError(ErrorCodeAuthInvalid, "invalid authentication")
	ErrValidationFailed     = NewDomainError(ErrorCodeValidationFailed, "validation failed")
	ErrGatewayError         = NewDomainError(ErrorCodeGatewayError, "payment gateway error")
	ErrGatewayTimedOut      = NewDomainError(ErrorCodeGatewayTimeout, "payment gateway timeout")
	ErrDatabaseError        = NewDomainError(ErrorCodeDatabaseError, "database error")
	ErrLockTimeout          = NewDomainError(ErrorCodeLockTimeout, "timed out waiting for payment lock")
)

// NewPaymentNotFoundError reports an unknown gateway payment id
func NewPaymentNotFoundError(paymentID string) *DomainError {
	return NewDomainError(ErrorCodePaymentNotFound, "payment not found").
		WithDetail("payment_id", paymentID)
}

// NewPaymentExistsError reports a gateway payment that is already stored
func NewPaymentExistsError(paymentID string) *DomainError {
	return NewDomainError(ErrorCodePaymentExists, "payment already exists").
		WithDetail("payment_id", paymentID)
}

// NewInvalidStateError reports an action requested in an incompatible status
func NewInvalidStateError(action string, status PaymentStatus) *DomainError {
	return NewDomainError(ErrorCodeInvalidState, fmt.Sprintf("invalid payment state %s for %s", status, action)).
		WithDetail("action", action).
		WithDetail("status", status.String())
}

// NewInvalidAmountError reports an amount outside the allowed range (0, max]
func NewInvalidAmountError(action string, amount, max int64) *DomainError {
	return NewDomainError(ErrorCodeInvalidAmount, fmt.Sprintf("invalid amount %d for %s (allowed 1..%d)", amount, action, max)).
		WithDetail("action", action).
		WithDetail("amount", amount).
		WithDetail("max", max)
}

// NewReconciliationError reports a notification that cannot be applied
func NewReconciliationError(message string, err error) *DomainError {
	return WrapError(ErrorCodeReconciliationFailed, message, err)
}

// GatewayError is returned when the gateway call fails at transport, HTTP or JSON level.
// StatusCode is zero when no response was received.
type GatewayError struct {
	Err        error
	Method     string
	Resource   string
	Body       string
	StatusCode int
}

func (e *GatewayError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("gateway %s %s failed: %v", e.Method, e.Resource, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("gateway %s %s returned %d: %v", e.Method, e.Resource, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway %s %s returned %d: %s", e.Method, e.Resource, e.StatusCode, e.Body)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrGatewayError) and ErrGatewayTimedOut match
func (e *GatewayError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code()
}

// Code classifies the failure for logs and metrics
func (e *GatewayError) Code() ErrorCode {
	if e.Timeout() {
		return ErrorCodeGatewayTimeout
	}
	return ErrorCodeGatewayError
}

// Timeout reports whether the call was cut short by a deadline
func (e *GatewayError) Timeout() bool {
	var te interface{ Timeout() bool }
	if errors.As(e.Err, &te) && te.Timeout() {
		return true
	}
	return errors.Is(e.Err, context.DeadlineExceeded)
}
