package ports

import (
	"context"

	"github.com/kevin07696/payment-reconciler/internal/domain"
)

// ShopSystem identifies the integration towards the gateway
type ShopSystem struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// CreatePaymentRequest is the body of POST /payments
type CreatePaymentRequest struct {
	Variables  map[string]string          `json:"variables,omitempty"`
	Shipping   *domain.GatewayShipping    `json:"shipping,omitempty"`
	ShopSystem *ShopSystem                `json:"shopsystem,omitempty"`
	OrderID    string                     `json:"order_id"`
	Currency   string                     `json:"currency"`
	BrandingID string                     `json:"branding_id,omitempty"`
	Basket     []domain.GatewayBasketItem `json:"basket"`
}

// UpdatePaymentRequest is the body of PATCH /payments/{id}
type UpdatePaymentRequest struct {
	Variables  map[string]string          `json:"variables,omitempty"`
	Shipping   *domain.GatewayShipping    `json:"shipping,omitempty"`
	ShopSystem *ShopSystem                `json:"shopsystem,omitempty"`
	BrandingID string                     `json:"branding_id,omitempty"`
	Basket     []domain.GatewayBasketItem `json:"basket"`
}

// CreateLinkRequest is the body of PUT /payments/{id}/link
type CreateLinkRequest struct {
	ContinueURL    string `json:"continueurl"`
	CancelURL      string `json:"cancelurl"`
	CallbackURL    string `json:"callbackurl"`
	CustomerEmail  string `json:"customer_email,omitempty"`
	Language       string `json:"language,omitempty"`
	PaymentMethods string `json:"payment_methods,omitempty"`
	Amount         int64  `json:"amount"`
}

// PaymentGateway is the outbound contract towards the remote payment API.
// Every failure is returned as *domain.GatewayError; nothing is retried.
type PaymentGateway interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*domain.Notification, error)
	UpdatePayment(ctx context.Context, paymentID string, req UpdatePaymentRequest) (*domain.Notification, error)
	CreatePaymentLink(ctx context.Context, paymentID string, req CreateLinkRequest) (string, error)
	GetPayment(ctx context.Context, paymentID string) (*domain.Notification, error)

	// Capture, Cancel and Refund send the callback URL header so the gateway
	// reports the outcome asynchronously
	Capture(ctx context.Context, paymentID string, amount int64, callbackURL string) error
	Cancel(ctx context.Context, paymentID string, callbackURL string) error
	Refund(ctx context.Context, paymentID string, amount int64, callbackURL string) error
}
