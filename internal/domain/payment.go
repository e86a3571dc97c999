package domain

import (
	"fmt"
	"strings"
	"time"
)

// PaymentStatus is the derived lifecycle state of a payment.
// Values are persisted as integers and must stay stable.
type PaymentStatus int

const (
	PaymentStatusCreated          PaymentStatus = 0
	PaymentStatusAccepted         PaymentStatus = 2
	PaymentStatusFullyAuthorized  PaymentStatus = 5
	PaymentStatusCaptureRequested PaymentStatus = 10
	PaymentStatusPartlyCaptured   PaymentStatus = 12
	PaymentStatusFullyCaptured    PaymentStatus = 15
	PaymentStatusCancelRequested  PaymentStatus = 20
	PaymentStatusCancelled        PaymentStatus = 25
	PaymentStatusRefundRequested  PaymentStatus = 30
	PaymentStatusPartlyRefunded   PaymentStatus = 32
	PaymentStatusFullyRefunded    PaymentStatus = 35
	PaymentStatusInvalidated      PaymentStatus = 100
)

var paymentStatusNames = map[PaymentStatus]string{
	PaymentStatusCreated:          "CREATED",
	PaymentStatusAccepted:         "ACCEPTED",
	PaymentStatusFullyAuthorized:  "FULLY_AUTHORIZED",
	PaymentStatusCaptureRequested: "CAPTURE_REQUESTED",
	PaymentStatusPartlyCaptured:   "PARTLY_CAPTURED",
	PaymentStatusFullyCaptured:    "FULLY_CAPTURED",
	PaymentStatusCancelRequested:  "CANCEL_REQUESTED",
	PaymentStatusCancelled:        "CANCELLED",
	PaymentStatusRefundRequested:  "REFUND_REQUESTED",
	PaymentStatusPartlyRefunded:   "PARTLY_REFUNDED",
	PaymentStatusFullyRefunded:    "FULLY_REFUNDED",
	PaymentStatusInvalidated:      "INVALIDATED",
}

// String returns the upper-case status name, e.g. "PARTLY_CAPTURED"
func (s PaymentStatus) String() string {
	if name, ok := paymentStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(s))
}

// ParsePaymentStatus converts a status name back to its value
func ParsePaymentStatus(name string) (PaymentStatus, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for status, n := range paymentStatusNames {
		if n == upper {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown payment status %q", name)
}

// IsTerminal returns true for states no later operation is expected to leave
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCancelled ||
		s == PaymentStatusFullyRefunded ||
		s == PaymentStatusInvalidated
}

// IsRequested returns true while a local action waits for the gateway callback
func (s PaymentStatus) IsRequested() bool {
	return s == PaymentStatusCaptureRequested ||
		s == PaymentStatusCancelRequested ||
		s == PaymentStatusRefundRequested
}

// Payment mirrors one payment resource held by the remote gateway.
// Status and the three running totals are derived from the operation log
// and must only be written by the reconciliation path.
type Payment struct {
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	OrderNumber      *string       `json:"order_number,omitempty"`
	Link             *string       `json:"link,omitempty"`
	BasketSignature  *string       `json:"basket_signature,omitempty"`
	ID               string        `json:"id"`
	OrderID          string        `json:"order_id"`
	CustomerID       string        `json:"customer_id"`
	Currency         string        `json:"currency"`
	Amount           int64         `json:"amount"`
	AmountAuthorized int64         `json:"amount_authorized"`
	AmountCaptured   int64         `json:"amount_captured"`
	AmountRefunded   int64         `json:"amount_refunded"`
	Status           PaymentStatus `json:"status"`
}

// CapturableAmount is the upper bound for the next capture request
func (p *Payment) CapturableAmount() int64 {
	return p.AmountAuthorized - p.AmountCaptured
}

// RefundableAmount is the upper bound for the next refund request
func (p *Payment) RefundableAmount() int64 {
	return p.AmountCaptured - p.AmountRefunded
}

// ApplyDerived copies a derivation result onto the payment
func (p *Payment) ApplyDerived(status PaymentStatus, authorized, captured, refunded int64) {
	p.Status = status
	p.AmountAuthorized = authorized
	p.AmountCaptured = captured
	p.AmountRefunded = refunded
}
