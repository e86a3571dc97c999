package domain

import "time"

// OrderPaymentState is the payment state a shop order should carry
// for a given derived payment status.
type OrderPaymentState string

const (
	OrderPaymentStateOpen            OrderPaymentState = "open"
	OrderPaymentStateReserved        OrderPaymentState = "reserved"
	OrderPaymentStatePartiallyPaid   OrderPaymentState = "partially_paid"
	OrderPaymentStateCompletelyPaid  OrderPaymentState = "completely_paid"
	OrderPaymentStateCancelled       OrderPaymentState = "cancelled"
	OrderPaymentStateReviewNecessary OrderPaymentState = "review_necessary"
)

// MapOrderPaymentState maps a payment onto the shop order payment state.
// invoiceAmount is the order total in minor units; zero falls back to the
// payment's own target amount.
// States with no order-side meaning (requests in flight) keep the order open.
func MapOrderPaymentState(p *Payment, invoiceAmount int64) OrderPaymentState {
	if invoiceAmount <= 0 {
		invoiceAmount = p.Amount
	}

	switch p.Status {
	case PaymentStatusFullyAuthorized:
		return OrderPaymentStateReserved
	case PaymentStatusPartlyCaptured, PaymentStatusFullyCaptured:
		if p.AmountCaptured >= invoiceAmount {
			return OrderPaymentStateCompletelyPaid
		}
		return OrderPaymentStatePartiallyPaid
	case PaymentStatusCancelled, PaymentStatusFullyRefunded:
		return OrderPaymentStateCancelled
	case PaymentStatusInvalidated:
		return OrderPaymentStateReviewNecessary
	default:
		return OrderPaymentStateOpen
	}
}

// PaymentStatusChanged is published after a committed change of status or totals
type PaymentStatusChanged struct {
	OccurredAt        time.Time         `json:"occurred_at"`
	OrderNumber       *string           `json:"order_number,omitempty"`
	PaymentID         string            `json:"payment_id"`
	OrderID           string            `json:"order_id"`
	Status            string            `json:"status"`
	PreviousStatus    string            `json:"previous_status"`
	OrderPaymentState OrderPaymentState `json:"order_payment_state"`
	Amount            int64             `json:"amount"`
	AmountAuthorized  int64             `json:"amount_authorized"`
	AmountCaptured    int64             `json:"amount_captured"`
	AmountRefunded    int64             `json:"amount_refunded"`
}

// NewPaymentStatusChanged builds the event for a payment after reconciliation
func NewPaymentStatusChanged(p *Payment, previous PaymentStatus, now time.Time) PaymentStatusChanged {
	return PaymentStatusChanged{
		OccurredAt:        now,
		OrderNumber:       p.OrderNumber,
		PaymentID:         p.ID,
		OrderID:           p.OrderID,
		Status:            p.Status.String(),
		PreviousStatus:    previous.String(),
		OrderPaymentState: MapOrderPaymentState(p, 0),
		Amount:            p.Amount,
		AmountAuthorized:  p.AmountAuthorized,
		AmountCaptured:    p.AmountCaptured,
		AmountRefunded:    p.AmountRefunded,
	}
}
