package payment

import (
	"fmt"

	"github.com/kevin07696/payment-reconciler/internal/domain"
)

// DerivedState is the status and running totals of a payment, computed by
// replaying its operation log in (created_at, id) order.
type DerivedState struct {
	// Anomalies lists totals a well-formed log never produces.
	// They are reported, never corrected.
	Anomalies        []string
	AmountAuthorized int64
	AmountCaptured   int64
	AmountRefunded   int64
	Status           domain.PaymentStatus
}

// DeriveState folds the operation log of a payment with target amount target.
// ops MUST be ordered by (created_at, id) ascending; see domain.SortOperations.
// The fold is pure: the same log always yields the same state.
func DeriveState(target int64, ops []*domain.Operation) DerivedState {
	state := DerivedState{Status: domain.PaymentStatusCreated}

	for _, op := range ops {
		switch op.Type {
		case domain.OperationTypeAuthorize:
			if op.IsSuccessful() {
				state.AmountAuthorized += op.Amount
				if state.AmountAuthorized >= target {
					state.Status = domain.PaymentStatusFullyAuthorized
				}
			}

		case domain.OperationTypeCaptureRequest:
			state.Status = domain.PaymentStatusCaptureRequested

		case domain.OperationTypeCapture:
			if op.IsSuccessful() {
				state.AmountCaptured += op.Amount
				if state.AmountCaptured >= target {
					state.Status = domain.PaymentStatusFullyCaptured
				} else {
					state.Status = domain.PaymentStatusPartlyCaptured
				}
			} else if op.IsFinished() {
				if state.AmountCaptured > 0 {
					state.Status = domain.PaymentStatusPartlyCaptured
				} else {
					state.Status = domain.PaymentStatusFullyAuthorized
				}
			}

		case domain.OperationTypeCancelRequest:
			state.Status = domain.PaymentStatusCancelRequested

		case domain.OperationTypeCancel:
			if op.IsSuccessful() {
				state.Status = domain.PaymentStatusCancelled
			} else if op.IsFinished() {
				state.Status = domain.PaymentStatusFullyAuthorized
			}

		case domain.OperationTypeRefundRequest:
			state.Status = domain.PaymentStatusRefundRequested

		case domain.OperationTypeRefund:
			if op.IsSuccessful() {
				state.AmountRefunded += op.Amount
				if state.AmountCaptured <= state.AmountRefunded {
					state.Status = domain.PaymentStatusFullyRefunded
				} else {
					state.Status = domain.PaymentStatusPartlyRefunded
				}
				break
			}
			// Any unsuccessful refund, pending included, falls back on the
			// capture state. The capture branch compares against the target
			// amount, not the refunded total.
			switch {
			case state.AmountRefunded > 0:
				state.Status = domain.PaymentStatusPartlyRefunded
			case state.AmountCaptured < target:
				state.Status = domain.PaymentStatusPartlyCaptured
			default:
				state.Status = domain.PaymentStatusFullyCaptured
			}

		case domain.OperationTypeChecksumFailure, domain.OperationTypeTestModeViolation:
			state.Status = domain.PaymentStatusInvalidated
		}
	}

	state.Anomalies = checkTotals(target, state)
	return state
}

func checkTotals(target int64, s DerivedState) []string {
	var anomalies []string
	if s.AmountRefunded > s.AmountCaptured {
		anomalies = append(anomalies, fmt.Sprintf("refunded %d exceeds captured %d", s.AmountRefunded, s.AmountCaptured))
	}
	if s.AmountCaptured > s.AmountAuthorized {
		anomalies = append(anomalies, fmt.Sprintf("captured %d exceeds authorized %d", s.AmountCaptured, s.AmountAuthorized))
	}
	if target > 0 && s.AmountCaptured > target {
		anomalies = append(anomalies, fmt.Sprintf("captured %d exceeds target %d", s.AmountCaptured, target))
	}
	return anomalies
}

// Changed reports whether applying the state would modify the payment
func (s DerivedState) Changed(p *domain.Payment) bool {
	return p.Status != s.Status ||
		p.AmountAuthorized != s.AmountAuthorized ||
		p.AmountCaptured != s.AmountCaptured ||
		p.AmountRefunded != s.AmountRefunded
}

// ApplyTo copies the derived status and totals onto the payment
func (s DerivedState) ApplyTo(p *domain.Payment) {
	p.ApplyDerived(s.Status, s.AmountAuthorized, s.AmountCaptured, s.AmountRefunded)
}

// CanCapture checks status and amount for a capture request
func (s DerivedState) CanCapture(amount int64) error {
	if s.Status != domain.PaymentStatusFullyAuthorized &&
		s.Status != domain.PaymentStatusPartlyCaptured {
		return domain.NewInvalidStateError(ActionCapture, s.Status)
	}

	remaining := s.AmountAuthorized - s.AmountCaptured
	if amount <= 0 || amount > remaining {
		return domain.NewInvalidAmountError(ActionCapture, amount, remaining)
	}
	return nil
}

// CanCancel checks status for a cancel request; nothing may be captured yet
func (s DerivedState) CanCancel() error {
	if s.Status != domain.PaymentStatusFullyAuthorized &&
		s.Status != domain.PaymentStatusCreated &&
		s.Status != domain.PaymentStatusAccepted {
		return domain.NewInvalidStateError(ActionCancel, s.Status)
	}

	if s.AmountCaptured > 0 {
		return domain.NewInvalidStateError(ActionCancel, s.Status).
			WithDetail("amount_captured", s.AmountCaptured)
	}
	return nil
}

// CanRefund checks status and amount for a refund request
func (s DerivedState) CanRefund(amount int64) error {
	if s.Status != domain.PaymentStatusFullyCaptured &&
		s.Status != domain.PaymentStatusPartlyCaptured &&
		s.Status != domain.PaymentStatusPartlyRefunded {
		return domain.NewInvalidStateError(ActionRefund, s.Status)
	}

	remaining := s.AmountCaptured - s.AmountRefunded
	if amount <= 0 || amount > remaining {
		return domain.NewInvalidAmountError(ActionRefund, amount, remaining)
	}
	return nil
}
