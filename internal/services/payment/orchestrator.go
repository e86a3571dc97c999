package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/payment-reconciler/internal/domain"
	"github.com/kevin07696/payment-reconciler/internal/domain/ports"
	"github.com/kevin07696/payment-reconciler/pkg/observability"
)

// Merchant-initiated actions
const (
	ActionCapture = "capture"
	ActionCancel  = "cancel"
	ActionRefund  = "refund"
)

type action struct {
	name     string
	opType   domain.OperationType
	amount   int64
	validate func(state DerivedState) error
	call     func(ctx context.Context, paymentID string) error
}

// RequestCapture asks the gateway to capture amount of an authorized payment.
// On success the payment is CAPTURE_REQUESTED until the callback arrives.
func (s *Service) RequestCapture(ctx context.Context, paymentID string, amount int64) (*domain.Payment, error) {
	return s.requestAction(ctx, paymentID, action{
		name:   ActionCapture,
		opType: domain.OperationTypeCaptureRequest,
		amount: amount,
		validate: func(state DerivedState) error {
			return state.CanCapture(amount)
		},
		call: func(ctx context.Context, paymentID string) error {
			return s.gateway.Capture(ctx, paymentID, amount, s.cfg.CallbackURL)
		},
	})
}

// RequestCancel asks the gateway to cancel a payment nothing was captured from
func (s *Service) RequestCancel(ctx context.Context, paymentID string) (*domain.Payment, error) {
	return s.requestAction(ctx, paymentID, action{
		name:   ActionCancel,
		opType: domain.OperationTypeCancelRequest,
		validate: func(state DerivedState) error {
			return state.CanCancel()
		},
		call: func(ctx context.Context, paymentID string) error {
			return s.gateway.Cancel(ctx, paymentID, s.cfg.CallbackURL)
		},
	})
}

// RequestRefund asks the gateway to refund amount of the captured total
func (s *Service) RequestRefund(ctx context.Context, paymentID string, amount int64) (*domain.Payment, error) {
	return s.requestAction(ctx, paymentID, action{
		name:   ActionRefund,
		opType: domain.OperationTypeRefundRequest,
		amount: amount,
		validate: func(state DerivedState) error {
			return state.CanRefund(amount)
		},
		call: func(ctx context.Context, paymentID string) error {
			return s.gateway.Refund(ctx, paymentID, amount, s.cfg.CallbackURL)
		},
	})
}

// requestAction validates against the derived state, appends the provisional
// request record, calls the gateway and removes the record again if the call
// fails for any reason. The payment lock is held for the whole sequence.
func (s *Service) requestAction(ctx context.Context, paymentID string, a action) (p *domain.Payment, err error) {
	ctx, span := s.startSpan(ctx, "payment.Request."+a.name, paymentID)
	defer func() { endSpan(span, err) }()

	unlock, err := s.lock(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var provisional *domain.Operation
	p, err = s.mutate(ctx, paymentID, func(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
		ops, err := s.operations.ListByPayment(ctx, tx, p.ID)
		if err != nil {
			return fmt.Errorf("list operations: %w", err)
		}
		if err := a.validate(DeriveState(p.Amount, ops)); err != nil {
			return err
		}

		provisional = domain.NewRequestOperation(p.ID, a.opType, a.amount, s.clock.Now())
		if err := s.operations.Append(ctx, tx, provisional); err != nil {
			return fmt.Errorf("append %s: %w", a.opType, err)
		}
		return nil
	})
	if err != nil {
		if domain.IsRejection(err) {
			observability.RecordPaymentAction(a.name, "rejected", a.amount)
			s.logger.Warn("Payment action rejected",
				ports.String("payment_id", paymentID),
				ports.String("action", a.name),
				ports.Int64("amount", a.amount),
				ports.Err(err))
		} else {
			observability.RecordPaymentAction(a.name, "failed", a.amount)
		}
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	callErr := a.call(callCtx, paymentID)
	cancel()

	if callErr == nil {
		observability.RecordPaymentAction(a.name, "requested", a.amount)
		s.logger.Info("Payment action requested",
			ports.String("payment_id", paymentID),
			ports.String("action", a.name),
			ports.Int64("amount", a.amount),
			ports.String("status", p.Status.String()))
		return p, nil
	}

	observability.RecordPaymentAction(a.name, "gateway_failed", a.amount)
	s.logger.Error("Gateway call failed, rolling back provisional operation",
		ports.String("payment_id", paymentID),
		ports.String("action", a.name),
		ports.Int64("operation_id", provisional.ID),
		ports.Err(callErr))

	// The rollback must run even when the caller's context is already done
	rbCtx, rbCancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RollbackTimeout)
	defer rbCancel()

	if _, rbErr := s.rollbackProvisional(rbCtx, paymentID, provisional.ID); rbErr != nil {
		s.logger.Error("Failed to roll back provisional operation",
			ports.String("payment_id", paymentID),
			ports.Int64("operation_id", provisional.ID),
			ports.Err(rbErr))
		return nil, errors.Join(callErr, fmt.Errorf("roll back %s: %w", a.opType, rbErr))
	}

	return nil, callErr
}

// rollbackProvisional deletes the request record and re-derives.
// The caller must hold the payment lock.
func (s *Service) rollbackProvisional(ctx context.Context, paymentID string, operationID int64) (*domain.Payment, error) {
	return s.mutate(ctx, paymentID, func(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
		return s.operations.Delete(ctx, tx, operationID)
	})
}
