package payment

import (
	"context"
	"fmt"

	"github.com/kevin07696/payment-reconciler/internal/domain"
	"github.com/kevin07696/payment-reconciler/internal/domain/ports"
	"github.com/kevin07696/payment-reconciler/pkg/observability"
)

// BatchRequest applies one merchant action to many payments
type BatchRequest struct {
	Action     string   `validate:"required,oneof=capture cancel refund"`
	PaymentIDs []string `validate:"required,min=1,max=100,dive,required"`
}

// BatchItem is the outcome of the action on one payment
type BatchItem struct {
	// Status is the payment's status after the attempt, nil for unknown payments
	Status    *domain.PaymentStatus
	PaymentID string
	Message   string
	Success   bool
}

// BatchResult lists one item per requested payment, in request order
type BatchResult struct {
	Items     []BatchItem
	Succeeded int
	Failed    int
}

// BatchAction runs capture, cancel or refund on every listed payment.
// Capture asks for the amount not yet captured and refund for the whole
// captured amount. A failure on one payment is reported on its item and
// does not stop the batch.
func (s *Service) BatchAction(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	result := &BatchResult{Items: make([]BatchItem, 0, len(req.PaymentIDs))}
	for _, paymentID := range req.PaymentIDs {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		item := BatchItem{PaymentID: paymentID}
		p, err := s.batchOne(ctx, req.Action, paymentID)
		if err != nil {
			item.Message = err.Error()
			result.Failed++
		} else {
			item.Success = true
			result.Succeeded++
		}
		if p != nil {
			status := p.Status
			item.Status = &status
		}
		result.Items = append(result.Items, item)
	}

	observability.RecordBatchAction(req.Action, result.Succeeded, result.Failed)
	s.logger.Info("Batch payment action completed",
		ports.String("action", req.Action),
		ports.Int("succeeded", result.Succeeded),
		ports.Int("failed", result.Failed))

	return result, nil
}

// batchOne returns the stored payment alongside an action error so the
// item can still report the current status
func (s *Service) batchOne(ctx context.Context, action, paymentID string) (*domain.Payment, error) {
	current, err := s.payments.GetByID(ctx, nil, paymentID)
	if err != nil {
		return nil, err
	}

	var p *domain.Payment
	switch action {
	case ActionCapture:
		p, err = s.RequestCapture(ctx, paymentID, current.Amount-current.AmountCaptured)
	case ActionRefund:
		p, err = s.RequestRefund(ctx, paymentID, current.AmountCaptured)
	case ActionCancel:
		p, err = s.RequestCancel(ctx, paymentID)
	default:
		return current, fmt.Errorf("unsupported batch action %q", action)
	}
	if err != nil {
		return current, err
	}
	return p, nil
}
