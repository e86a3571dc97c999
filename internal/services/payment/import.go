package payment

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/payment-reconciler/internal/domain"
	"github.com/kevin07696/payment-reconciler/internal/domain/ports"
	"github.com/kevin07696/payment-reconciler/pkg/observability"
)

// SourceImport labels reconciliations of imported payments
const SourceImport = "import"

// ImportPaymentInput identifies the shop side of a payment known only to the gateway
type ImportPaymentInput struct {
	CustomerID  string `validate:"required"`
	OrderNumber string `validate:"omitempty,max=255"`
}

// ImportPayment stores a payment that exists at the gateway but not locally,
// typically because the checkout response never reached the shop. The
// payment is read from the gateway, stored with its link and order number
// together with a create operation, and its operations are reconciled in
// the same transaction.
func (s *Service) ImportPayment(ctx context.Context, paymentID string, in ImportPaymentInput) (p *domain.Payment, err error) {
	ctx, span := s.startSpan(ctx, "payment.Import", paymentID)
	defer func() { endSpan(span, err) }()

	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	unlock, err := s.lock(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := s.payments.GetByID(ctx, nil, paymentID); err == nil {
		return nil, domain.NewPaymentExistsError(paymentID)
	} else if !domain.IsNotFoundError(err) {
		return nil, err
	}

	remote, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		s.logger.Error("Failed to load payment for import",
			ports.String("payment_id", paymentID),
			ports.Err(err))
		return nil, err
	}
	if err := s.validateNotification(paymentID, remote); err != nil {
		return nil, err
	}
	if remote.Link == nil || remote.Link.URL == "" || remote.Link.Amount <= 0 {
		return nil, domain.NewReconciliationError("gateway payment has no payment link", nil).
			WithDetail("payment_id", paymentID)
	}

	now := s.clock.Now()
	link := remote.Link.URL
	p = &domain.Payment{
		ID:         paymentID,
		OrderID:    remote.OrderID,
		CustomerID: in.CustomerID,
		Currency:   remote.Currency,
		Amount:     remote.Link.Amount,
		Status:     domain.PaymentStatusCreated,
		Link:       &link,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if in.OrderNumber != "" {
		orderNumber := in.OrderNumber
		p.OrderNumber = &orderNumber
	}
	created := *p

	var result MergeResult
	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.payments.Create(ctx, tx, p); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		create := &domain.Operation{
			PaymentID:        p.ID,
			Type:             domain.OperationTypeCreate,
			GatewayCreatedAt: remote.CreatedAt,
			CreatedAt:        now,
			Payload:          rawPayload(remote.Raw),
		}
		if err := s.operations.Append(ctx, tx, create); err != nil {
			return fmt.Errorf("append create operation: %w", err)
		}

		r, err := s.merge(ctx, tx, p.ID, remote.Operations)
		result = r
		if err != nil {
			return err
		}

		if err := s.rederive(ctx, tx, p); err != nil {
			return err
		}
		p.UpdatedAt = s.clock.Now()
		if err := s.payments.Update(ctx, tx, p); err != nil {
			return fmt.Errorf("update payment: %w", err)
		}
		return nil
	})
	if err != nil {
		observability.RecordReconciliation(SourceImport, "failed", 0, 0)
		s.logger.Error("Payment import failed",
			ports.String("payment_id", paymentID),
			ports.Err(err))
		return nil, err
	}

	observability.RecordReconciliation(SourceImport, "applied", result.Inserted, result.Updated)
	s.logger.Info("Payment imported",
		ports.String("payment_id", p.ID),
		ports.String("order_id", p.OrderID),
		ports.Int64("amount", p.Amount),
		ports.Int("operations", result.Inserted),
		ports.String("status", p.Status.String()))

	s.afterCommit(ctx, &created, p)
	return p, nil
}
