package ports

import (
	"context"
	"time"

	"github.com/kevin07696/payment-reconciler/internal/domain"
)

// PaymentRepository persists payment records keyed by the gateway payment id
type PaymentRepository interface {
	// Create inserts a new payment
	Create(ctx context.Context, tx DBTX, payment *domain.Payment) error

	// GetByID returns domain.ErrPaymentNotFound when the id is unknown
	GetByID(ctx context.Context, db DBTX, id string) (*domain.Payment, error)

	// GetForUpdate reads the payment and holds its row lock until tx ends
	GetForUpdate(ctx context.Context, tx DBTX, id string) (*domain.Payment, error)

	// Update writes every mutable field of the payment
	Update(ctx context.Context, tx DBTX, payment *domain.Payment) error

	// ListByStatus returns payments in one of the given states not updated since before
	ListByStatus(ctx context.Context, db DBTX, statuses []domain.PaymentStatus, before time.Time, limit int32) ([]*domain.Payment, error)
}

// OperationRepository is the per-payment operation log
type OperationRepository interface {
	// Append inserts the operation and assigns op.ID
	Append(ctx context.Context, tx DBTX, op *domain.Operation) error

	// ListByPayment returns the log ordered by (created_at, id) ascending
	ListByPayment(ctx context.Context, db DBTX, paymentID string) ([]*domain.Operation, error)

	// Update overwrites the mutable fields of an existing operation
	Update(ctx context.Context, tx DBTX, op *domain.Operation) error

	// Delete removes one operation, only used to roll back provisional records
	Delete(ctx context.Context, tx DBTX, id int64) error
}
