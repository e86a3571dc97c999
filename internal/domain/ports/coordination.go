package ports

import (
	"context"
	"time"

	"github.com/kevin07696/payment-reconciler/internal/domain"
)

// PaymentLocker serialises read-modify-write cycles on a single payment.
// Different payment ids never block each other.
type PaymentLocker interface {
	// Lock blocks until the payment is held or ctx is done
	Lock(ctx context.Context, paymentID string) (unlock func(), err error)
}

// EventPublisher forwards committed payment changes to the shop
type EventPublisher interface {
	PublishStatusChanged(ctx context.Context, event domain.PaymentStatusChanged) error
	Close() error
}

// BasketStore parks basket snapshots between checkout and order creation
type BasketStore interface {
	// Save stores the basket and returns its signature
	Save(ctx context.Context, basket *domain.Basket, ttl time.Duration) (string, error)
	Load(ctx context.Context, signature string) (*domain.Basket, error)
	Delete(ctx context.Context, signature string) error
}

// Clock abstracts time for deterministic ordering in tests
type Clock interface {
	Now() time.Time
}
