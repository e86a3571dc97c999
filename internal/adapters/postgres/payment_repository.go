package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/payment-reconciler/internal/domain"
	"github.com/kevin07696/payment-reconciler/internal/domain/ports"
)

const paymentColumns = `
	id, order_id, customer_id, currency, amount,
	amount_authorized, amount_captured, amount_refunded, status,
	order_number, link, basket_signature,
	created_at, updated_at`

// PaymentRepository implements ports.PaymentRepository with raw pgx queries
type PaymentRepository struct {
	pool *pgxpool.Pool
}

var _ ports.PaymentRepository = (*PaymentRepository)(nil)

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *DBExecutor) *PaymentRepository {
	return &PaymentRepository{pool: db.GetDB()}
}

// Create inserts a new payment
func (r *PaymentRepository) Create(ctx context.Context, tx ports.DBTX, p *domain.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := executor(r.pool, tx).Exec(ctx, query,
		p.ID,
		p.OrderID,
		p.CustomerID,
		p.Currency,
		p.Amount,
		p.AmountAuthorized,
		p.AmountCaptured,
		p.AmountRefunded,
		int16(p.Status),
		p.OrderNumber,
		p.Link,
		p.BasketSignature,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	return nil
}

// GetByID retrieves a payment by its gateway id
func (r *PaymentRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return scanPayment(executor(r.pool, db).QueryRow(ctx, query, id), id)
}

// GetForUpdate retrieves the payment and locks its row until tx ends
func (r *PaymentRepository) GetForUpdate(ctx context.Context, tx ports.DBTX, id string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 FOR UPDATE`
	return scanPayment(executor(r.pool, tx).QueryRow(ctx, query, id), id)
}

// Update writes the mutable fields of the payment
func (r *PaymentRepository) Update(ctx context.Context, tx ports.DBTX, p *domain.Payment) error {
	query := `
		UPDATE payments
		SET amount = $2, amount_authorized = $3, amount_captured = $4, amount_refunded = $5,
		    status = $6, order_number = $7, link = $8, basket_signature = $9, updated_at = $10
		WHERE id = $1
	`

	result, err := executor(r.pool, tx).Exec(ctx, query,
		p.ID,
		p.Amount,
		p.AmountAuthorized,
		p.AmountCaptured,
		p.AmountRefunded,
		int16(p.Status),
		p.OrderNumber,
		p.Link,
		p.BasketSignature,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.NewPaymentNotFoundError(p.ID)
	}

	return nil
}

// ListByStatus returns payments in one of statuses last updated before the cutoff
func (r *PaymentRepository) ListByStatus(ctx context.Context, db ports.DBTX, statuses []domain.PaymentStatus, before time.Time, limit int32) ([]*domain.Payment, error) {
	codes := make([]int16, len(statuses))
	for i, s := range statuses {
		codes[i] = int16(s)
	}

	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = ANY($1) AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3
	`

	rows, err := executor(r.pool, db).Query(ctx, query, codes, before, limit)
	if err != nil {
		return nil, fmt.Errorf("query payments by status: %w", err)
	}
	defer rows.Close()

	var payments []*domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows, "")
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}

	return payments, rows.Err()
}

func scanPayment(row pgx.Row, id string) (*domain.Payment, error) {
	var (
		p      domain.Payment
		status int16
	)

	err := row.Scan(
		&p.ID,
		&p.OrderID,
		&p.CustomerID,
		&p.Currency,
		&p.Amount,
		&p.AmountAuthorized,
		&p.AmountCaptured,
		&p.AmountRefunded,
		&status,
		&p.OrderNumber,
		&p.Link,
		&p.BasketSignature,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewPaymentNotFoundError(id)
		}
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "scan payment", err)
	}

	p.Status = domain.PaymentStatus(status)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}
