package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/payment-reconciler/internal/domain"
	"github.com/kevin07696/payment-reconciler/internal/domain/ports"
)

// OperationRepository implements ports.OperationRepository on payment_operations
type OperationRepository struct {
	pool *pgxpool.Pool
}

var _ ports.OperationRepository = (*OperationRepository)(nil)

// NewOperationRepository creates a new operation repository
func NewOperationRepository(db *DBExecutor) *OperationRepository {
	return &OperationRepository{pool: db.GetDB()}
}

// Append inserts the operation and sets its id
func (r *OperationRepository) Append(ctx context.Context, tx ports.DBTX, op *domain.Operation) error {
	query := `
		INSERT INTO payment_operations (
			payment_id, operation_id, type, outcome, status_code,
			amount, payload, gateway_created_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err := executor(r.pool, tx).QueryRow(ctx, query,
		op.PaymentID,
		op.OperationID,
		string(op.Type),
		string(op.Outcome),
		op.StatusCode,
		op.Amount,
		nullableJSON(op.Payload),
		op.GatewayCreatedAt,
		op.CreatedAt,
	).Scan(&op.ID)
	if err != nil {
		return fmt.Errorf("insert payment operation: %w", err)
	}

	return nil
}

// ListByPayment returns the log of a payment in (created_at, id) order
func (r *OperationRepository) ListByPayment(ctx context.Context, db ports.DBTX, paymentID string) ([]*domain.Operation, error) {
	query := `
		SELECT id, payment_id, operation_id, type, outcome, status_code,
		       amount, payload, gateway_created_at, created_at
		FROM payment_operations
		WHERE payment_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := executor(r.pool, db).Query(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("query payment operations: %w", err)
	}
	defer rows.Close()

	var ops []*domain.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}

	return ops, rows.Err()
}

// Update overwrites the fields a gateway notification can change
func (r *OperationRepository) Update(ctx context.Context, tx ports.DBTX, op *domain.Operation) error {
	query := `
		UPDATE payment_operations
		SET type = $2, outcome = $3, status_code = $4, amount = $5,
		    payload = $6, gateway_created_at = $7
		WHERE id = $1
	`

	result, err := executor(r.pool, tx).Exec(ctx, query,
		op.ID,
		string(op.Type),
		string(op.Outcome),
		op.StatusCode,
		op.Amount,
		nullableJSON(op.Payload),
		op.GatewayCreatedAt,
	)
	if err != nil {
		return fmt.Errorf("update payment operation: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("payment operation not found: %d", op.ID)
	}

	return nil
}

// Delete removes a single operation
func (r *OperationRepository) Delete(ctx context.Context, tx ports.DBTX, id int64) error {
	result, err := executor(r.pool, tx).Exec(ctx, `DELETE FROM payment_operations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete payment operation: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("payment operation not found: %d", id)
	}

	return nil
}

func scanOperation(row pgx.Row) (*domain.Operation, error) {
	var (
		op              domain.Operation
		opType, outcome string
		payload         []byte
	)

	err := row.Scan(
		&op.ID,
		&op.PaymentID,
		&op.OperationID,
		&opType,
		&outcome,
		&op.StatusCode,
		&op.Amount,
		&payload,
		&op.GatewayCreatedAt,
		&op.CreatedAt,
	)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "scan payment operation", err)
	}

	op.Type = domain.OperationType(opType)
	op.Outcome = domain.OperationOutcome(outcome)
	op.CreatedAt = op.CreatedAt.UTC()
	if op.GatewayCreatedAt != nil {
		t := op.GatewayCreatedAt.UTC()
		op.GatewayCreatedAt = &t
	}
	if len(payload) > 0 {
		op.Payload = payload
	}

	return &op, nil
}
