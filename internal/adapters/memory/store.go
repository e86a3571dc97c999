// Package memory provides an in-process store for local runs and tests.
// It implements the same ports as the PostgreSQL adapter.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/payment-reconciler/internal/domain"
	"github.com/kevin07696/payment-reconciler/internal/domain/ports"
)

// Store keeps payments and their operation logs in memory.
// Write transactions are serialised and rolled back on error.
type Store struct {
	txMu sync.Mutex

	mu       sync.RWMutex
	payments map[string]*domain.Payment
	ops      map[string][]*domain.Operation
	nextID   int64
}

var _ ports.TransactionManager = (*Store)(nil)

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		payments: make(map[string]*domain.Payment),
		ops:      make(map[string][]*domain.Operation),
	}
}

// Payments returns the payment repository view of the store
func (s *Store) Payments() *PaymentRepository {
	return &PaymentRepository{store: s}
}

// Operations returns the operation repository view of the store
func (s *Store) Operations() *OperationRepository {
	return &OperationRepository{store: s}
}

// WithTransaction runs fn exclusively. Changes are discarded if fn fails or panics.
// fn receives a nil transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snap := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			panic(p)
		}
		if err != nil {
			s.restore(snap)
		}
	}()

	return fn(ctx, nil)
}

// WithReadOnlyTransaction runs fn while no write transaction is active
func (s *Store) WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, nil)
}

type snapshot struct {
	payments map[string]*domain.Payment
	ops      map[string][]*domain.Operation
	nextID   int64
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := snapshot{
		payments: make(map[string]*domain.Payment, len(s.payments)),
		ops:      make(map[string][]*domain.Operation, len(s.ops)),
		nextID:   s.nextID,
	}
	for id, p := range s.payments {
		snap.payments[id] = clonePayment(p)
	}
	for id, list := range s.ops {
		snap.ops[id] = cloneOperations(list)
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.payments = snap.payments
	s.ops = snap.ops
	s.nextID = snap.nextID
}

// PaymentRepository implements ports.PaymentRepository on a Store
type PaymentRepository struct {
	store *Store
}

var _ ports.PaymentRepository = (*PaymentRepository)(nil)

// Create inserts a new payment
func (r *PaymentRepository) Create(ctx context.Context, tx ports.DBTX, p *domain.Payment) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.payments[p.ID]; ok {
		return fmt.Errorf("insert payment: duplicate id %s", p.ID)
	}
	for _, existing := range r.store.payments {
		if existing.OrderID == p.OrderID {
			return fmt.Errorf("insert payment: duplicate order id %s", p.OrderID)
		}
	}
	r.store.payments[p.ID] = clonePayment(p)
	return nil
}

// GetByID returns a copy of the payment
func (r *PaymentRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*domain.Payment, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	p, ok := r.store.payments[id]
	if !ok {
		return nil, domain.NewPaymentNotFoundError(id)
	}
	return clonePayment(p), nil
}

// GetForUpdate is GetByID; the store's transaction already excludes other writers
func (r *PaymentRepository) GetForUpdate(ctx context.Context, tx ports.DBTX, id string) (*domain.Payment, error) {
	return r.GetByID(ctx, tx, id)
}

// Update replaces the stored payment
func (r *PaymentRepository) Update(ctx context.Context, tx ports.DBTX, p *domain.Payment) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.payments[p.ID]; !ok {
		return domain.NewPaymentNotFoundError(p.ID)
	}
	r.store.payments[p.ID] = clonePayment(p)
	return nil
}

// ListByStatus returns payments in one of statuses updated before the cutoff, oldest first
func (r *PaymentRepository) ListByStatus(ctx context.Context, db ports.DBTX, statuses []domain.PaymentStatus, before time.Time, limit int32) ([]*domain.Payment, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	wanted := make(map[domain.PaymentStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}

	var result []*domain.Payment
	for _, p := range r.store.payments {
		if wanted[p.Status] && p.UpdatedAt.Before(before) {
			result = append(result, clonePayment(p))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.Before(result[j].UpdatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if limit > 0 && len(result) > int(limit) {
		result = result[:limit]
	}
	return result, nil
}

// OperationRepository implements ports.OperationRepository on a Store
type OperationRepository struct {
	store *Store
}

var _ ports.OperationRepository = (*OperationRepository)(nil)

// Append stores a copy of op and assigns the next id
func (r *OperationRepository) Append(ctx context.Context, tx ports.DBTX, op *domain.Operation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.payments[op.PaymentID]; !ok {
		return domain.NewPaymentNotFoundError(op.PaymentID)
	}
	r.store.nextID++
	op.ID = r.store.nextID
	r.store.ops[op.PaymentID] = append(r.store.ops[op.PaymentID], op.Clone())
	return nil
}

// ListByPayment returns copies of the log in (created_at, id) order
func (r *OperationRepository) ListByPayment(ctx context.Context, db ports.DBTX, paymentID string) ([]*domain.Operation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	ops := cloneOperations(r.store.ops[paymentID])
	domain.SortOperations(ops)
	return ops, nil
}

// Update replaces the stored operation with the same id
func (r *OperationRepository) Update(ctx context.Context, tx ports.DBTX, op *domain.Operation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	list := r.store.ops[op.PaymentID]
	for i, existing := range list {
		if existing.ID == op.ID {
			list[i] = op.Clone()
			return nil
		}
	}
	return fmt.Errorf("payment operation not found: %d", op.ID)
}

// Delete removes the operation with the given id
func (r *OperationRepository) Delete(ctx context.Context, tx ports.DBTX, id int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for paymentID, list := range r.store.ops {
		for i, existing := range list {
			if existing.ID == id {
				r.store.ops[paymentID] = append(list[:i:i], list[i+1:]...)
				return nil
			}
		}
	}
	return fmt.Errorf("payment operation not found: %d", id)
}

func clonePayment(p *domain.Payment) *domain.Payment {
	c := *p
	c.OrderNumber = cloneString(p.OrderNumber)
	c.Link = cloneString(p.Link)
	c.BasketSignature = cloneString(p.BasketSignature)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneOperations(list []*domain.Operation) []*domain.Operation {
	if list == nil {
		return nil
	}
	out := make([]*domain.Operation, len(list))
	for i, op := range list {
		out[i] = op.Clone()
	}
	return out
}
