package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/payment-reconciler/internal/domain"
	"github.com/kevin07696/payment-reconciler/internal/domain/ports"
)

type parkedBasket struct {
	basket    domain.Basket
	expiresAt time.Time
}

// BasketStore implements ports.BasketStore in memory
type BasketStore struct {
	mu      sync.Mutex
	baskets map[string]parkedBasket
	now     func() time.Time
}

var _ ports.BasketStore = (*BasketStore)(nil)

// NewBasketStore creates an empty basket store
func NewBasketStore() *BasketStore {
	return &BasketStore{
		baskets: make(map[string]parkedBasket),
		now:     time.Now,
	}
}

// Save parks a copy of basket until ttl elapses
func (s *BasketStore) Save(ctx context.Context, basket *domain.Basket, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	signature := uuid.NewString()
	c := *basket
	c.Items = append([]domain.BasketItem(nil), basket.Items...)
	s.baskets[signature] = parkedBasket{basket: c, expiresAt: s.now().Add(ttl)}
	return signature, nil
}

// Load returns the parked basket, or nil if it is unknown or expired
func (s *BasketStore) Load(ctx context.Context, signature string) (*domain.Basket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parked, ok := s.baskets[signature]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(parked.expiresAt) {
		delete(s.baskets, signature)
		return nil, nil
	}
	c := parked.basket
	c.Items = append([]domain.BasketItem(nil), parked.basket.Items...)
	return &c, nil
}

// Delete removes the parked basket; unknown signatures are ignored
func (s *BasketStore) Delete(ctx context.Context, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.baskets, signature)
	return nil
}

// Len returns the number of parked baskets
func (s *BasketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.baskets)
}
