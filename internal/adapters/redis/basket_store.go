package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/payment-reconciler/internal/domain"
	"github.com/kevin07696/payment-reconciler/internal/domain/ports"
	"github.com/redis/go-redis/v9"
)

const basketKeyPrefix = "basket:"

// BasketStore parks checkout baskets in Redis with a TTL
type BasketStore struct {
	rdb redis.UniversalClient
}

var _ ports.BasketStore = (*BasketStore)(nil)

// NewBasketStore creates a Redis-backed basket store
func NewBasketStore(rdb redis.UniversalClient) *BasketStore {
	return &BasketStore{rdb: rdb}
}

// Save implements ports.BasketStore
func (s *BasketStore) Save(ctx context.Context, basket *domain.Basket, ttl time.Duration) (string, error) {
	data, err := json.Marshal(basket)
	if err != nil {
		return "", fmt.Errorf("marshal basket: %w", err)
	}

	signature := uuid.NewString()
	if err := s.rdb.Set(ctx, basketKeyPrefix+signature, data, ttl).Err(); err != nil {
		return "", fmt.Errorf("save basket: %w", err)
	}
	return signature, nil
}

// Load implements ports.BasketStore; unknown or expired baskets are nil
func (s *BasketStore) Load(ctx context.Context, signature string) (*domain.Basket, error) {
	data, err := s.rdb.Get(ctx, basketKeyPrefix+signature).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load basket: %w", err)
	}

	var basket domain.Basket
	if err := json.Unmarshal(data, &basket); err != nil {
		return nil, fmt.Errorf("unmarshal basket: %w", err)
	}
	return &basket, nil
}

// Delete implements ports.BasketStore
func (s *BasketStore) Delete(ctx context.Context, signature string) error {
	if err := s.rdb.Del(ctx, basketKeyPrefix+signature).Err(); err != nil {
		return fmt.Errorf("delete basket: %w", err)
	}
	return nil
}
