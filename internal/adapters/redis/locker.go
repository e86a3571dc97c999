package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/payment-reconciler/internal/domain/ports"
	"github.com/kevin07696/payment-reconciler/pkg/resilience"
	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "payment-lock:"

// releaseScript deletes the lock only while it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockerConfig tunes the distributed payment lock
type LockerConfig struct {
	// TTL bounds how long a crashed holder can block a payment
	TTL time.Duration
	// RetryBackoff is the first poll delay; later polls back off exponentially
	RetryBackoff time.Duration
}

// DefaultLockerConfig covers a gateway call plus both transactions
func DefaultLockerConfig() LockerConfig {
	return LockerConfig{
		TTL:          45 * time.Second,
		RetryBackoff: 25 * time.Millisecond,
	}
}

// Locker implements ports.PaymentLocker across replicas with SET NX PX
type Locker struct {
	rdb     redis.UniversalClient
	logger  ports.Logger
	backoff resilience.BackoffStrategy
	cfg     LockerConfig
}

var _ ports.PaymentLocker = (*Locker)(nil)

// NewLocker creates a distributed locker
func NewLocker(rdb redis.UniversalClient, cfg LockerConfig, logger ports.Logger) *Locker {
	defaults := DefaultLockerConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaults.RetryBackoff
	}
	return &Locker{
		rdb:     rdb,
		logger:  logger,
		backoff: resilience.LockBackoff(cfg.RetryBackoff),
		cfg:     cfg,
	}
}

// Lock polls until the payment key is acquired or ctx is done
func (l *Locker) Lock(ctx context.Context, paymentID string) (func(), error) {
	key := lockKeyPrefix + paymentID
	token := uuid.NewString()

	for attempt := 0; ; attempt++ {
		ok, err := l.rdb.SetNX(ctx, key, token, l.cfg.TTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("acquire payment lock: %w", err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.backoff.NextDelay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, paymentID, token) })
	}, nil
}

func (l *Locker) release(key, paymentID, token string) {
	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := releaseScript.Run(releaseCtx, l.rdb, []string{key}, token).Err(); err != nil {
		l.logger.Warn("Failed to release payment lock",
			ports.String("payment_id", paymentID),
			ports.Err(err))
	}
}
