package secrets

import (
	"context"
	"fmt"
	"time"

	"github.com/kevin07696/payment-reconciler/internal/domain/ports"
	"go.uber.org/zap"
)

// Secret backends
const (
	BackendEnv   = "env"
	BackendLocal = "local"
	BackendAWS   = "aws"
	BackendVault = "vault"
)

// Config selects and configures the secret backend
type Config struct {
	Backend   string
	EnvPrefix string
	LocalPath string
	CacheTTL  time.Duration
	AWS       AWSConfig
	Vault     VaultConfig
}

// NewStore creates the configured backend. Remote backends are cached for CacheTTL.
func NewStore(ctx context.Context, cfg Config, logger *zap.Logger) (ports.SecretStore, error) {
	switch cfg.Backend {
	case "", BackendEnv:
		return NewEnvStore(cfg.EnvPrefix), nil
	case BackendLocal:
		return NewLocalStore(cfg.LocalPath, logger), nil
	case BackendAWS:
		store, err := NewAWSStore(ctx, cfg.AWS, logger)
		if err != nil {
			return nil, err
		}
		return WithCache(store, cfg.CacheTTL), nil
	case BackendVault:
		store, err := NewVaultStore(ctx, cfg.Vault, logger)
		if err != nil {
			return nil, err
		}
		return WithCache(store, cfg.CacheTTL), nil
	default:
		return nil, fmt.Errorf("unsupported secret backend: %s", cfg.Backend)
	}
}
