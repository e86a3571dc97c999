package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kevin07696/payment-reconciler/internal/domain/ports"
)

// EnvStore reads secrets from environment variables.
// The name "gateway/api-key" is looked up as <prefix>GATEWAY_API_KEY.
type EnvStore struct {
	prefix string
}

var _ ports.SecretStore = (*EnvStore)(nil)

// NewEnvStore creates an environment-backed secret store
func NewEnvStore(prefix string) *EnvStore {
	return &EnvStore{prefix: prefix}
}

// GetSecret implements ports.SecretStore
func (s *EnvStore) GetSecret(ctx context.Context, name string) (string, error) {
	key := s.EnvKey(name)
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", fmt.Errorf("secret not found: %s (env %s)", name, key)
	}
	return value, nil
}

// EnvKey returns the variable a secret name maps to
func (s *EnvStore) EnvKey(name string) string {
	key := strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(name)
	return s.prefix + strings.ToUpper(key)
}
