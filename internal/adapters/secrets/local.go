package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kevin07696/payment-reconciler/internal/domain/ports"
	"go.uber.org/zap"
)

// LocalStore reads secrets from files below a base directory.
// WARNING: This is for development only. Use AWS Secrets Manager or Vault in production.
type LocalStore struct {
	basePath string
	logger   *zap.Logger
}

var _ ports.SecretStore = (*LocalStore)(nil)

// NewLocalStore creates a filesystem secret store
func NewLocalStore(basePath string, logger *zap.Logger) *LocalStore {
	return &LocalStore{basePath: basePath, logger: logger}
}

// GetSecret implements ports.SecretStore. Files hold either the plain value
// or a JSON object with a "value" field.
func (s *LocalStore) GetSecret(ctx context.Context, name string) (string, error) {
	filePath := filepath.Join(s.basePath, filepath.Clean("/"+name))

	s.logger.Debug("Reading secret from filesystem", zap.String("name", name))

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("secret not found: %s", name)
		}
		return "", fmt.Errorf("failed to read secret: %w", err)
	}

	var secretData struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &secretData); err == nil && secretData.Value != "" {
		return secretData.Value, nil
	}

	return strings.TrimSpace(string(data)), nil
}
