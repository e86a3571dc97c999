package secrets

import (
	"context"
	"fmt"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/kevin07696/payment-reconciler/internal/domain/ports"
	"go.uber.org/zap"
)

// VaultConfig contains configuration for the HashiCorp Vault store
type VaultConfig struct {
	// Vault server address (e.g., "https://vault.example.com:8200")
	Address string

	// Authentication method: "token" or "approle"
	AuthMethod string
	Token      string
	RoleID     string
	SecretID   string

	// Vault namespace (Vault Enterprise)
	Namespace string

	// KV v2 secrets engine mount path (default: "secret")
	MountPath string
}

// VaultStore reads secrets from a KV v2 engine
type VaultStore struct {
	client    *vault.Client
	mountPath string
	logger    *zap.Logger
}

var _ ports.SecretStore = (*VaultStore)(nil)

// NewVaultStore creates and authenticates a Vault client
func NewVaultStore(ctx context.Context, cfg VaultConfig, logger *zap.Logger) (*VaultStore, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	if err := authenticateVault(ctx, client, cfg); err != nil {
		return nil, fmt.Errorf("failed to authenticate with Vault: %w", err)
	}

	mountPath := cfg.MountPath
	if mountPath == "" {
		mountPath = "secret"
	}

	logger.Info("Vault store initialized",
		zap.String("address", cfg.Address),
		zap.String("auth_method", cfg.AuthMethod),
		zap.String("mount_path", mountPath))

	return &VaultStore{client: client, mountPath: mountPath, logger: logger}, nil
}

func authenticateVault(ctx context.Context, client *vault.Client, cfg VaultConfig) error {
	switch cfg.AuthMethod {
	case "", "token":
		if cfg.Token == "" {
			return fmt.Errorf("token is required for token auth")
		}
		client.SetToken(cfg.Token)
		return nil

	case "approle":
		if cfg.RoleID == "" || cfg.SecretID == "" {
			return fmt.Errorf("role_id and secret_id are required for AppRole auth")
		}
		resp, err := client.Logical().WriteWithContext(ctx, "auth/approle/login", map[string]interface{}{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
		if err != nil {
			return fmt.Errorf("AppRole login failed: %w", err)
		}
		if resp == nil || resp.Auth == nil {
			return fmt.Errorf("AppRole login returned no auth info")
		}
		client.SetToken(resp.Auth.ClientToken)
		return nil

	default:
		return fmt.Errorf("unsupported auth method: %s", cfg.AuthMethod)
	}
}

// GetSecret implements ports.SecretStore. The value is read from the
// "value" key of the KV entry.
func (s *VaultStore) GetSecret(ctx context.Context, name string) (string, error) {
	startTime := time.Now()
	secret, err := s.client.KVv2(s.mountPath).Get(ctx, name)
	if err != nil {
		s.logger.Error("Failed to retrieve secret from Vault",
			zap.String("name", name),
			zap.Error(err))
		return "", fmt.Errorf("failed to read secret from Vault: %w", err)
	}

	s.logger.Debug("Secret retrieved from Vault",
		zap.String("name", name),
		zap.Duration("elapsed", time.Since(startTime)))

	value, ok := secret.Data["value"].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("secret %s has no value field", name)
	}
	return value, nil
}
