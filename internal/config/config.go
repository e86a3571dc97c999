package config

import (
	"context"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/kevin07696/payment-reconciler/internal/adapters/secrets"
	"github.com/kevin07696/payment-reconciler/internal/domain/ports"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Gateway   GatewayConfig
	Secrets   SecretsConfig
	Lock      LockConfig
	Redis     RedisConfig
	Events    EventsConfig
	Admin     AdminConfig
	Cron      CronConfig
	RateLimit RateLimitConfig
	Logger    LoggerConfig
}

// ServerConfig holds the listener configuration
type ServerConfig struct {
	Environment     string        `envconfig:"ENVIRONMENT" default:"development"`
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	HTTPPort        int           `envconfig:"HTTP_PORT" default:"8080"`
	GRPCPort        int           `envconfig:"GRPC_PORT" default:"50051"`
	MetricsPort     int           `envconfig:"METRICS_PORT" default:"9090"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	// StorageBackend is "postgres" or "memory"
	StorageBackend  string        `envconfig:"STORAGE_BACKEND" default:"postgres"`
	URL             string        `envconfig:"DATABASE_URL"`
	MaxConns        int32         `envconfig:"DATABASE_MAX_CONNS" default:"25"`
	MinConns        int32         `envconfig:"DATABASE_MIN_CONNS" default:"5"`
	MaxConnLifetime time.Duration `envconfig:"DATABASE_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `envconfig:"DATABASE_MAX_CONN_IDLE_TIME" default:"30m"`
	AutoMigrate     bool          `envconfig:"DATABASE_AUTO_MIGRATE" default:"false"`
}

// GatewayConfig holds the payment gateway configuration.
// APIKey and PrivateKey are filled from the secret store by ResolveSecrets.
type GatewayConfig struct {
	BaseURL          string        `envconfig:"GATEWAY_BASE_URL" default:"https://api.unzerdirect.com"`
	Timeout          time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"30s"`
	TestMode         bool          `envconfig:"GATEWAY_TEST_MODE" default:"false"`
	CallbackURL      string        `envconfig:"GATEWAY_CALLBACK_URL" required:"true"`
	ContinueURL      string        `envconfig:"GATEWAY_CONTINUE_URL"`
	CancelURL        string        `envconfig:"GATEWAY_CANCEL_URL"`
	BrandingID       string        `envconfig:"GATEWAY_BRANDING_ID"`
	Language         string        `envconfig:"GATEWAY_LANGUAGE" default:"en"`
	PaymentMethods   string        `envconfig:"GATEWAY_PAYMENT_METHODS"`
	APIKeySecret     string        `envconfig:"GATEWAY_API_KEY_SECRET" default:"gateway/api-key"`
	PrivateKeySecret string        `envconfig:"GATEWAY_PRIVATE_KEY_SECRET" default:"gateway/private-key"`
	BasketTTL        time.Duration `envconfig:"CHECKOUT_BASKET_TTL" default:"24h"`

	APIKey     string `ignored:"true"`
	PrivateKey string `ignored:"true"`
}

// SecretsConfig selects the secret backend
type SecretsConfig struct {
	Backend        string        `envconfig:"SECRETS_BACKEND" default:"env"`
	EnvPrefix      string        `envconfig:"SECRETS_ENV_PREFIX" default:"SECRET_"`
	LocalPath      string        `envconfig:"SECRETS_LOCAL_PATH" default:"./secrets"`
	CacheTTL       time.Duration `envconfig:"SECRETS_CACHE_TTL" default:"5m"`
	AWSRegion      string        `envconfig:"AWS_REGION" default:"eu-central-1"`
	AWSProfile     string        `envconfig:"AWS_PROFILE"`
	AWSEndpoint    string        `envconfig:"AWS_SECRETS_ENDPOINT"`
	VaultAddress   string        `envconfig:"VAULT_ADDR"`
	VaultAuth      string        `envconfig:"VAULT_AUTH_METHOD" default:"token"`
	VaultToken     string        `envconfig:"VAULT_TOKEN"`
	VaultRoleID    string        `envconfig:"VAULT_ROLE_ID"`
	VaultSecretID  string        `envconfig:"VAULT_SECRET_ID"`
	VaultNamespace string        `envconfig:"VAULT_NAMESPACE"`
	VaultMount     string        `envconfig:"VAULT_MOUNT_PATH" default:"secret"`
}

// LockConfig selects how payments are serialised
type LockConfig struct {
	// Backend is "memory" for a single replica or "redis" across replicas
	Backend         string        `envconfig:"LOCK_BACKEND" default:"memory"`
	Timeout         time.Duration `envconfig:"LOCK_TIMEOUT" default:"60s"`
	TTL             time.Duration `envconfig:"LOCK_TTL" default:"45s"`
	RollbackTimeout time.Duration `envconfig:"ROLLBACK_TIMEOUT" default:"10s"`
	// TxBudget is the expected upper bound of one database transaction.
	// A held lock spans a gateway call, a possible rollback and two transactions.
	TxBudget time.Duration `envconfig:"LOCK_TX_BUDGET" default:"2s"`
}

// HoldBound is the longest a caller may keep a payment lock
func (l LockConfig) HoldBound(gatewayTimeout time.Duration) time.Duration {
	return gatewayTimeout + l.RollbackTimeout + 2*l.TxBudget
}

// RedisConfig holds the Redis connection used for locks and parked baskets
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// EventsConfig selects the broker for payment status events
type EventsConfig struct {
	// Broker is "none", "log", "nats" or "kafka"
	Broker         string        `envconfig:"EVENTS_BROKER" default:"log"`
	PublishTimeout time.Duration `envconfig:"EVENTS_PUBLISH_TIMEOUT" default:"5s"`
	NATSURL        string        `envconfig:"NATS_URL" default:"nats://localhost:4222"`
	NATSName       string        `envconfig:"NATS_CLIENT_NAME" default:"payment-reconciler"`
	NATSStream     string        `envconfig:"NATS_STREAM" default:"PAYMENTS"`
	NATSSubject    string        `envconfig:"NATS_SUBJECT_PREFIX" default:"payments"`
	NATSReconnects int           `envconfig:"NATS_MAX_RECONNECTS" default:"10"`
	NATSWait       time.Duration `envconfig:"NATS_RECONNECT_WAIT" default:"2s"`
	KafkaBrokers   []string      `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	KafkaTopic     string        `envconfig:"KAFKA_TOPIC" default:"payment-status"`
}

// AdminConfig holds the merchant API authentication settings
type AdminConfig struct {
	JWTSecretName string `envconfig:"ADMIN_JWT_SECRET_NAME" default:"admin/jwt-secret"`
	JWTIssuer     string `envconfig:"ADMIN_JWT_ISSUER" default:"payment-reconciler"`

	JWTSecret string `ignored:"true"`
}

// CronConfig holds the stale-payment sweeper settings
type CronConfig struct {
	SecretName string        `envconfig:"CRON_SECRET_NAME" default:"cron/secret"`
	OlderThan  time.Duration `envconfig:"SYNC_OLDER_THAN" default:"15m"`
	BatchSize  int32         `envconfig:"SYNC_BATCH_SIZE" default:"100"`
	// Interval runs the sweep in-process when positive
	Interval time.Duration `envconfig:"SYNC_INTERVAL" default:"0s"`

	Secret string `ignored:"true"`
}

// RateLimitConfig bounds inbound callback traffic per client IP
type RateLimitConfig struct {
	CallbackRPS   float64 `envconfig:"CALLBACK_RATE_LIMIT_RPS" default:"20"`
	CallbackBurst int     `envconfig:"CALLBACK_RATE_LIMIT_BURST" default:"40"`
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEVELOPMENT" default:"false"`
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements
func (c *Config) Validate() error {
	switch c.Database.StorageBackend {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND=postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND: %s", c.Database.StorageBackend)
	}

	switch c.Lock.Backend {
	case "memory":
	case "redis":
		// a lock that expires mid-operation lets a second replica in
		if bound := c.Lock.HoldBound(c.Gateway.Timeout); c.Lock.TTL <= bound {
			return fmt.Errorf("LOCK_TTL (%s) must exceed GATEWAY_TIMEOUT + ROLLBACK_TIMEOUT + 2*LOCK_TX_BUDGET (%s)",
				c.Lock.TTL, bound)
		}
	default:
		return fmt.Errorf("unsupported LOCK_BACKEND: %s", c.Lock.Backend)
	}

	switch c.Events.Broker {
	case "none", "log", "nats", "kafka":
	default:
		return fmt.Errorf("unsupported EVENTS_BROKER: %s", c.Events.Broker)
	}

	if c.Gateway.CallbackURL == "" {
		return fmt.Errorf("GATEWAY_CALLBACK_URL is required")
	}
	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be positive")
	}
	return nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// SecretStoreConfig maps the environment settings onto the secret backend
func (c *Config) SecretStoreConfig() secrets.Config {
	s := c.Secrets
	return secrets.Config{
		Backend:   s.Backend,
		EnvPrefix: s.EnvPrefix,
		LocalPath: s.LocalPath,
		CacheTTL:  s.CacheTTL,
		AWS: secrets.AWSConfig{
			Region:   s.AWSRegion,
			Profile:  s.AWSProfile,
			Endpoint: s.AWSEndpoint,
		},
		Vault: secrets.VaultConfig{
			Address:    s.VaultAddress,
			AuthMethod: s.VaultAuth,
			Token:      s.VaultToken,
			RoleID:     s.VaultRoleID,
			SecretID:   s.VaultSecretID,
			Namespace:  s.VaultNamespace,
			MountPath:  s.VaultMount,
		},
	}
}

// ResolveSecrets loads the credentials from the secret store.
// The gateway keys and the admin token secret are required; the cron
// secret is optional and disables the cron endpoint when missing.
func (c *Config) ResolveSecrets(ctx context.Context, store ports.SecretStore) error {
	required := []struct {
		name   string
		target *string
	}{
		{c.Gateway.APIKeySecret, &c.Gateway.APIKey},
		{c.Gateway.PrivateKeySecret, &c.Gateway.PrivateKey},
		{c.Admin.JWTSecretName, &c.Admin.JWTSecret},
	}
	for _, r := range required {
		value, err := store.GetSecret(ctx, r.name)
		if err != nil {
			return fmt.Errorf("resolve secret %s: %w", r.name, err)
		}
		*r.target = value
	}

	if value, err := store.GetSecret(ctx, c.Cron.SecretName); err == nil {
		c.Cron.Secret = value
	}
	return nil
}
