package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/kevin07696/payment-reconciler/internal/domain/ports"
	"go.uber.org/zap"
)

// AWSConfig contains configuration for the AWS Secrets Manager store
type AWSConfig struct {
	// AWS Region (e.g., "eu-central-1")
	Region string

	// Optional: AWS profile name (for local development)
	Profile string

	// Optional: Custom endpoint (for LocalStack testing)
	Endpoint string
}

type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSStore reads secrets from AWS Secrets Manager
type AWSStore struct {
	client secretsManagerAPI
	logger *zap.Logger
}

var _ ports.SecretStore = (*AWSStore)(nil)

// NewAWSStore loads the default credential chain and creates the store
func NewAWSStore(ctx context.Context, cfg AWSConfig, logger *zap.Logger) (*AWSStore, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Profile != "" {
		// Use specific profile (local development)
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOptions []func(*secretsmanager.Options)
	if cfg.Endpoint != "" {
		clientOptions = append(clientOptions, func(o *secretsmanager.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	logger.Info("AWS Secrets Manager store initialized", zap.String("region", cfg.Region))

	return &AWSStore{
		client: secretsmanager.NewFromConfig(awsConfig, clientOptions...),
		logger: logger,
	}, nil
}

// GetSecret implements ports.SecretStore. JSON secrets with a "value"
// field are unwrapped; anything else is returned as stored.
func (s *AWSStore) GetSecret(ctx context.Context, name string) (string, error) {
	startTime := time.Now()
	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		s.logger.Error("Failed to retrieve secret",
			zap.String("name", name),
			zap.Error(err))
		return "", fmt.Errorf("failed to get secret %s: %w", name, err)
	}

	s.logger.Debug("Secret retrieved from AWS Secrets Manager",
		zap.String("name", name),
		zap.Duration("duration", time.Since(startTime)))

	raw := aws.ToString(result.SecretString)
	if raw == "" {
		return "", fmt.Errorf("secret %s has no string value", name)
	}

	var wrapped struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err == nil && wrapped.Value != "" {
		return wrapped.Value, nil
	}
	return raw, nil
}
