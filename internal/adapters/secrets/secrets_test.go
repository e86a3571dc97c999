package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEnvStore(t *testing.T) {
	t.Setenv("SECRET_GATEWAY_API_KEY", "api-key")
	store := NewEnvStore("SECRET_")

	assert.Equal(t, "SECRET_GATEWAY_API_KEY", store.EnvKey("gateway/api-key"))

	value, err := store.GetSecret(context.Background(), "gateway/api-key")
	require.NoError(t, err)
	assert.Equal(t, "api-key", value)

	_, err = store.GetSecret(context.Background(), "gateway/private-key")
	assert.Error(t, err)
}

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "gateway"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gateway", "api-key"), []byte("plain-key\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gateway", "private-key"), []byte(`{"value":"json-key"}`), 0o600))

	store := NewLocalStore(dir, zap.NewNop())
	ctx := context.Background()

	value, err := store.GetSecret(ctx, "gateway/api-key")
	require.NoError(t, err)
	assert.Equal(t, "plain-key", value)

	value, err = store.GetSecret(ctx, "gateway/private-key")
	require.NoError(t, err)
	assert.Equal(t, "json-key", value)

	_, err = store.GetSecret(ctx, "gateway/missing")
	assert.Error(t, err)

	// names cannot escape the base directory
	_, err = store.GetSecret(ctx, "../../etc/passwd")
	assert.Error(t, err)
}

type countingStore struct {
	calls int
	value string
	err   error
}

func (s *countingStore) GetSecret(ctx context.Context, name string) (string, error) {
	s.calls++
	return s.value, s.err
}

func TestWithCache(t *testing.T) {
	backend := &countingStore{value: "secret"}
	store := WithCache(backend, time.Minute).(*cachedStore)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		value, err := store.GetSecret(ctx, "admin/jwt-secret")
		require.NoError(t, err)
		assert.Equal(t, "secret", value)
	}
	assert.Equal(t, 1, backend.calls)

	now = now.Add(2 * time.Minute)
	_, err := store.GetSecret(ctx, "admin/jwt-secret")
	require.NoError(t, err)
	assert.Equal(t, 2, backend.calls)
}

func TestWithCache_ErrorsAreNotCached(t *testing.T) {
	backend := &countingStore{err: errors.New("unavailable")}
	store := WithCache(backend, time.Minute)

	_, err := store.GetSecret(context.Background(), "gateway/api-key")
	require.Error(t, err)
	_, err = store.GetSecret(context.Background(), "gateway/api-key")
	require.Error(t, err)
	assert.Equal(t, 2, backend.calls)
}

func TestWithCache_Disabled(t *testing.T) {
	backend := &countingStore{}
	assert.Same(t, backend, WithCache(backend, 0))
}

type fakeSecretsManager struct {
	secrets map[string]string
}

func (f *fakeSecretsManager) GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	value, ok := f.secrets[aws.ToString(in.SecretId)]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(value)}, nil
}

func TestAWSStore(t *testing.T) {
	store := &AWSStore{
		client: &fakeSecretsManager{secrets: map[string]string{
			"gateway/api-key":     "plain",
			"gateway/private-key": `{"value":"wrapped"}`,
		}},
		logger: zap.NewNop(),
	}
	ctx := context.Background()

	value, err := store.GetSecret(ctx, "gateway/api-key")
	require.NoError(t, err)
	assert.Equal(t, "plain", value)

	value, err = store.GetSecret(ctx, "gateway/private-key")
	require.NoError(t, err)
	assert.Equal(t, "wrapped", value)

	_, err = store.GetSecret(ctx, "admin/jwt-secret")
	assert.Error(t, err)
}
