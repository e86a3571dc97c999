package ports

import "context"

// SecretStore resolves credentials (gateway API key, callback private key,
// admin token secret) by name from the configured secret backend.
type SecretStore interface {
	// GetSecret returns the current value of the named secret
	GetSecret(ctx context.Context, name string) (string, error)
}
