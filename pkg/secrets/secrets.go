package secrets

import (
	"context"
	"errors"
	"strings"
)

// Common errors
var (
	ErrSecretNotFound = errors.New("secret not found")
)

// Manager resolves secret references to their values
type Manager interface {
	// GetSecret retrieves a secret by key
	GetSecret(ctx context.Context, key string) (string, error)
}

const vaultRefPrefix = "vault:"

// ResolveCredential resolves an upstream API credential. Values of the form
// "vault:<key>" are looked up through the manager; anything else is returned
// as-is. A nil manager leaves vault references unresolved and fails.
func ResolveCredential(ctx context.Context, m Manager, value string) (string, error) {
	if !strings.HasPrefix(value, vaultRefPrefix) {
		return value, nil
	}
	if m == nil {
		return "", ErrSecretNotFound
	}
	return m.GetSecret(ctx, strings.TrimPrefix(value, vaultRefPrefix))
}

// StaticManager serves secrets from a fixed map (used in tests)
type StaticManager map[string]string

// GetSecret implements Manager
func (s StaticManager) GetSecret(_ context.Context, key string) (string, error) {
	value, ok := s[key]
	if !ok {
		return "", ErrSecretNotFound
	}
	return value, nil
}
