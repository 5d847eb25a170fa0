// Package auth holds the identities the storefront authenticates: customers
// and admins via bearer tokens, payment gateways via API keys.
package auth

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
)

// Scopes granted to API keys.
const (
	ScopePaymentsWrite = "payments:write"
)

// ErrAPIKeyNotFound is returned when no key matches the presented hash.
var ErrAPIKeyNotFound = errors.New("api key not found")

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key grants scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	return slices.Contains(k.Scopes, scope)
}

// APIKeyRepository provides lookup of API keys by their HMAC hash.
type APIKeyRepository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
	Create(ctx context.Context, k *APIKeyInfo) error
}
