package auth

import "context"

// Role is the authorization level of a user.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// User is the authenticated caller of a customer or admin endpoint.
type User struct {
	ID    string
	Email string
	Role  Role
}

// IsAdmin reports whether the user may call admin endpoints.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

type userKey struct{}

// WithUser returns a context carrying u.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFrom returns the user stored by WithUser.
func UserFrom(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userKey{}).(*User)
	return u, ok && u != nil
}

type apiKeyCtx struct{}

// WithAPIKey returns a context carrying the authenticated API key.
func WithAPIKey(ctx context.Context, k *APIKeyInfo) context.Context {
	return context.WithValue(ctx, apiKeyCtx{}, k)
}

// APIKeyFrom returns the API key stored by WithAPIKey.
func APIKeyFrom(ctx context.Context) (*APIKeyInfo, bool) {
	k, ok := ctx.Value(apiKeyCtx{}).(*APIKeyInfo)
	return k, ok && k != nil
}
