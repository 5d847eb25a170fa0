package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/teacheasy/internal/domain/auth"
)

// authenticate requires a valid bearer token and stores the user in the
// request context.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		u, err := h.tokens.Parse(strings.TrimSpace(raw))
		if err != nil {
			zctx.From(r.Context()).Debug("Rejected bearer token", zap.Error(err))
			respondError(w, http.StatusUnauthorized, auth.ErrInvalidToken.Error())
			return
		}
		ctx := auth.WithUser(r.Context(), u)
		ctx = zctx.Base(ctx, zctx.From(ctx).With(zap.String("user_id", u.ID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole rejects authenticated users without role.
func requireRole(role auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := auth.UserFrom(r.Context())
			if !ok {
				respondError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if u.Role != role {
				respondError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// currentUser returns the user set by authenticate. Routes that call it are
// always mounted behind that middleware.
func currentUser(r *http.Request) *auth.User {
	u, _ := auth.UserFrom(r.Context())
	return u
}
