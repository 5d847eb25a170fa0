package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/teacheasy/internal/domain/auth"
)

// APIKeyHeader carries the payment gateway's API key.
const APIKeyHeader = "X-API-Key"

// HashAPIKey returns the hex HMAC-SHA256 of key under pepper. Only hashes
// are stored.
func HashAPIKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// requireAPIKey authenticates gateway callbacks by API key and checks that
// the key grants scope.
func (h *Handler) requireAPIKey(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				respondError(w, http.StatusUnauthorized, "api key required")
				return
			}
			info, ok := h.lookupAPIKey(r, key)
			if !ok {
				respondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !info.HasScope(scope) {
				respondError(w, http.StatusForbidden, "api key lacks scope "+scope)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAPIKey(r.Context(), info)))
		})
	}
}

func (h *Handler) lookupAPIKey(r *http.Request, key string) (*auth.APIKeyInfo, bool) {
	hexHash := HashAPIKey(h.pepper, key)
	info, err := h.apikeys.FindByHash(r.Context(), hexHash)
	if err != nil {
		zctx.From(r.Context()).Debug("API key lookup failed", zap.Error(err))
		return nil, false
	}

	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, false
	}
	computed, _ := hex.DecodeString(hexHash)
	if subtle.ConstantTimeCompare(computed, stored) != 1 {
		return nil, false
	}
	return info, true
}
