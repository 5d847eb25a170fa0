package httpmiddleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// hit sends one request and returns the recorder.
func hit(h http.Handler, method, path, remoteAddr string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = remoteAddr
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_Budget(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 3, Window: time.Minute})(okHandler())

	for i, wantRemaining := range []string{"2", "1", "0"} {
		w := hit(h, http.MethodGet, "/api/products", "192.168.1.1:12345")
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, wantRemaining, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := hit(h, http.MethodGet, "/api/products", "192.168.1.1:12345")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestRateLimit_ClientKeys(t *testing.T) {
	t.Run("per ip", func(t *testing.T) {
		h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

		assert.Equal(t, http.StatusOK, hit(h, http.MethodGet, "/", "10.0.0.1:1234").Code)
		assert.Equal(t, http.StatusOK, hit(h, http.MethodGet, "/", "10.0.0.2:1234").Code)
		assert.Equal(t, http.StatusTooManyRequests, hit(h, http.MethodGet, "/", "10.0.0.1:5678").Code)
	})

	t.Run("forwarded for", func(t *testing.T) {
		h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())
		xff := "203.0.113.50, 70.41.3.18"

		assert.Equal(t, http.StatusOK, hit(h, http.MethodGet, "/", "192.168.1.1:4444", "X-Forwarded-For", xff).Code)
		assert.Equal(t, http.StatusTooManyRequests, hit(h, http.MethodGet, "/", "192.168.1.2:5555", "X-Forwarded-For", xff).Code)
	})

	t.Run("custom key", func(t *testing.T) {
		h := RateLimit(RateLimitConfig{
			Max:     1,
			Window:  time.Minute,
			KeyFunc: func(r *http.Request) string { return r.Header.Get("X-API-Key") },
		})(okHandler())

		assert.Equal(t, http.StatusOK, hit(h, http.MethodPost, "/", "", "X-API-Key", "gateway-a").Code)
		assert.Equal(t, http.StatusTooManyRequests, hit(h, http.MethodPost, "/", "", "X-API-Key", "gateway-a").Code)
		assert.Equal(t, http.StatusOK, hit(h, http.MethodPost, "/", "", "X-API-Key", "gateway-b").Code)
	})
}

func TestRateLimit_Rules(t *testing.T) {
	h := RateLimit(RateLimitConfig{
		Max:    5,
		Window: time.Minute,
		Rules: []RateLimitRule{{
			Name:   "coupon",
			Max:    1,
			Window: time.Minute,
			Match:  MatchRoute(http.MethodPost, "/api/cart/coupons", "/api/checkout"),
		}},
	})(okHandler())
	const client = "10.1.1.1:1000"

	w := hit(h, http.MethodPost, "/api/cart/coupons", client)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	// The rule budget is shared by every path it matches.
	assert.Equal(t, http.StatusTooManyRequests, hit(h, http.MethodPost, "/api/checkout", client).Code)

	// Other routes still use the default budget.
	w = hit(h, http.MethodGet, "/api/cart/coupons", client)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimit_Skip(t *testing.T) {
	h := RateLimit(RateLimitConfig{
		Max:    1,
		Window: time.Minute,
		Skip:   func(r *http.Request) bool { return r.URL.Path == "/livez" },
	})(okHandler())

	for range 3 {
		w := hit(h, http.MethodGet, "/livez", "10.0.0.9:1000")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestWindow(t *testing.T) {
	const size = time.Minute
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	w := &window{start: start, curr: 10}

	// Half way into the next window, half of the previous count remains.
	now := start.Add(size + size/2)
	w.advance(now, size)
	assert.Equal(t, start.Add(size), w.start)
	assert.InDelta(t, 5.0, w.estimate(now, size), 0.001)

	// After two idle windows nothing is carried over.
	now = now.Add(3 * size)
	w.advance(now, size)
	assert.Zero(t, w.estimate(now, size))
}

func TestRateLimiter_Evict(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{
		Max:    1,
		Window: time.Minute,
		Rules:  []RateLimitRule{{Name: "slow", Max: 1, Window: time.Hour}},
	})
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rl.take(rl.def, "a", now)
	rl.take(rl.cfg.Rules[0], "a", now)
	require.Len(t, rl.windows, 2)

	rl.evict(now.Add(5 * time.Minute))
	assert.Len(t, rl.windows, 1)
	_, ok := rl.windows[bucketKey{rule: "slow", client: "a"}]
	assert.True(t, ok)
}

func TestRateLimit_ZeroWindowFallsBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rules := []RateLimitRule{{Name: "coupon", Max: 1, Match: MatchRoute(http.MethodPost, "/api/checkout")}}
	h := RateLimitWithCleanup(ctx, RateLimitConfig{Max: 1, Rules: rules})(okHandler())
	assert.Zero(t, rules[0].Window, "caller's rules are left alone")

	for _, path := range []string{"/api/products", "/api/checkout"} {
		assert.Equal(t, http.StatusOK, hit(h, http.MethodPost, path, "10.0.0.1:1").Code, path)
		assert.Equal(t, http.StatusTooManyRequests, hit(h, http.MethodPost, path, "10.0.0.1:1").Code, path)
	}

	rl := newRateLimiter(RateLimitConfig{Window: -time.Second, Rules: rules})
	assert.Equal(t, DefaultRateLimitWindow, rl.def.Window)
	assert.Equal(t, DefaultRateLimitWindow, rl.cfg.Rules[0].Window)
	assert.Equal(t, DefaultRateLimitWindow, rl.longestWindow())
}
