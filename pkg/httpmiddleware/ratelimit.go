package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitRule is a budget for the requests Match selects. Requests are
// counted per rule and client, so a strict rule never eats into the default
// budget.
type RateLimitRule struct {
	Name   string
	Max    int
	Window time.Duration
	Match  func(*http.Request) bool
}

// DefaultRateLimitWindow replaces a missing or non-positive window.
const DefaultRateLimitWindow = time.Minute

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max and Window form the default budget for requests no rule matches.
	Max    int
	Window time.Duration
	// Rules are tried in order; the first match wins.
	Rules []RateLimitRule
	// KeyFunc identifies the client. Defaults to the client IP.
	KeyFunc func(*http.Request) string
	// Skip exempts requests from limiting, e.g. health probes.
	Skip func(*http.Request) bool
}

// MatchRoute returns a rule matcher for method and any of paths.
func MatchRoute(method string, paths ...string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if r.Method != method {
			return false
		}
		for _, p := range paths {
			if r.URL.Path == p {
				return true
			}
		}
		return false
	}
}

// window counts requests in two adjacent fixed windows and estimates the
// sliding count by weighting the previous one by its overlap.
type window struct {
	start time.Time
	curr  float64
	prev  float64
}

func (w *window) advance(now time.Time, size time.Duration) {
	switch elapsed := now.Sub(w.start); {
	case elapsed >= 2*size:
		w.prev, w.curr = 0, 0
		w.start = now.Truncate(size)
	case elapsed >= size:
		w.prev, w.curr = w.curr, 0
		w.start = w.start.Add(size)
	}
}

func (w *window) estimate(now time.Time, size time.Duration) float64 {
	overlap := 1 - now.Sub(w.start).Seconds()/size.Seconds()
	return w.prev*max(overlap, 0) + w.curr
}

type bucketKey struct {
	rule   string
	client string
}

type rateLimiter struct {
	cfg     RateLimitConfig
	def     RateLimitRule
	mu      sync.Mutex
	windows map[bucketKey]*window
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIP
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultRateLimitWindow
	}
	rules := make([]RateLimitRule, len(cfg.Rules))
	copy(rules, cfg.Rules)
	for i := range rules {
		if rules[i].Window <= 0 {
			rules[i].Window = DefaultRateLimitWindow
		}
	}
	cfg.Rules = rules

	return &rateLimiter{
		cfg:     cfg,
		def:     RateLimitRule{Name: "default", Max: cfg.Max, Window: cfg.Window},
		windows: make(map[bucketKey]*window),
	}
}

func (rl *rateLimiter) rule(r *http.Request) RateLimitRule {
	for _, rule := range rl.cfg.Rules {
		if rule.Match != nil && rule.Match(r) {
			return rule
		}
	}
	return rl.def
}

// take counts one request against the bucket unless it is exhausted.
func (rl *rateLimiter) take(rule RateLimitRule, client string, now time.Time) (remaining int, resetAt time.Time, ok bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := bucketKey{rule: rule.Name, client: client}
	w, found := rl.windows[key]
	if !found {
		w = &window{start: now.Truncate(rule.Window)}
		rl.windows[key] = w
	}
	w.advance(now, rule.Window)
	resetAt = w.start.Add(rule.Window)

	used := w.estimate(now, rule.Window)
	if used >= float64(rule.Max) {
		return 0, resetAt, false
	}
	w.curr++
	return max(int(float64(rule.Max)-used-1), 0), resetAt, true
}

// evict drops buckets idle for two windows of their rule.
func (rl *rateLimiter) evict(now time.Time) {
	windows := make(map[string]time.Duration, len(rl.cfg.Rules)+1)
	windows[rl.def.Name] = rl.def.Window
	for _, rule := range rl.cfg.Rules {
		windows[rule.Name] = rule.Window
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, w := range rl.windows {
		if now.Sub(w.start) >= 2*windows[key.rule] {
			delete(rl.windows, key)
		}
	}
}

func (rl *rateLimiter) longestWindow() time.Duration {
	longest := rl.def.Window
	for _, rule := range rl.cfg.Rules {
		longest = max(longest, rule.Window)
	}
	return longest
}

func (rl *rateLimiter) runEviction(ctx context.Context) {
	ticker := time.NewTicker(2 * rl.longestWindow())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.evict(now)
		}
	}
}

// RateLimit enforces per-client sliding window budgets. Over-budget
// requests get 429 with an error envelope. Limited responses carry the
// X-RateLimit-* headers.
//
// Idle buckets are never evicted; long-running servers should use
// RateLimitWithCleanup.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newRateLimiter(cfg).middleware
}

// RateLimitWithCleanup is RateLimit plus a goroutine that evicts idle
// buckets until ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	go rl.runEviction(ctx)
	return rl.middleware
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.cfg.Skip != nil && rl.cfg.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}
		rule := rl.rule(r)
		remaining, resetAt, ok := rl.take(rule, rl.cfg.KeyFunc(r), time.Now())

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(rule.Max))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
		if !ok {
			wait := max(time.Until(resetAt), 0)
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
