// Package health provides liveness and readiness probes for the API server.
//
// Each registered check runs in its own goroutine at a fixed interval.
// Failure and success thresholds keep a check from flapping: it must fail
// failureThreshold times in a row before it is reported unhealthy and
// succeed successThreshold times in a row before it recovers. Optional
// checks are reported but never fail a probe.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"go.uber.org/zap"
)

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// CheckOption customizes a registered check.
type CheckOption func(c *checkConfig)

// WithThresholds overrides the default failure (3) and success (1)
// thresholds.
func WithThresholds(failure, success int) CheckOption {
	return func(c *checkConfig) {
		if failure > 0 {
			c.failureThreshold = failure
		}
		if success > 0 {
			c.successThreshold = success
		}
	}
}

// Optional marks a check whose failure degrades the service without making
// it unavailable, such as the event broker.
func Optional() CheckOption {
	return func(c *checkConfig) {
		c.optional = true
	}
}

// checkConfig holds the configuration and state of one check.
//
// run is only called from the check's own goroutine, so the counters need no
// synchronization. healthy and lastErr are read by HTTP handlers and are
// atomic.
type checkConfig struct {
	name             string
	timeout          time.Duration
	check            CheckFunc
	failureThreshold int
	successThreshold int
	optional         bool
	lg               *zap.Logger

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	consecutiveFails int
	consecutiveOK    int
}

func (c *checkConfig) isHealthy() bool {
	return c.healthy.Load()
}

func (c *checkConfig) getLastError() error {
	if p := c.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// run executes the check once and applies the thresholds.
func (c *checkConfig) run(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.check(checkCtx)
	c.lastErr.Store(&err)

	if err != nil {
		c.consecutiveOK = 0
		c.consecutiveFails++
		if c.consecutiveFails >= c.failureThreshold && c.healthy.Swap(false) {
			c.lg.Warn("Health check failing",
				zap.String("check", c.name),
				zap.Bool("optional", c.optional),
				zap.Error(err),
			)
		}
		return
	}
	c.consecutiveFails = 0
	c.consecutiveOK++
	if c.consecutiveOK >= c.successThreshold && !c.healthy.Swap(true) {
		c.lg.Info("Health check recovered", zap.String("check", c.name))
	}
}

// Health manages liveness and readiness checks for a service.
type Health struct {
	ready atomic.Bool
	lg    *zap.Logger

	// mu guards the check slices and cancel. HTTP handlers copy the slices
	// under RLock and never hold it while reading check state.
	mu              sync.RWMutex
	livenessChecks  []*checkConfig
	readinessChecks []*checkConfig
	cancel          context.CancelFunc
}

// New creates a Health that logs check transitions to lg. The service
// starts not ready; call SetReady(true) once initialization is done.
func New(lg *zap.Logger) *Health {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Health{lg: lg}
}

func (h *Health) newCheck(name string, timeout time.Duration, check CheckFunc, opts []CheckOption) *checkConfig {
	c := &checkConfig{
		name:             name,
		timeout:          timeout,
		check:            check,
		failureThreshold: 3,
		successThreshold: 1,
		lg:               h.lg,
	}
	for _, o := range opts {
		o(c)
	}
	c.healthy.Store(true)
	return c
}

// AddLivenessCheck registers a check that decides whether the process is
// alive, such as the goroutine count.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc, opts ...CheckOption) {
	c := h.newCheck(name, timeout, check, opts)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.livenessChecks = append(h.livenessChecks, c)
}

// AddReadinessCheck registers a check that decides whether the service can
// take traffic, such as database connectivity.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc, opts ...CheckOption) {
	c := h.newCheck(name, timeout, check, opts)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.readinessChecks = append(h.readinessChecks, c)
}

// Start runs every registered check in its own goroutine at interval until
// Stop is called or ctx is done. Call it once, after registration.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := make([]*checkConfig, 0, len(h.livenessChecks)+len(h.readinessChecks))
	checks = append(checks, h.livenessChecks...)
	checks = append(checks, h.readinessChecks...)
	h.mu.Unlock()

	for _, c := range checks {
		go runCheck(ctx, c, interval)
	}
}

func runCheck(ctx context.Context, c *checkConfig, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.run(ctx)
		}
	}
}

// SetReady sets the manual readiness flag. It is set to false at the start
// of graceful shutdown so load balancers drain the instance.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is marked ready and every required
// readiness check passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}

	h.mu.RLock()
	checks := h.readinessChecks
	h.mu.RUnlock()

	for _, c := range checks {
		if !c.optional && !c.isHealthy() {
			return false
		}
	}
	return true
}

// Stop cancels all check goroutines. It is safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	checks := make([]*checkConfig, len(h.livenessChecks))
	copy(checks, h.livenessChecks)
	h.mu.RUnlock()

	writeReport(w, collect(checks))
}

// ReadyEndpoint serves /readyz. It fails while the service is not marked
// ready or a required readiness check is failing.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	checks := make([]*checkConfig, len(h.readinessChecks))
	copy(checks, h.readinessChecks)
	h.mu.RUnlock()

	rep := collect(checks)
	if !h.ready.Load() {
		rep.add("_readiness", "service is not ready", false)
	}
	writeReport(w, rep)
}

type failure struct {
	name     string
	message  string
	optional bool
}

type report struct {
	failures []failure
}

func (r *report) add(name, message string, optional bool) {
	r.failures = append(r.failures, failure{name: name, message: message, optional: optional})
}

// status is "ok", "degraded" when only optional checks fail, or
// "unhealthy".
func (r *report) status() (string, int) {
	if len(r.failures) == 0 {
		return "ok", http.StatusOK
	}
	for _, f := range r.failures {
		if !f.optional {
			return "unhealthy", http.StatusServiceUnavailable
		}
	}
	return "degraded", http.StatusOK
}

// collect reports unhealthy checks using the error stored by the last run
// rather than running the check again.
func collect(checks []*checkConfig) report {
	var rep report
	for _, c := range checks {
		if c.isHealthy() {
			continue
		}
		msg := "check is unhealthy"
		if err := c.getLastError(); err != nil {
			msg = err.Error()
		}
		rep.add(c.name, msg, c.optional)
	}
	return rep
}

// writeReport writes {"status":..., "checks":{name: message}}.
func writeReport(w http.ResponseWriter, rep report) {
	status, code := rep.status()
	sort.Slice(rep.failures, func(i, j int) bool {
		return rep.failures[i].name < rep.failures[j].name
	})

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	e.Str(status)
	if len(rep.failures) > 0 {
		e.FieldStart("checks")
		e.ObjStart()
		for _, f := range rep.failures {
			e.FieldStart(f.name)
			e.Str(f.message)
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
