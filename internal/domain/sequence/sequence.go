// Package sequence allocates human-readable daily numbers of the form
// YYMMDD#### for orders and payments.
package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

// Scopes used by the storefront. Each scope has its own daily counter.
const (
	ScopeOrder   = "order"
	ScopePayment = "payment"
)

// MaxPerDay is the largest sequence a four digit suffix can hold.
const MaxPerDay = 9999

// ErrExhausted is returned once a scope has handed out MaxPerDay numbers
// for a single day.
var ErrExhausted = errors.New("daily sequence exhausted")

// Counter atomically increments and returns the counter for scope on day.
// The first call for a (scope, day) pair returns 1.
type Counter interface {
	Next(ctx context.Context, scope string, day time.Time) (int64, error)
}

// Generator formats counter values into daily numbers.
type Generator struct {
	counter Counter
	scope   string
	now     func() time.Time
}

// NewGenerator creates a Generator for scope backed by counter.
func NewGenerator(counter Counter, scope string) *Generator {
	return &Generator{counter: counter, scope: scope, now: time.Now}
}

// Next returns the next number for today, e.g. 2501150001 for the first
// allocation on 2025-01-15.
func (g *Generator) Next(ctx context.Context) (string, error) {
	now := g.now().UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	n, err := g.counter.Next(ctx, g.scope, day)
	if err != nil {
		return "", errors.Wrapf(err, "next %s sequence", g.scope)
	}
	if n < 1 || n > MaxPerDay {
		return "", ErrExhausted
	}

	return Format(day, n), nil
}

// Format renders day and n as YYMMDD####.
func Format(day time.Time, n int64) string {
	return fmt.Sprintf("%s%04d", day.Format("060102"), n)
}
