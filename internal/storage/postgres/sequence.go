package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/teacheasy/internal/domain/sequence"
)

const nextSequenceSQL = `INSERT INTO daily_sequences (scope, day, value) VALUES ($1, $2, 1)
	ON CONFLICT (scope, day) DO UPDATE SET value = daily_sequences.value + 1
	RETURNING value`

var _ sequence.Counter = (*SequenceCounter)(nil)

// SequenceCounter implements sequence.Counter with an upserted row per
// scope and day. The upsert is atomic, so concurrent callers never see the
// same value.
type SequenceCounter struct {
	pool *pgxpool.Pool
}

// NewSequenceCounter returns a SequenceCounter that uses the given pool.
func NewSequenceCounter(pool *pgxpool.Pool) *SequenceCounter {
	return &SequenceCounter{pool: pool}
}

// Next increments and returns the counter for scope on day.
func (c *SequenceCounter) Next(ctx context.Context, scope string, day time.Time) (int64, error) {
	y, m, d := day.UTC().Date()
	var n int32
	if err := c.pool.QueryRow(ctx, nextSequenceSQL, scope, time.Date(y, m, d, 0, 0, 0, 0, time.UTC)).Scan(&n); err != nil {
		return 0, fmt.Errorf("incrementing %s sequence: %w", scope, err)
	}
	return int64(n), nil
}
