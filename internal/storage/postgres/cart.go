package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/teacheasy/internal/domain/cart"
)

const (
	getCartSQL = `SELECT user_id, items, coupons, created_at, updated_at
		FROM carts WHERE user_id = $1`

	saveCartSQL = `INSERT INTO carts (user_id, items, coupons, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET items = EXCLUDED.items, coupons = EXCLUDED.coupons, updated_at = EXCLUDED.updated_at`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. Items
// and coupons are stored as JSONB documents on the user's row.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Get returns the user's cart or cart.ErrNotFound.
func (r *CartRepository) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	var (
		c           cart.Cart
		itemsJSON   []byte
		couponsJSON []byte
	)
	err := r.pool.QueryRow(ctx, getCartSQL, userID).Scan(
		&c.UserID, &itemsJSON, &couponsJSON, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("finding cart of %q: %w", userID, err)
	}

	if err := json.Unmarshal(itemsJSON, &c.Items); err != nil {
		return nil, fmt.Errorf("unmarshaling cart items: %w", err)
	}
	if err := json.Unmarshal(couponsJSON, &c.Coupons); err != nil {
		return nil, fmt.Errorf("unmarshaling cart coupons: %w", err)
	}
	return &c, nil
}

// Save upserts the cart.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	itemsJSON, err := marshalList(c.Items)
	if err != nil {
		return fmt.Errorf("marshaling cart items: %w", err)
	}
	couponsJSON, err := marshalList(c.Coupons)
	if err != nil {
		return fmt.Errorf("marshaling cart coupons: %w", err)
	}

	_, err = r.pool.Exec(ctx, saveCartSQL, c.UserID, itemsJSON, couponsJSON, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving cart of %q: %w", c.UserID, err)
	}
	return nil
}

// marshalList encodes a nil slice as an empty JSON array.
func marshalList[T any](v []T) ([]byte, error) {
	if v == nil {
		v = []T{}
	}
	return json.Marshal(v)
}
