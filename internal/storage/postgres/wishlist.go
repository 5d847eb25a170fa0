package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/teacheasy/internal/domain/product"
	"github.com/xenking/teacheasy/internal/domain/wishlist"
)

const (
	listWishlistSQL = `SELECT product_id, added_at FROM wishlist_items
		WHERE user_id = $1 ORDER BY added_at DESC`
	addWishlistSQL = `INSERT INTO wishlist_items (user_id, product_id, added_at)
		VALUES ($1, $2, $3) ON CONFLICT (user_id, product_id) DO NOTHING`
	removeWishlistSQL = `DELETE FROM wishlist_items WHERE user_id = $1 AND product_id = $2`
)

var _ wishlist.Repository = (*WishlistRepository)(nil)

// WishlistRepository implements wishlist.Repository backed by PostgreSQL.
type WishlistRepository struct {
	pool *pgxpool.Pool
}

// NewWishlistRepository returns a WishlistRepository that uses the given pool.
func NewWishlistRepository(pool *pgxpool.Pool) *WishlistRepository {
	return &WishlistRepository{pool: pool}
}

// List returns the user's saved products, most recent first.
func (r *WishlistRepository) List(ctx context.Context, userID string) ([]wishlist.Entry, error) {
	rows, err := r.pool.Query(ctx, listWishlistSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing wishlist of %q: %w", userID, err)
	}
	entries, err := pgx.CollectRows(rows, pgx.RowToStructByPos[wishlist.Entry])
	if err != nil {
		return nil, fmt.Errorf("scanning wishlist rows: %w", err)
	}
	return entries, nil
}

// Add saves a product. Saving it twice is a no-op.
func (r *WishlistRepository) Add(ctx context.Context, userID, productID string, at time.Time) error {
	if _, err := r.pool.Exec(ctx, addWishlistSQL, userID, productID, at); err != nil {
		if isForeignKeyViolation(err) {
			return product.ErrNotFound
		}
		return fmt.Errorf("adding %q to wishlist: %w", productID, err)
	}
	return nil
}

// Remove deletes a saved product.
func (r *WishlistRepository) Remove(ctx context.Context, userID, productID string) error {
	tag, err := r.pool.Exec(ctx, removeWishlistSQL, userID, productID)
	if err != nil {
		return fmt.Errorf("removing %q from wishlist: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return wishlist.ErrNotInWishlist
	}
	return nil
}
