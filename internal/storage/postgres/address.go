package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/teacheasy/internal/domain/address"
)

const (
	addressColumns = `id, user_id, label, full_name, phone, email, line1, line2,
		division, district, city, postal_code, is_default, created_at, updated_at`

	listAddressesSQL = `SELECT ` + addressColumns + ` FROM addresses
		WHERE user_id = $1 ORDER BY is_default DESC, updated_at DESC`
	getAddressSQL    = `SELECT ` + addressColumns + ` FROM addresses WHERE user_id = $1 AND id = $2`
	countAddressSQL  = `SELECT count(*) FROM addresses WHERE user_id = $1`
	deleteAddressSQL = `DELETE FROM addresses WHERE user_id = $1 AND id = $2`

	createAddressSQL = `INSERT INTO addresses (` + addressColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	updateAddressSQL = `UPDATE addresses SET label = $3, full_name = $4, phone = $5, email = $6,
		line1 = $7, line2 = $8, division = $9, district = $10, city = $11, postal_code = $12,
		is_default = $13, updated_at = $14
		WHERE user_id = $1 AND id = $2`

	unsetDefaultAddressSQL = `UPDATE addresses SET is_default = FALSE
		WHERE user_id = $1 AND is_default AND id <> $2`
	setDefaultAddressSQL = `UPDATE addresses SET is_default = TRUE, updated_at = now()
		WHERE user_id = $1 AND id = $2`
)

var _ address.Repository = (*AddressRepository)(nil)

// AddressRepository implements address.Repository backed by PostgreSQL.
type AddressRepository struct {
	pool *pgxpool.Pool
}

// NewAddressRepository returns an AddressRepository that uses the given pool.
func NewAddressRepository(pool *pgxpool.Pool) *AddressRepository {
	return &AddressRepository{pool: pool}
}

// ListByUser returns the user's addresses, default first.
func (r *AddressRepository) ListByUser(ctx context.Context, userID string) ([]address.Address, error) {
	rows, err := r.pool.Query(ctx, listAddressesSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing addresses of %q: %w", userID, err)
	}

	addrs, err := pgx.CollectRows(rows, scanAddress)
	if err != nil {
		return nil, fmt.Errorf("scanning address rows: %w", err)
	}
	return addrs, nil
}

// Get returns one of the user's addresses.
func (r *AddressRepository) Get(ctx context.Context, userID, id string) (*address.Address, error) {
	rows, err := r.pool.Query(ctx, getAddressSQL, userID, id)
	if err != nil {
		return nil, fmt.Errorf("finding address %q: %w", id, err)
	}

	a, err := pgx.CollectExactlyOneRow(rows, scanAddress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, address.ErrNotFound
		}
		return nil, fmt.Errorf("finding address %q: %w", id, err)
	}
	return &a, nil
}

// Count returns how many addresses the user has saved.
func (r *AddressRepository) Count(ctx context.Context, userID string) (int, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, countAddressSQL, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting addresses of %q: %w", userID, err)
	}
	return int(n), nil
}

// Create inserts a, first clearing the user's previous default when a is
// the default.
func (r *AddressRepository) Create(ctx context.Context, a *address.Address) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if a.IsDefault {
			if _, err := tx.Exec(ctx, unsetDefaultAddressSQL, a.UserID, a.ID); err != nil {
				return fmt.Errorf("clearing default address: %w", err)
			}
		}
		_, err := tx.Exec(ctx, createAddressSQL,
			a.ID, a.UserID, a.Label, a.FullName, a.Phone, a.Email, a.Line1, a.Line2,
			a.Division, a.District, a.City, a.PostalCode, a.IsDefault, a.CreatedAt, a.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("creating address %q: %w", a.ID, err)
		}
		return nil
	})
}

// Update overwrites a, first clearing the user's previous default when a
// is the default.
func (r *AddressRepository) Update(ctx context.Context, a *address.Address) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if a.IsDefault {
			if _, err := tx.Exec(ctx, unsetDefaultAddressSQL, a.UserID, a.ID); err != nil {
				return fmt.Errorf("clearing default address: %w", err)
			}
		}
		tag, err := tx.Exec(ctx, updateAddressSQL,
			a.UserID, a.ID, a.Label, a.FullName, a.Phone, a.Email, a.Line1, a.Line2,
			a.Division, a.District, a.City, a.PostalCode, a.IsDefault, a.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("updating address %q: %w", a.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return address.ErrNotFound
		}
		return nil
	})
}

// Delete removes one of the user's addresses.
func (r *AddressRepository) Delete(ctx context.Context, userID, id string) error {
	tag, err := r.pool.Exec(ctx, deleteAddressSQL, userID, id)
	if err != nil {
		return fmt.Errorf("deleting address %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return address.ErrNotFound
	}
	return nil
}

// SetDefault makes id the user's only default address.
func (r *AddressRepository) SetDefault(ctx context.Context, userID, id string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, unsetDefaultAddressSQL, userID, id); err != nil {
			return fmt.Errorf("clearing default address: %w", err)
		}
		tag, err := tx.Exec(ctx, setDefaultAddressSQL, userID, id)
		if err != nil {
			return fmt.Errorf("setting default address %q: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return address.ErrNotFound
		}
		return nil
	})
}

func scanAddress(row pgx.CollectableRow) (address.Address, error) {
	var a address.Address
	err := row.Scan(
		&a.ID, &a.UserID, &a.Label, &a.FullName, &a.Phone, &a.Email, &a.Line1, &a.Line2,
		&a.Division, &a.District, &a.City, &a.PostalCode, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}
