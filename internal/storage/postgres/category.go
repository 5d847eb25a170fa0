package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/teacheasy/internal/domain/category"
)

const (
	categoryColumns = `id, name, slug, description, created_at, updated_at`

	listCategoriesSQL = `SELECT ` + categoryColumns + ` FROM categories ORDER BY name`
	getCategorySQL    = `SELECT ` + categoryColumns + ` FROM categories WHERE id = $1`
	createCategorySQL = `INSERT INTO categories (` + categoryColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	updateCategorySQL = `UPDATE categories SET name = $2, slug = $3, description = $4, updated_at = $5 WHERE id = $1`
	deleteCategorySQL = `DELETE FROM categories WHERE id = $1`

	categorySlugConstraint = "categories_slug_key"
)

var _ category.Repository = (*CategoryRepository)(nil)

// CategoryRepository implements category.Repository backed by PostgreSQL.
type CategoryRepository struct {
	pool *pgxpool.Pool
}

// NewCategoryRepository returns a CategoryRepository that uses the given pool.
func NewCategoryRepository(pool *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

// List returns all categories ordered by name.
func (r *CategoryRepository) List(ctx context.Context) ([]category.Category, error) {
	rows, err := r.pool.Query(ctx, listCategoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}

	categories, err := pgx.CollectRows(rows, scanCategory)
	if err != nil {
		return nil, fmt.Errorf("scanning category rows: %w", err)
	}
	return categories, nil
}

// Get returns a category by ID.
func (r *CategoryRepository) Get(ctx context.Context, id string) (*category.Category, error) {
	rows, err := r.pool.Query(ctx, getCategorySQL, id)
	if err != nil {
		return nil, fmt.Errorf("finding category %q: %w", id, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCategory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, category.ErrNotFound
		}
		return nil, fmt.Errorf("finding category %q: %w", id, err)
	}
	return &c, nil
}

// Create inserts a new category.
func (r *CategoryRepository) Create(ctx context.Context, c *category.Category) error {
	_, err := r.pool.Exec(ctx, createCategorySQL,
		c.ID, c.Name, c.Slug, c.Description, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, categorySlugConstraint) {
			return category.ErrDuplicateSlug
		}
		return fmt.Errorf("creating category %q: %w", c.ID, err)
	}
	return nil
}

// Update overwrites an existing category.
func (r *CategoryRepository) Update(ctx context.Context, c *category.Category) error {
	tag, err := r.pool.Exec(ctx, updateCategorySQL,
		c.ID, c.Name, c.Slug, c.Description, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, categorySlugConstraint) {
			return category.ErrDuplicateSlug
		}
		return fmt.Errorf("updating category %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return category.ErrNotFound
	}
	return nil
}

// Delete removes a category. Categories still referenced by products are
// rejected by the foreign key.
func (r *CategoryRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteCategorySQL, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return category.ErrCategoryInUse
		}
		return fmt.Errorf("deleting category %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return category.ErrNotFound
	}
	return nil
}

func scanCategory(row pgx.CollectableRow) (category.Category, error) {
	var c category.Category
	err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
