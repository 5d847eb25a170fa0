package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/teacheasy/internal/domain/product"
)

const (
	productColumns = `id, name, slug, description, price, discount_price, category_id,
		images, stock, is_active, grade_levels, tags, created_at, updated_at`

	getProductByIDSQL   = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	getProductBySlugSQL = `SELECT ` + productColumns + ` FROM products WHERE slug = $1`
	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	createProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	updateProductSQL = `UPDATE products SET name = $2, slug = $3, description = $4,
		price = $5, discount_price = $6, category_id = $7, images = $8, stock = $9,
		is_active = $10, grade_levels = $11, tags = $12, updated_at = $13
		WHERE id = $1`

	deleteProductSQL           = `DELETE FROM products WHERE id = $1`
	countProductsByCategorySQL = `SELECT count(*) FROM products WHERE category_id = $1`

	productSlugConstraint = "products_slug_key"
)

var productOrder = map[string]string{
	product.SortNewest:    "created_at DESC, id",
	product.SortPriceAsc:  "price ASC, id",
	product.SortPriceDesc: "price DESC, id",
	product.SortName:      "name ASC, id",
}

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns one page of products matching f and the total match count.
func (r *ProductRepository) List(ctx context.Context, f product.Filter) ([]product.Product, int, error) {
	f.Normalize()

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if !f.IncludeInactive {
		where = append(where, "is_active")
	}
	if f.CategoryID != "" {
		where = append(where, "category_id = "+arg(f.CategoryID))
	}
	if f.MinPrice != nil {
		where = append(where, "price >= "+arg(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		where = append(where, "price <= "+arg(*f.MaxPrice))
	}
	if f.InStock {
		where = append(where, "stock > 0")
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := arg("%" + s + "%")
		tag := arg(strings.ToLower(s))
		where = append(where, fmt.Sprintf("(name ILIKE %s OR description ILIKE %s OR %s = ANY(tags))", like, like, tag))
	}

	var q strings.Builder
	q.WriteString(`SELECT ` + productColumns + `, count(*) OVER () FROM products`)
	if len(where) > 0 {
		q.WriteString(" WHERE ")
		q.WriteString(strings.Join(where, " AND "))
	}
	q.WriteString(" ORDER BY " + productOrder[f.Sort])
	q.WriteString(" LIMIT " + arg(f.PageSize) + " OFFSET " + arg(f.Offset()))

	rows, err := r.pool.Query(ctx, q.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing products: %w", err)
	}

	var total int
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (product.Product, error) {
		var (
			p     product.Product
			stock int32
			count int64
		)
		err := row.Scan(
			&p.ID, &p.Name, &p.Slug, &p.Description, &p.Price, &p.DiscountPrice, &p.CategoryID,
			&p.Images, &stock, &p.IsActive, &p.GradeLevels, &p.Tags, &p.CreatedAt, &p.UpdatedAt,
			&count,
		)
		p.Stock = int(stock)
		total = int(count)
		return p, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("scanning product rows: %w", err)
	}

	// A page past the end has no rows to carry the window count.
	if len(products) == 0 && f.Page > 1 {
		f.Page = 1
		_, total, err = r.List(ctx, f)
		if err != nil {
			return nil, 0, err
		}
	}

	return products, total, nil
}

// GetByID returns a product by ID.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	return r.getOne(ctx, getProductByIDSQL, id)
}

// GetBySlug returns a product by slug.
func (r *ProductRepository) GetBySlug(ctx context.Context, slug string) (*product.Product, error) {
	return r.getOne(ctx, getProductBySlugSQL, slug)
}

func (r *ProductRepository) getOne(ctx context.Context, sql, key string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, sql, key)
	if err != nil {
		return nil, fmt.Errorf("finding product %q: %w", key, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("finding product %q: %w", key, err)
	}
	return &p, nil
}

// GetByIDs returns the products with the given IDs. Unknown IDs are skipped.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("querying products by ids: %w", err)
	}

	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("scanning product rows: %w", err)
	}
	return products, nil
}

// Create inserts a new product.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	_, err := r.pool.Exec(ctx, createProductSQL,
		p.ID, p.Name, p.Slug, p.Description, p.Price, p.DiscountPrice, p.CategoryID,
		emptyIfNil(p.Images), p.Stock, p.IsActive, emptyIfNil(p.GradeLevels), emptyIfNil(p.Tags),
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return productWriteError(err, "creating product", p.ID)
	}
	return nil
}

// Update overwrites an existing product.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	tag, err := r.pool.Exec(ctx, updateProductSQL,
		p.ID, p.Name, p.Slug, p.Description, p.Price, p.DiscountPrice, p.CategoryID,
		emptyIfNil(p.Images), p.Stock, p.IsActive, emptyIfNil(p.GradeLevels), emptyIfNil(p.Tags),
		p.UpdatedAt,
	)
	if err != nil {
		return productWriteError(err, "updating product", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Delete removes a product.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// CountByCategory returns how many products reference the category.
func (r *ProductRepository) CountByCategory(ctx context.Context, categoryID string) (int, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, countProductsByCategorySQL, categoryID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting products in category %q: %w", categoryID, err)
	}
	return int(n), nil
}

func productWriteError(err error, op, id string) error {
	switch {
	case isUniqueViolation(err, productSlugConstraint):
		return product.ErrDuplicateSlug
	case isForeignKeyViolation(err):
		return product.ErrUnknownCategory
	}
	return fmt.Errorf("%s %q: %w", op, id, err)
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p     product.Product
		stock int32
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Slug, &p.Description, &p.Price, &p.DiscountPrice, &p.CategoryID,
		&p.Images, &stock, &p.IsActive, &p.GradeLevels, &p.Tags, &p.CreatedAt, &p.UpdatedAt,
	)
	p.Stock = int(stock)
	return p, err
}
