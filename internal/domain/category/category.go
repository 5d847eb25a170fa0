// Package category manages the product category tree used by the catalog.
package category

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/teacheasy/internal/domain/product"
	"github.com/xenking/teacheasy/pkg/validation"
)

var (
	// ErrNotFound is returned when a category does not exist.
	ErrNotFound = errors.New("category not found")
	// ErrDuplicateSlug is returned when another category already uses the slug.
	ErrDuplicateSlug = errors.New("category slug already exists")
	// ErrCategoryInUse is returned when deleting a category that still has products.
	ErrCategoryInUse = errors.New("category has products")
)

// Category groups products in the catalog.
type Category struct {
	ID          string
	Name        string
	Slug        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Repository defines persistence operations for categories.
type Repository interface {
	List(ctx context.Context) ([]Category, error)
	Get(ctx context.Context, id string) (*Category, error)
	Create(ctx context.Context, c *Category) error
	Update(ctx context.Context, c *Category) error
	Delete(ctx context.Context, id string) error
}

// ProductCounter reports how many products reference a category.
type ProductCounter interface {
	CountByCategory(ctx context.Context, categoryID string) (int, error)
}

// Service implements category management.
type Service struct {
	repo     Repository
	products ProductCounter
	now      func() time.Time
}

// NewService creates a category Service.
func NewService(repo Repository, products ProductCounter) *Service {
	return &Service{repo: repo, products: products, now: time.Now}
}

// List returns all categories ordered by name.
func (s *Service) List(ctx context.Context) ([]Category, error) {
	return s.repo.List(ctx)
}

// Get returns a single category.
func (s *Service) Get(ctx context.Context, id string) (*Category, error) {
	return s.repo.Get(ctx, id)
}

// Create stores a new category.
func (s *Service) Create(ctx context.Context, c *Category) error {
	if err := s.prepare(c); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = c.UpdatedAt
	return s.repo.Create(ctx, c)
}

// Update replaces an existing category.
func (s *Service) Update(ctx context.Context, c *Category) error {
	if err := s.prepare(c); err != nil {
		return err
	}
	return s.repo.Update(ctx, c)
}

// Delete removes a category that has no products.
func (s *Service) Delete(ctx context.Context, id string) error {
	n, err := s.products.CountByCategory(ctx, id)
	if err != nil {
		return errors.Wrap(err, "count products")
	}
	if n > 0 {
		return ErrCategoryInUse
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) prepare(c *Category) error {
	if c.Slug == "" {
		c.Slug = product.Slugify(c.Name)
	}
	errs := validation.Errors{}
	if c.Name == "" {
		errs.Add("name", "is required")
	}
	if c.Slug == "" {
		errs.Add("slug", "is required")
	}
	if err := errs.Err(); err != nil {
		return err
	}
	c.UpdatedAt = s.now()
	return nil
}
