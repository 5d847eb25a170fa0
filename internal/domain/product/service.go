package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/teacheasy/pkg/validation"
)

// Service implements catalog browsing and admin product management.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a product Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// List returns one page of products and the total match count.
func (s *Service) List(ctx context.Context, f Filter) ([]Product, int, error) {
	f.Normalize()
	products, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list products")
	}
	return products, total, nil
}

// GetBySlug returns an active product. Inactive products are reported as
// not found to storefront callers.
func (s *Service) GetBySlug(ctx context.Context, slug string) (*Product, error) {
	p, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, ErrNotFound
	}
	return p, nil
}

// Get returns a product by ID regardless of its active flag.
func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	return s.repo.GetByID(ctx, id)
}

// Create validates and stores a new product. An empty slug is derived from
// the name.
func (s *Service) Create(ctx context.Context, p *Product) error {
	if p.Slug == "" {
		p.Slug = Slugify(p.Name)
	}
	if err := Validate(p); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	return s.repo.Create(ctx, p)
}

// Update validates and replaces an existing product.
func (s *Service) Update(ctx context.Context, p *Product) error {
	if p.Slug == "" {
		p.Slug = Slugify(p.Name)
	}
	if err := Validate(p); err != nil {
		return err
	}
	p.UpdatedAt = s.now()
	return s.repo.Update(ctx, p)
}

// Delete removes a product.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Validate checks product invariants.
func Validate(p *Product) error {
	errs := validation.Errors{}
	if p.Name == "" {
		errs.Add("name", "is required")
	}
	if p.Slug == "" {
		errs.Add("slug", "is required")
	}
	if p.CategoryID == "" {
		errs.Add("category_id", "is required")
	}
	if !p.Price.IsPositive() {
		errs.Add("price", "must be greater than 0")
	}
	if p.DiscountPrice.IsNegative() {
		errs.Add("discount_price", "must not be negative")
	} else if p.DiscountPrice.IsPositive() && !p.DiscountPrice.LessThan(p.Price) {
		errs.Add("discount_price", "must be less than price")
	}
	if p.Stock < 0 {
		errs.Add("stock", "must not be negative")
	}
	return errs.Err()
}
