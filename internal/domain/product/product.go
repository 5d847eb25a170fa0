package product

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrDuplicateSlug is returned when another product already uses the slug.
	ErrDuplicateSlug = errors.New("product slug already exists")
	// ErrUnknownCategory is returned when a product references a missing category.
	ErrUnknownCategory = errors.New("category does not exist")
	// ErrOutOfStock is returned when a product cannot be added to a cart.
	ErrOutOfStock = errors.New("product is out of stock")
)

// Product represents a catalog item available for purchase.
type Product struct {
	ID            string
	Name          string
	Slug          string
	Description   string
	Price         decimal.Decimal
	DiscountPrice decimal.Decimal // zero when not on sale
	CategoryID    string
	Images        []string
	Stock         int
	IsActive      bool
	GradeLevels   []string
	Tags          []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Discount returns the per-unit amount taken off the list price, or zero.
func (p *Product) Discount() decimal.Decimal {
	if p.DiscountPrice.IsPositive() && p.DiscountPrice.LessThan(p.Price) {
		return p.Price.Sub(p.DiscountPrice)
	}
	return decimal.Zero
}

// Purchasable reports whether the product can be added to a cart.
func (p *Product) Purchasable() bool {
	return p.IsActive && p.Stock > 0
}

// Snapshot captures the product fields a cart or order line keeps.
func (p *Product) Snapshot() Snapshot {
	var image string
	if len(p.Images) > 0 {
		image = p.Images[0]
	}
	return Snapshot{
		Name:       p.Name,
		Slug:       p.Slug,
		Image:      image,
		Price:      p.Price,
		Discount:   p.Discount(),
		CategoryID: p.CategoryID,
	}
}

// Snapshot is an immutable copy of product details at the time it was
// added to a cart or ordered.
type Snapshot struct {
	Name       string          `json:"name"`
	Slug       string          `json:"slug"`
	Image      string          `json:"image"`
	Price      decimal.Decimal `json:"price"`
	Discount   decimal.Decimal `json:"discount"`
	CategoryID string          `json:"category_id"`
}

// UnitPrice is the price actually charged per unit.
func (s Snapshot) UnitPrice() decimal.Decimal {
	return s.Price.Sub(s.Discount)
}

// Sort orders for product listings.
const (
	SortNewest    = "newest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortName      = "name"
)

// Filter narrows a product listing.
type Filter struct {
	CategoryID      string
	MinPrice        *decimal.Decimal
	MaxPrice        *decimal.Decimal
	Search          string
	InStock         bool
	IncludeInactive bool
	Sort            string
	Page            int
	PageSize        int
}

// Normalize applies paging defaults and bounds.
func (f *Filter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	switch {
	case f.PageSize < 1:
		f.PageSize = 20
	case f.PageSize > 100:
		f.PageSize = 100
	}
	switch f.Sort {
	case SortNewest, SortPriceAsc, SortPriceDesc, SortName:
	default:
		f.Sort = SortNewest
	}
}

// Offset returns the row offset for the current page.
func (f Filter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Product, int, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetBySlug(ctx context.Context, slug string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
	CountByCategory(ctx context.Context, categoryID string) (int, error)
}

// Slugify lower-cases s and joins its alphanumeric runs with dashes.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
