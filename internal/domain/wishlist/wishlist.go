// Package wishlist keeps the products a customer saved for later.
package wishlist

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/teacheasy/internal/domain/cart"
	"github.com/xenking/teacheasy/internal/domain/product"
)

// ErrNotInWishlist is returned when removing a product that was never saved.
var ErrNotInWishlist = errors.New("product not in wishlist")

// Entry is a saved product.
type Entry struct {
	ProductID string
	AddedAt   time.Time
}

// Repository persists wishlist entries. Add is idempotent.
type Repository interface {
	List(ctx context.Context, userID string) ([]Entry, error)
	Add(ctx context.Context, userID, productID string, at time.Time) error
	// Remove returns ErrNotInWishlist when nothing was deleted.
	Remove(ctx context.Context, userID, productID string) error
}

// ProductLookup resolves saved products for display.
type ProductLookup interface {
	GetByID(ctx context.Context, id string) (*product.Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]product.Product, error)
}

// CartAdder adds a product to the customer's cart.
type CartAdder interface {
	AddItem(ctx context.Context, userID, productID string, qty int) (*cart.Cart, error)
}

// Service implements wishlist operations.
type Service struct {
	repo     Repository
	products ProductLookup
	carts    CartAdder
	now      func() time.Time
}

// NewService creates a wishlist Service.
func NewService(repo Repository, products ProductLookup, carts CartAdder) *Service {
	return &Service{repo: repo, products: products, carts: carts, now: time.Now}
}

// List returns the saved products, most recent first. Products deleted
// from the catalog are skipped.
func (s *Service) List(ctx context.Context, userID string) ([]product.Product, error) {
	entries, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list wishlist")
	}
	if len(entries) == 0 {
		return nil, nil
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ProductID
	}
	found, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}

	out := make([]product.Product, 0, len(entries))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Add saves a product. Saving it again is a no-op.
func (s *Service) Add(ctx context.Context, userID, productID string) error {
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return err
	}
	return s.repo.Add(ctx, userID, productID, s.now())
}

// Remove drops a saved product.
func (s *Service) Remove(ctx context.Context, userID, productID string) error {
	return s.repo.Remove(ctx, userID, productID)
}

// MoveToCart adds one unit of a saved product to the cart and removes it
// from the wishlist.
func (s *Service) MoveToCart(ctx context.Context, userID, productID string) (*cart.Cart, error) {
	entries, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list wishlist")
	}
	saved := false
	for _, e := range entries {
		if e.ProductID == productID {
			saved = true
			break
		}
	}
	if !saved {
		return nil, ErrNotInWishlist
	}

	c, err := s.carts.AddItem(ctx, userID, productID, 1)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Remove(ctx, userID, productID); err != nil {
		return nil, errors.Wrap(err, "remove from wishlist")
	}
	return c, nil
}
