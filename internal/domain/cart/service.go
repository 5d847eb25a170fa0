package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/teacheasy/internal/domain/coupon"
	"github.com/xenking/teacheasy/internal/domain/product"
)

// ProductLookup loads products being added to a cart.
type ProductLookup interface {
	GetByID(ctx context.Context, id string) (*product.Product, error)
}

// CouponQuoter prices coupons against cart items.
type CouponQuoter interface {
	Quote(ctx context.Context, code string, cust coupon.Customer, items []coupon.Item) (*coupon.Discount, error)
	Reprice(ctx context.Context, code string, items []coupon.Item) (*coupon.Discount, error)
}

// Service implements cart operations.
type Service struct {
	repo     Repository
	products ProductLookup
	coupons  CouponQuoter
	limits   Limits
	now      func() time.Time
}

// NewService creates a cart Service.
func NewService(repo Repository, products ProductLookup, coupons CouponQuoter, limits Limits) *Service {
	return &Service{
		repo:     repo,
		products: products,
		coupons:  coupons,
		limits:   limits,
		now:      time.Now,
	}
}

// Get returns the user's cart, or an empty unsaved one.
func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.repo.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return New(userID, s.now()), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return c, nil
}

func (s *Service) mutate(ctx context.Context, userID string, fn func(c *Cart, now time.Time) error) (*Cart, error) {
	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := fn(c, now); err != nil {
		return nil, err
	}
	if err := s.reprice(ctx, c, now); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

// reprice recomputes applied coupons against the current items and drops
// the ones that no longer apply.
func (s *Service) reprice(ctx context.Context, c *Cart, now time.Time) error {
	if len(c.Coupons) == 0 {
		return nil
	}
	if c.IsEmpty() {
		c.Coupons = nil
		return nil
	}

	items := c.CouponItems()
	kept := make([]AppliedCoupon, 0, len(c.Coupons))
	for _, ac := range c.Coupons {
		d, err := s.coupons.Reprice(ctx, ac.Code, items)
		switch {
		case err == nil:
			ac.Discount = d.Amount
			ac.FreeShipping = d.FreeShipping
			kept = append(kept, ac)
		case coupon.Rejected(err):
			zctx.From(ctx).Info("Coupon dropped from cart",
				zap.String("user_id", c.UserID),
				zap.String("code", ac.Code),
				zap.Error(err),
			)
			c.UpdatedAt = now
		default:
			return errors.Wrapf(err, "reprice coupon %s", ac.Code)
		}
	}
	c.Coupons = kept
	return nil
}

// AddItem adds a purchasable product to the cart.
func (s *Service) AddItem(ctx context.Context, userID, productID string, qty int) (*Cart, error) {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, product.ErrNotFound
	}
	if p.Stock <= 0 {
		return nil, product.ErrOutOfStock
	}
	return s.mutate(ctx, userID, func(c *Cart, now time.Time) error {
		return c.AddItem(s.limits, p.ID, p.Snapshot(), qty, now)
	})
}

// UpdateQuantity sets the quantity of a cart line.
func (s *Service) UpdateQuantity(ctx context.Context, userID, productID string, qty int) (*Cart, error) {
	return s.mutate(ctx, userID, func(c *Cart, now time.Time) error {
		return c.UpdateQuantity(s.limits, productID, qty, now)
	})
}

// RemoveItem drops a product from the cart.
func (s *Service) RemoveItem(ctx context.Context, userID, productID string) (*Cart, error) {
	return s.mutate(ctx, userID, func(c *Cart, now time.Time) error {
		return c.RemoveItem(productID, now)
	})
}

// ApplyCoupon quotes code against the cart and attaches the discount.
func (s *Service) ApplyCoupon(ctx context.Context, cust coupon.Customer, code string) (*Cart, error) {
	return s.mutate(ctx, cust.UserID, func(c *Cart, now time.Time) error {
		if c.IsEmpty() {
			return ErrEmptyCart
		}
		d, err := s.coupons.Quote(ctx, code, cust, c.CouponItems())
		if err != nil {
			return err
		}
		return c.ApplyCoupon(*d, now)
	})
}

// RemoveCoupon detaches a coupon from the cart.
func (s *Service) RemoveCoupon(ctx context.Context, userID, code string) (*Cart, error) {
	return s.mutate(ctx, userID, func(c *Cart, now time.Time) error {
		return c.RemoveCoupon(code, now)
	})
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	_, err := s.mutate(ctx, userID, func(c *Cart, now time.Time) error {
		c.Clear(now)
		return nil
	})
	return err
}
