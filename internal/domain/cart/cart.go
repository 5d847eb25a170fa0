// Package cart implements the per-user shopping cart.
package cart

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/teacheasy/internal/domain/coupon"
	"github.com/xenking/teacheasy/internal/domain/product"
)

var (
	// ErrNotFound is returned by repositories when a user has no cart yet.
	ErrNotFound = errors.New("cart not found")
	// ErrItemNotFound is returned when removing or updating an absent product.
	ErrItemNotFound = errors.New("item not found in cart")
	// ErrCartFull is returned when adding a new line to a cart at MaxItems.
	ErrCartFull = errors.New("cart is full")
	// ErrInvalidQuantity is returned when adding a non-positive quantity.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	// ErrCouponAlreadyApplied is returned when the same code is applied twice.
	ErrCouponAlreadyApplied = errors.New("coupon already applied")
	// ErrCouponNotStackable is returned when combining a non-stackable coupon.
	ErrCouponNotStackable = errors.New("coupon cannot be combined with other coupons")
	// ErrCouponNotApplied is returned when removing a code that is not on the cart.
	ErrCouponNotApplied = errors.New("coupon not applied to cart")
	// ErrEmptyCart is returned when checking out an empty cart.
	ErrEmptyCart = errors.New("cart is empty")
)

// Limits bound cart contents.
type Limits struct {
	MaxQuantityPerItem int
	MaxItems           int
}

// DefaultLimits returns the storefront defaults.
func DefaultLimits() Limits {
	return Limits{MaxQuantityPerItem: 10, MaxItems: 50}
}

// Item is one cart line.
type Item struct {
	ProductID string           `json:"product_id"`
	Snapshot  product.Snapshot `json:"snapshot"`
	Quantity  int              `json:"quantity"`
	AddedAt   time.Time        `json:"added_at"`
}

// LineTotal is the amount charged for the line before coupons.
func (i Item) LineTotal() decimal.Decimal {
	return i.Snapshot.UnitPrice().Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// AppliedCoupon is a coupon discount attached to a cart.
type AppliedCoupon struct {
	Code         string          `json:"code"`
	Type         coupon.Type     `json:"type"`
	Discount     decimal.Decimal `json:"discount"`
	FreeShipping bool            `json:"free_shipping"`
	Stackable    bool            `json:"stackable"`
	Description  string          `json:"description,omitempty"`
	AppliedAt    time.Time       `json:"applied_at"`
}

// Cart holds a user's items and applied coupons. Each user has one cart.
type Cart struct {
	UserID    string
	Items     []Item
	Coupons   []AppliedCoupon
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New returns an empty cart for userID.
func New(userID string, now time.Time) *Cart {
	return &Cart{UserID: userID, CreatedAt: now, UpdatedAt: now}
}

func (c *Cart) find(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// AddItem adds qty units of a product. Adding an existing product increases
// its quantity. Quantities are clamped to limits.MaxQuantityPerItem.
func (c *Cart) AddItem(limits Limits, productID string, snap product.Snapshot, qty int, now time.Time) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if i := c.find(productID); i >= 0 {
		c.Items[i].Quantity = min(c.Items[i].Quantity+qty, limits.MaxQuantityPerItem)
		c.Items[i].Snapshot = snap
		c.UpdatedAt = now
		return nil
	}
	if len(c.Items) >= limits.MaxItems {
		return ErrCartFull
	}
	c.Items = append(c.Items, Item{
		ProductID: productID,
		Snapshot:  snap,
		Quantity:  min(qty, limits.MaxQuantityPerItem),
		AddedAt:   now,
	})
	c.UpdatedAt = now
	return nil
}

// UpdateQuantity sets the quantity of a line. Zero or less removes it.
func (c *Cart) UpdateQuantity(limits Limits, productID string, qty int, now time.Time) error {
	if qty <= 0 {
		return c.RemoveItem(productID, now)
	}
	i := c.find(productID)
	if i < 0 {
		return ErrItemNotFound
	}
	c.Items[i].Quantity = min(qty, limits.MaxQuantityPerItem)
	c.UpdatedAt = now
	return nil
}

// RemoveItem drops a line from the cart.
func (c *Cart) RemoveItem(productID string, now time.Time) error {
	i := c.find(productID)
	if i < 0 {
		return ErrItemNotFound
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	c.UpdatedAt = now
	return nil
}

// ApplyCoupon attaches a quoted discount. A non-stackable coupon must be
// the only coupon on the cart.
func (c *Cart) ApplyCoupon(d coupon.Discount, now time.Time) error {
	for _, ac := range c.Coupons {
		if strings.EqualFold(ac.Code, d.Code) {
			return ErrCouponAlreadyApplied
		}
	}
	if len(c.Coupons) > 0 {
		if !d.Stackable {
			return ErrCouponNotStackable
		}
		for _, ac := range c.Coupons {
			if !ac.Stackable {
				return ErrCouponNotStackable
			}
		}
	}
	c.Coupons = append(c.Coupons, AppliedCoupon{
		Code:         d.Code,
		Type:         d.Type,
		Discount:     d.Amount,
		FreeShipping: d.FreeShipping,
		Stackable:    d.Stackable,
		Description:  d.Description,
		AppliedAt:    now,
	})
	c.UpdatedAt = now
	return nil
}

// RemoveCoupon detaches a coupon by code.
func (c *Cart) RemoveCoupon(code string, now time.Time) error {
	for i, ac := range c.Coupons {
		if strings.EqualFold(ac.Code, code) {
			c.Coupons = append(c.Coupons[:i], c.Coupons[i+1:]...)
			c.UpdatedAt = now
			return nil
		}
	}
	return ErrCouponNotApplied
}

// Clear empties items and coupons but keeps the cart.
func (c *Cart) Clear(now time.Time) {
	c.Items = nil
	c.Coupons = nil
	c.UpdatedAt = now
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// ItemCount is the total number of units in the cart.
func (c *Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// Subtotal is the sum of discounted unit price times quantity.
func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range c.Items {
		sum = sum.Add(it.LineTotal())
	}
	return sum
}

// ItemSavings is the sum of product sale discounts.
func (c *Cart) ItemSavings() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range c.Items {
		sum = sum.Add(it.Snapshot.Discount.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

// CouponDiscount is the sum of applied coupon discounts.
func (c *Cart) CouponDiscount() decimal.Decimal {
	sum := decimal.Zero
	for _, ac := range c.Coupons {
		sum = sum.Add(ac.Discount)
	}
	return sum
}

// TotalSavings is product discounts plus coupon discounts.
func (c *Cart) TotalSavings() decimal.Decimal {
	return c.ItemSavings().Add(c.CouponDiscount())
}

// CartValue is the subtotal minus coupon discounts, floored at zero.
func (c *Cart) CartValue() decimal.Decimal {
	v := c.Subtotal().Sub(c.CouponDiscount())
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// FreeShipping reports whether an applied coupon waives shipping.
func (c *Cart) FreeShipping() bool {
	for _, ac := range c.Coupons {
		if ac.FreeShipping {
			return true
		}
	}
	return false
}

// CouponItems converts the lines for coupon evaluation.
func (c *Cart) CouponItems() []coupon.Item {
	out := make([]coupon.Item, len(c.Items))
	for i, it := range c.Items {
		out[i] = coupon.Item{
			ProductID:  it.ProductID,
			CategoryID: it.Snapshot.CategoryID,
			Price:      it.Snapshot.UnitPrice(),
			Quantity:   it.Quantity,
		}
	}
	return out
}

// Repository persists carts. Save upserts so carts are created lazily.
type Repository interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
}
