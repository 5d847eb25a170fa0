package coupon

import (
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Discount holds the computed discount amount and a human-readable description.
type Discount struct {
	Code         string
	Type         Type
	Amount       decimal.Decimal
	FreeShipping bool
	Stackable    bool
	Description  string
}

// Item represents a line item in the cart for discount calculation purposes.
// Price is the unit price actually charged.
type Item struct {
	ProductID  string
	CategoryID string
	Price      decimal.Decimal
	Quantity   int
}

// Apply calculates the discount c grants on items. It enforces the minimum
// order amount against the whole cart and product and category targeting
// against each line.
func Apply(c *Coupon, items []Item) (Discount, error) {
	subtotal := calcSubtotal(items)
	if c.MinOrderAmount.IsPositive() && subtotal.LessThan(c.MinOrderAmount) {
		return Discount{}, &MinOrderError{Required: c.MinOrderAmount}
	}

	eligible := eligibleItems(c, items)
	if len(eligible) == 0 {
		return Discount{}, ErrNoEligibleItems
	}
	base := calcSubtotal(eligible)

	d := Discount{
		Code:        c.Code,
		Type:        c.Type,
		Stackable:   c.IsStackable,
		Description: c.Description,
	}
	switch c.Type {
	case TypePercentage:
		amount := base.Mul(c.Value).Div(hundred)
		if c.MaxDiscount.IsPositive() {
			amount = decimal.Min(amount, c.MaxDiscount)
		}
		d.Amount = floorAtZero(amount).Round(2)
	case TypeFixedAmount:
		d.Amount = floorAtZero(decimal.Min(c.Value, base)).Round(2)
	case TypeFreeShipping:
		d.Amount = decimal.Zero
		d.FreeShipping = true
	default:
		return Discount{}, errors.Errorf("unsupported coupon type: %q", c.Type)
	}
	return d, nil
}

func eligibleItems(c *Coupon, items []Item) []Item {
	targeted := len(c.ApplicableProducts) > 0 || len(c.ApplicableCategories) > 0

	out := make([]Item, 0, len(items))
	for _, it := range items {
		if slices.Contains(c.ExcludedProducts, it.ProductID) ||
			slices.Contains(c.ExcludedCategories, it.CategoryID) {
			continue
		}
		if targeted &&
			!slices.Contains(c.ApplicableProducts, it.ProductID) &&
			!slices.Contains(c.ApplicableCategories, it.CategoryID) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// calcSubtotal returns the sum of price * quantity across all items.
func calcSubtotal(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return sum
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
