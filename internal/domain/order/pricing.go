package order

import "github.com/shopspring/decimal"

// Pricing is the money breakdown of an order.
type Pricing struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// PricingPolicy holds the store-wide shipping and tax settings.
type PricingPolicy struct {
	ShippingFee           decimal.Decimal
	FreeShippingThreshold decimal.Decimal // zero disables the threshold
	TaxRate               decimal.Decimal // percent
}

var hundred = decimal.NewFromInt(100)

// Price computes the order pricing. The discount is capped at the
// subtotal. Shipping is waived when freeShipping is set or when the
// discounted subtotal reaches the threshold. Tax applies to the discounted
// subtotal.
func (p PricingPolicy) Price(subtotal, discount decimal.Decimal, freeShipping bool) Pricing {
	discount = decimal.Min(discount, subtotal)
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	net := subtotal.Sub(discount)

	shipping := p.ShippingFee
	if freeShipping || (p.FreeShippingThreshold.IsPositive() && net.GreaterThanOrEqual(p.FreeShippingThreshold)) {
		shipping = decimal.Zero
	}

	tax := net.Mul(p.TaxRate).Div(hundred).Round(2)

	return Pricing{
		Subtotal: subtotal.Round(2),
		Discount: discount.Round(2),
		Shipping: shipping.Round(2),
		Tax:      tax,
		Total:    net.Add(shipping).Add(tax).Round(2),
	}
}
