package order

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestOrder_CanBeCancelled(t *testing.T) {
	want := map[Status]bool{
		StatusPending:   true,
		StatusConfirmed: true,
	}
	for _, s := range Statuses {
		t.Run(string(s), func(t *testing.T) {
			o := &Order{Status: s}
			assert.Equal(t, want[s], o.CanBeCancelled())
		})
	}
}

func TestOrder_CanBeReturned(t *testing.T) {
	delivered := time.Date(2025, 2, 1, 15, 0, 0, 0, time.UTC)
	const maxDays = 7

	tests := []struct {
		name   string
		status Status
		at     *time.Time
		now    time.Time
		want   bool
	}{
		{name: "same day", status: StatusDelivered, at: &delivered, now: delivered.Add(time.Hour), want: true},
		{name: "exactly max days", status: StatusDelivered, at: &delivered, now: delivered.AddDate(0, 0, maxDays), want: true},
		{name: "just under max plus one", status: StatusDelivered, at: &delivered, now: delivered.AddDate(0, 0, maxDays+1).Add(-time.Minute), want: true},
		{name: "max plus one day", status: StatusDelivered, at: &delivered, now: delivered.AddDate(0, 0, maxDays+1)},
		{name: "not delivered", status: StatusShipped, at: &delivered, now: delivered},
		{name: "missing delivery date", status: StatusDelivered, now: delivered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &Order{Status: tt.status, ActualDeliveryDate: tt.at}
			assert.Equal(t, tt.want, o.CanBeReturned(tt.now, maxDays))
		})
	}
}

func TestStatus_Transitions(t *testing.T) {
	allowed := map[Status][]Status{
		StatusPending:            {StatusConfirmed, StatusCancelled},
		StatusConfirmed:          {StatusProcessing, StatusCancelled, StatusRefunded},
		StatusProcessing:         {StatusShipped, StatusPartiallyShipped, StatusCancelled, StatusRefunded},
		StatusPartiallyShipped:   {StatusShipped, StatusPartiallyDelivered},
		StatusShipped:            {StatusDelivered, StatusPartiallyDelivered},
		StatusPartiallyDelivered: {StatusDelivered, StatusPartiallyRefunded},
		StatusDelivered:          {StatusRefunded, StatusPartiallyRefunded},
		StatusPartiallyRefunded:  {StatusRefunded},
	}

	for _, from := range Statuses {
		for _, to := range Statuses {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}

	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusRefunded.IsTerminal())
	assert.False(t, StatusDelivered.IsTerminal())
}

func TestStatus_Valid(t *testing.T) {
	for _, s := range Statuses {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Status("lost").Valid())
	assert.Len(t, Statuses, 10)
}

func TestPricingPolicy_Price(t *testing.T) {
	policy := PricingPolicy{
		ShippingFee:           d("60"),
		FreeShippingThreshold: d("1000"),
		TaxRate:               d("5"),
	}

	tests := []struct {
		name         string
		policy       PricingPolicy
		subtotal     string
		discount     string
		freeShipping bool
		want         Pricing
	}{
		{
			name:     "below threshold pays shipping",
			policy:   policy,
			subtotal: "500",
			discount: "0",
			want:     Pricing{Subtotal: d("500"), Discount: d("0"), Shipping: d("60"), Tax: d("25"), Total: d("585")},
		},
		{
			name:     "threshold uses discounted subtotal",
			policy:   policy,
			subtotal: "1050",
			discount: "100",
			want:     Pricing{Subtotal: d("1050"), Discount: d("100"), Shipping: d("60"), Tax: d("47.5"), Total: d("1057.5")},
		},
		{
			name:     "at threshold ships free",
			policy:   policy,
			subtotal: "1000",
			discount: "0",
			want:     Pricing{Subtotal: d("1000"), Discount: d("0"), Shipping: d("0"), Tax: d("50"), Total: d("1050")},
		},
		{
			name:         "free shipping coupon",
			policy:       policy,
			subtotal:     "100",
			discount:     "0",
			freeShipping: true,
			want:         Pricing{Subtotal: d("100"), Discount: d("0"), Shipping: d("0"), Tax: d("5"), Total: d("105")},
		},
		{
			name:     "discount capped at subtotal",
			policy:   PricingPolicy{ShippingFee: d("60")},
			subtotal: "100",
			discount: "250",
			want:     Pricing{Subtotal: d("100"), Discount: d("100"), Shipping: d("60"), Tax: d("0"), Total: d("60")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.policy.Price(d(tt.subtotal), d(tt.discount), tt.freeShipping)
			assert.True(t, tt.want.Subtotal.Equal(got.Subtotal), "subtotal %s", got.Subtotal)
			assert.True(t, tt.want.Discount.Equal(got.Discount), "discount %s", got.Discount)
			assert.True(t, tt.want.Shipping.Equal(got.Shipping), "shipping %s", got.Shipping)
			assert.True(t, tt.want.Tax.Equal(got.Tax), "tax %s", got.Tax)
			assert.True(t, tt.want.Total.Equal(got.Total), "total %s", got.Total)
		})
	}
}
