package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply(t *testing.T) {
	items := []Item{
		{ProductID: "p1", CategoryID: "books", Price: d("200"), Quantity: 2},
		{ProductID: "p2", CategoryID: "toys", Price: d("100"), Quantity: 1},
	}

	tests := []struct {
		name         string
		coupon       Coupon
		wantAmount   decimal.Decimal
		wantFreeShip bool
		wantErr      error
	}{
		{
			name:       "percentage of whole cart",
			coupon:     Coupon{Type: TypePercentage, Value: d("10")},
			wantAmount: d("50"),
		},
		{
			name:       "percentage capped by max discount",
			coupon:     Coupon{Type: TypePercentage, Value: d("50"), MaxDiscount: d("100")},
			wantAmount: d("100"),
		},
		{
			name:       "percentage rounds to two decimals",
			coupon:     Coupon{Type: TypePercentage, Value: d("3.333")},
			wantAmount: d("16.67"),
		},
		{
			name:       "fixed amount",
			coupon:     Coupon{Type: TypeFixedAmount, Value: d("75")},
			wantAmount: d("75"),
		},
		{
			name:       "fixed amount capped at eligible subtotal",
			coupon:     Coupon{Type: TypeFixedAmount, Value: d("500"), ApplicableCategories: []string{"toys"}},
			wantAmount: d("100"),
		},
		{
			name:         "free shipping",
			coupon:       Coupon{Type: TypeFreeShipping},
			wantAmount:   decimal.Zero,
			wantFreeShip: true,
		},
		{
			name:       "applicable products only",
			coupon:     Coupon{Type: TypePercentage, Value: d("10"), ApplicableProducts: []string{"p1"}},
			wantAmount: d("40"),
		},
		{
			name:       "excluded category",
			coupon:     Coupon{Type: TypePercentage, Value: d("10"), ExcludedCategories: []string{"books"}},
			wantAmount: d("10"),
		},
		{
			name:    "no eligible items",
			coupon:  Coupon{Type: TypePercentage, Value: d("10"), ApplicableProducts: []string{"p9"}},
			wantErr: ErrNoEligibleItems,
		},
		{
			name:       "min order amount met",
			coupon:     Coupon{Type: TypeFixedAmount, Value: d("20"), MinOrderAmount: d("500")},
			wantAmount: d("20"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(&tt.coupon, items)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.wantAmount.Equal(got.Amount), "want %s, got %s", tt.wantAmount, got.Amount)
			assert.Equal(t, tt.wantFreeShip, got.FreeShipping)
		})
	}
}

func TestApply_MinOrderAmount(t *testing.T) {
	c := &Coupon{Type: TypeFixedAmount, Value: d("20"), MinOrderAmount: d("1000")}

	_, err := Apply(c, []Item{{ProductID: "p1", Price: d("100"), Quantity: 1}})

	var minErr *MinOrderError
	require.ErrorAs(t, err, &minErr)
	assert.True(t, d("1000").Equal(minErr.Required))
	assert.Equal(t, "minimum order amount of 1000.00 required", err.Error())
}
