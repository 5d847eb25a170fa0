package cart

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/teacheasy/internal/domain/coupon"
	"github.com/xenking/teacheasy/internal/domain/product"
)

type mockCartRepo struct {
	carts map[string]*Cart
	saves int
}

func (m *mockCartRepo) Get(_ context.Context, userID string) (*Cart, error) {
	c, ok := m.carts[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *mockCartRepo) Save(_ context.Context, c *Cart) error {
	if m.carts == nil {
		m.carts = make(map[string]*Cart)
	}
	m.carts[c.UserID] = c
	m.saves++
	return nil
}

type mockProducts map[string]*product.Product

func (m mockProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

type mockQuoter struct {
	discount *coupon.Discount
	err      error
	gotCust  coupon.Customer
}

func (m *mockQuoter) Quote(_ context.Context, _ string, cust coupon.Customer, _ []coupon.Item) (*coupon.Discount, error) {
	m.gotCust = cust
	return m.discount, m.err
}

func (m *mockQuoter) Reprice(context.Context, string, []coupon.Item) (*coupon.Discount, error) {
	return m.discount, m.err
}

// catalogQuoter prices stored coupons with the real discount rules.
type catalogQuoter struct {
	coupons   map[string]*coupon.Coupon
	lookupErr error
	reprices  int
}

func (q *catalogQuoter) price(code string, items []coupon.Item) (*coupon.Discount, error) {
	if q.lookupErr != nil {
		return nil, q.lookupErr
	}
	c, ok := q.coupons[coupon.NormalizeCode(code)]
	if !ok {
		return nil, coupon.ErrInvalidCoupon
	}
	d, err := coupon.Apply(c, items)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (q *catalogQuoter) Quote(_ context.Context, code string, _ coupon.Customer, items []coupon.Item) (*coupon.Discount, error) {
	return q.price(code, items)
}

func (q *catalogQuoter) Reprice(_ context.Context, code string, items []coupon.Item) (*coupon.Discount, error) {
	q.reprices++
	return q.price(code, items)
}

func newTestService(repo Repository, q CouponQuoter) *Service {
	products := mockProducts{
		"p1":   {ID: "p1", Name: "Workbook", Price: d("120"), IsActive: true, Stock: 5},
		"gone": {ID: "gone", Price: d("1"), IsActive: true},
		"off":  {ID: "off", Price: d("1"), Stock: 3},
		"kit":  {ID: "kit", Name: "Lab kit", Price: d("400"), IsActive: true, Stock: 5},
	}
	svc := NewService(repo, products, q, DefaultLimits())
	svc.now = func() time.Time { return testNow }
	return svc
}

func TestService_AddItem(t *testing.T) {
	ctx := context.Background()

	t.Run("creates cart lazily", func(t *testing.T) {
		repo := &mockCartRepo{}
		svc := newTestService(repo, &mockQuoter{})

		c, err := svc.AddItem(ctx, "u1", "p1", 15)
		require.NoError(t, err)
		assert.Equal(t, 10, c.Items[0].Quantity)
		assert.Equal(t, "Workbook", c.Items[0].Snapshot.Name)
		assert.Equal(t, 1, repo.saves)
		assert.Same(t, c, repo.carts["u1"])
	})

	tests := []struct {
		name      string
		productID string
		wantErr   error
	}{
		{name: "unknown product", productID: "nope", wantErr: product.ErrNotFound},
		{name: "out of stock", productID: "gone", wantErr: product.ErrOutOfStock},
		{name: "inactive product", productID: "off", wantErr: product.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockCartRepo{}
			svc := newTestService(repo, &mockQuoter{})

			_, err := svc.AddItem(ctx, "u1", tt.productID, 1)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, repo.saves)
		})
	}
}

func TestService_Get_EmptyCart(t *testing.T) {
	svc := newTestService(&mockCartRepo{}, &mockQuoter{})

	c, err := svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
	assert.Equal(t, "u1", c.UserID)
}

func TestService_ApplyCoupon(t *testing.T) {
	ctx := context.Background()
	cust := coupon.Customer{UserID: "u1", Role: "customer"}

	t.Run("empty cart", func(t *testing.T) {
		svc := newTestService(&mockCartRepo{}, &mockQuoter{})
		_, err := svc.ApplyCoupon(ctx, cust, "SAVE10")
		require.ErrorIs(t, err, ErrEmptyCart)
	})

	t.Run("quote error propagates", func(t *testing.T) {
		repo := &mockCartRepo{}
		q := &mockQuoter{err: coupon.ErrCouponExpired}
		svc := newTestService(repo, q)
		_, err := svc.AddItem(ctx, "u1", "p1", 1)
		require.NoError(t, err)

		_, err = svc.ApplyCoupon(ctx, cust, "OLD")
		require.ErrorIs(t, err, coupon.ErrCouponExpired)
		assert.Equal(t, 1, repo.saves)
	})

	t.Run("applies discount", func(t *testing.T) {
		repo := &mockCartRepo{}
		q := &mockQuoter{discount: &coupon.Discount{Code: "SAVE10", Amount: d("12")}}
		svc := newTestService(repo, q)
		_, err := svc.AddItem(ctx, "u1", "p1", 1)
		require.NoError(t, err)

		c, err := svc.ApplyCoupon(ctx, cust, "save10")
		require.NoError(t, err)
		assert.Equal(t, cust, q.gotCust)
		assert.True(t, d("108").Equal(c.CartValue()))

		c, err = svc.RemoveCoupon(ctx, "u1", "SAVE10")
		require.NoError(t, err)
		assert.Empty(t, c.Coupons)
	})
}

func TestService_RepricesCoupons(t *testing.T) {
	ctx := context.Background()
	cust := coupon.Customer{UserID: "u1", Role: "customer"}
	newQuoter := func() *catalogQuoter {
		return &catalogQuoter{coupons: map[string]*coupon.Coupon{
			"SAVE10": {Code: "SAVE10", Type: coupon.TypePercentage, Value: d("10"), IsStackable: true},
			"BIG":    {Code: "BIG", Type: coupon.TypeFixedAmount, Value: d("50"), MinOrderAmount: d("500"), IsStackable: true},
		}}
	}
	setup := func(t *testing.T, q CouponQuoter, codes ...string) (*Service, *mockCartRepo) {
		t.Helper()
		repo := &mockCartRepo{}
		svc := newTestService(repo, q)
		_, err := svc.AddItem(ctx, "u1", "kit", 2)
		require.NoError(t, err)
		for _, code := range codes {
			_, err = svc.ApplyCoupon(ctx, cust, code)
			require.NoError(t, err)
		}
		return svc, repo
	}

	t.Run("quantity change reprices percentage", func(t *testing.T) {
		svc, _ := setup(t, newQuoter(), "SAVE10")

		c, err := svc.Get(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, d("720").Equal(c.CartValue()))

		c, err = svc.UpdateQuantity(ctx, "u1", "kit", 1)
		require.NoError(t, err)
		require.Len(t, c.Coupons, 1)
		assert.True(t, d("40").Equal(c.Coupons[0].Discount))
		assert.True(t, d("360").Equal(c.CartValue()))

		c, err = svc.AddItem(ctx, "u1", "p1", 1)
		require.NoError(t, err)
		assert.True(t, d("52").Equal(c.Coupons[0].Discount))
		assert.True(t, d("468").Equal(c.CartValue()))
	})

	t.Run("coupon below minimum is dropped", func(t *testing.T) {
		svc, repo := setup(t, newQuoter(), "SAVE10", "BIG")

		c, err := svc.UpdateQuantity(ctx, "u1", "kit", 1)
		require.NoError(t, err)
		require.Len(t, c.Coupons, 1)
		assert.Equal(t, "SAVE10", c.Coupons[0].Code)
		assert.Same(t, c, repo.carts["u1"])
		assert.True(t, d("360").Equal(c.CartValue()))
	})

	t.Run("removing every item drops coupons", func(t *testing.T) {
		q := newQuoter()
		svc, _ := setup(t, q, "SAVE10")
		before := q.reprices

		c, err := svc.RemoveItem(ctx, "u1", "kit")
		require.NoError(t, err)
		assert.Empty(t, c.Coupons)
		assert.Equal(t, before, q.reprices)
	})

	t.Run("lookup failure aborts the change", func(t *testing.T) {
		q := newQuoter()
		svc, repo := setup(t, q, "SAVE10")
		saves := repo.saves
		q.lookupErr = errors.New("connection reset")

		_, err := svc.UpdateQuantity(ctx, "u1", "kit", 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reprice coupon SAVE10")
		assert.Equal(t, saves, repo.saves)
	})
}

func TestService_Clear(t *testing.T) {
	ctx := context.Background()
	repo := &mockCartRepo{}
	svc := newTestService(repo, &mockQuoter{})
	_, err := svc.AddItem(ctx, "u1", "p1", 2)
	require.NoError(t, err)

	require.NoError(t, svc.Clear(ctx, "u1"))
	assert.True(t, repo.carts["u1"].IsEmpty())

	_, err = svc.RemoveItem(ctx, "u1", "p1")
	require.ErrorIs(t, err, ErrItemNotFound)
}
