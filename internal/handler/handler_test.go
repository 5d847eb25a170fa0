package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/teacheasy/internal/domain/auth"
	"github.com/xenking/teacheasy/internal/domain/cart"
	"github.com/xenking/teacheasy/internal/domain/checkout"
	"github.com/xenking/teacheasy/internal/domain/coupon"
	"github.com/xenking/teacheasy/internal/domain/order"
	"github.com/xenking/teacheasy/internal/domain/payment"
	"github.com/xenking/teacheasy/internal/domain/product"
)

// --- Mock implementations ---

// Each mock embeds its interface so tests only implement what they call.

type mockTokens map[string]*auth.User

func (m mockTokens) Parse(raw string) (*auth.User, error) {
	u, ok := m[raw]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return u, nil
}

type mockProducts struct {
	ProductService
	products []product.Product
	filter   product.Filter
}

func (m *mockProducts) List(_ context.Context, f product.Filter) ([]product.Product, int, error) {
	m.filter = f
	return m.products, len(m.products), nil
}

func (m *mockProducts) GetBySlug(_ context.Context, slug string) (*product.Product, error) {
	for i := range m.products {
		if m.products[i].Slug == slug {
			return &m.products[i], nil
		}
	}
	return nil, product.ErrNotFound
}

type mockCarts struct {
	CartService
	cart     *cart.Cart
	err      error
	applyErr error
	added    int
}

func (m *mockCarts) Get(_ context.Context, _ string) (*cart.Cart, error) {
	return m.cart, m.err
}

func (m *mockCarts) AddItem(_ context.Context, _, _ string, qty int) (*cart.Cart, error) {
	m.added = qty
	return m.cart, m.err
}

func (m *mockCarts) ApplyCoupon(_ context.Context, _ coupon.Customer, _ string) (*cart.Cart, error) {
	return nil, m.applyErr
}

type mockCoupons struct {
	CouponService
	deactivated bool
}

func (m *mockCoupons) AutoApplicable(_ context.Context, _ coupon.Customer, _ []coupon.Item) ([]coupon.Discount, error) {
	return nil, nil
}

func (m *mockCoupons) Delete(_ context.Context, _ string) (bool, error) {
	return m.deactivated, nil
}

type mockOrders struct {
	OrderService
	count int
}

func (m *mockOrders) CountForUser(_ context.Context, _ string) (int, error) {
	return m.count, nil
}

type mockPayments struct {
	PaymentService
	updated payment.Status
}

func (m *mockPayments) UpdateStatus(_ context.Context, paymentID string, next payment.Status, _ string, _ map[string]string) (*payment.Payment, error) {
	m.updated = next
	return &payment.Payment{PaymentID: paymentID, Amount: decimal.NewFromInt(100), Status: next, Method: payment.MethodCard}, nil
}

type mockCheckout struct {
	req checkout.Request
	res *checkout.Result
	err error
}

func (m *mockCheckout) Checkout(_ context.Context, req checkout.Request) (*checkout.Result, error) {
	m.req = req
	return m.res, m.err
}

type mockAPIKeyRepo struct {
	info *auth.APIKeyInfo
	err  error
}

func (m *mockAPIKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.info == nil || m.info.KeyHash != hash {
		return nil, auth.ErrAPIKeyNotFound
	}
	return m.info, nil
}

func (m *mockAPIKeyRepo) Create(_ context.Context, _ *auth.APIKeyInfo) error {
	return nil
}

// --- Helpers ---

var (
	customerUser = &auth.User{ID: "u1", Email: "u1@example.com", Role: auth.RoleCustomer}
	adminUser    = &auth.User{ID: "a1", Email: "a1@example.com", Role: auth.RoleAdmin}
	testPepper   = []byte("pepper")
)

type envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
	Data    json.RawMessage   `json:"data"`
}

func newTestHandler(svc Services, keys *mockAPIKeyRepo) http.Handler {
	if keys == nil {
		keys = &mockAPIKeyRepo{}
	}
	h := New(Config{ImageBaseURL: "https://cdn.example.com/", APIKeyPepper: testPepper}, svc,
		mockTokens{"customer": customerUser, "admin": adminUser}, keys)
	return h.Routes()
}

func do(t *testing.T, srv http.Handler, method, path, token, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func testProduct(id, slug string) product.Product {
	return product.Product{
		ID:         id,
		Name:       "Phonics Flashcards",
		Slug:       slug,
		Price:      decimal.NewFromInt(250),
		CategoryID: "c1",
		Images:     []string{"flashcards.jpg"},
		Stock:      5,
		IsActive:   true,
	}
}

// --- Tests ---

func TestListProducts(t *testing.T) {
	products := &mockProducts{products: []product.Product{testProduct("p1", "flashcards")}}
	srv := newTestHandler(Services{Products: products}, nil)

	rec, env := do(t, srv, http.MethodGet, "/api/products?page=2&min_price=100&sort=price_asc", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var data struct {
		Items []struct {
			ID     string   `json:"id"`
			Price  string   `json:"price"`
			Images []string `json:"images"`
		} `json:"items"`
		Pagination struct {
			Page  int `json:"page"`
			Total int `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data.Items, 1)
	assert.Equal(t, "250.00", data.Items[0].Price)
	assert.Equal(t, []string{"https://cdn.example.com/flashcards.jpg"}, data.Items[0].Images)
	assert.Equal(t, 2, data.Pagination.Page)
	assert.Equal(t, 1, data.Pagination.Total)

	require.NotNil(t, products.filter.MinPrice)
	assert.Equal(t, "100", products.filter.MinPrice.String())
	assert.False(t, products.filter.IncludeInactive)
}

func TestListProducts_BadQuery(t *testing.T) {
	srv := newTestHandler(Services{Products: &mockProducts{}}, nil)

	rec, env := do(t, srv, http.MethodGet, "/api/products?page=two", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "page must be an integer", env.Message)
}

func TestGetProduct_NotFound(t *testing.T) {
	srv := newTestHandler(Services{Products: &mockProducts{}}, nil)

	rec, env := do(t, srv, http.MethodGet, "/api/products/missing", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "product not found", env.Message)
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestHandler(Services{}, nil)

	rec, env := do(t, srv, http.MethodGet, "/api/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "route not found", env.Message)
}

func TestAuthentication(t *testing.T) {
	carts := &mockCarts{cart: cart.New("u1", time.Now())}
	srv := newTestHandler(Services{Carts: carts, Coupons: &mockCoupons{}, Orders: &mockOrders{}}, nil)

	t.Run("missing token", func(t *testing.T) {
		rec, env := do(t, srv, http.MethodGet, "/api/cart", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "authentication required", env.Message)
	})

	t.Run("invalid token", func(t *testing.T) {
		rec, _ := do(t, srv, http.MethodGet, "/api/cart", "forged", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("customer on admin route", func(t *testing.T) {
		rec, env := do(t, srv, http.MethodGet, "/api/admin/stats", "customer", "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "insufficient permissions", env.Message)
	})

	t.Run("valid token", func(t *testing.T) {
		rec, env := do(t, srv, http.MethodGet, "/api/cart", "customer", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, env.Success)
	})
}

func TestAddCartItem(t *testing.T) {
	now := time.Now()
	c := cart.New("u1", now)
	p := testProduct("p1", "flashcards")
	require.NoError(t, c.AddItem(cart.DefaultLimits(), p.ID, p.Snapshot(), 2, now))

	t.Run("ok", func(t *testing.T) {
		carts := &mockCarts{cart: c}
		srv := newTestHandler(Services{Carts: carts, Coupons: &mockCoupons{}, Orders: &mockOrders{}}, nil)

		rec, env := do(t, srv, http.MethodPost, "/api/cart/items", "customer", `{"product_id":"p1","quantity":2}`)
		require.Equal(t, http.StatusOK, rec.Code, env.Message)
		assert.Equal(t, 2, carts.added)

		var data struct {
			ItemCount int    `json:"item_count"`
			Subtotal  string `json:"subtotal"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Equal(t, 2, data.ItemCount)
		assert.Equal(t, "500.00", data.Subtotal)
	})

	t.Run("validation failure", func(t *testing.T) {
		srv := newTestHandler(Services{Carts: &mockCarts{}}, nil)

		rec, env := do(t, srv, http.MethodPost, "/api/cart/items", "customer", `{"quantity":0}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation failed", env.Message)
		assert.Equal(t, "is required", env.Errors["product_id"])
		assert.Equal(t, "must be greater than or equal to 1", env.Errors["quantity"])
	})

	t.Run("unknown field", func(t *testing.T) {
		srv := newTestHandler(Services{Carts: &mockCarts{}}, nil)

		rec, _ := do(t, srv, http.MethodPost, "/api/cart/items", "customer", `{"product_id":"p1","quantity":1,"price":1}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty body", func(t *testing.T) {
		srv := newTestHandler(Services{Carts: &mockCarts{}}, nil)

		rec, env := do(t, srv, http.MethodPost, "/api/cart/items", "customer", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "request body is required", env.Message)
	})
}

func TestApplyCoupon_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"usage limit", coupon.ErrUsageLimitReached, http.StatusUnprocessableEntity, "coupon usage limit reached"},
		{"wrapped not found", errors.Wrap(coupon.ErrNotFound, "quote"), http.StatusNotFound, "coupon not found"},
		{"cart full", cart.ErrCartFull, http.StatusUnprocessableEntity, "cart is full"},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError, "failed to apply coupon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			carts := &mockCarts{applyErr: tt.err}
			srv := newTestHandler(Services{Carts: carts, Orders: &mockOrders{}}, nil)

			rec, env := do(t, srv, http.MethodPost, "/api/cart/coupons", "customer", `{"code":"SAVE10"}`)
			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.message, env.Message)
		})
	}
}

func TestCheckout(t *testing.T) {
	now := time.Now()
	o := &order.Order{
		ID:            "o1",
		Number:        "2610160001",
		UserID:        "u1",
		Status:        order.StatusPending,
		PaymentID:     "PAY2610160001",
		PaymentMethod: string(payment.MethodCashOnDelivery),
		Pricing:       order.Pricing{Total: decimal.NewFromInt(310)},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	pay := &payment.Payment{PaymentID: "PAY2610160001", Amount: decimal.NewFromInt(310), Method: payment.MethodCashOnDelivery, Status: payment.StatusPending}

	t.Run("placed", func(t *testing.T) {
		co := &mockCheckout{res: &checkout.Result{Order: o, Payment: pay}}
		srv := newTestHandler(Services{Checkout: co, Orders: &mockOrders{count: 3}}, nil)

		rec, env := do(t, srv, http.MethodPost, "/api/checkout", "customer",
			`{"shipping_address_id":"a1","payment":{"method":"cash_on_delivery"}}`)
		require.Equal(t, http.StatusCreated, rec.Code, env.Message)

		var data struct {
			Order struct {
				Number    string `json:"number"`
				CanCancel bool   `json:"can_cancel"`
				Pricing   struct {
					Total string `json:"total"`
				} `json:"pricing"`
			} `json:"order"`
			Payment struct {
				PaymentID string `json:"payment_id"`
			} `json:"payment"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Equal(t, "2610160001", data.Order.Number)
		assert.True(t, data.Order.CanCancel)
		assert.Equal(t, "310.00", data.Order.Pricing.Total)
		assert.Equal(t, "PAY2610160001", data.Payment.PaymentID)

		assert.Equal(t, coupon.Customer{UserID: "u1", Role: "customer", OrderCount: 3}, co.req.Customer)
		assert.Equal(t, payment.MethodCashOnDelivery, co.req.Payment.Method)
	})

	t.Run("coupon failed re-validation", func(t *testing.T) {
		co := &mockCheckout{err: &checkout.CouponError{Code: "SAVE10", Err: coupon.ErrCouponExpired}}
		srv := newTestHandler(Services{Checkout: co, Orders: &mockOrders{}}, nil)

		rec, env := do(t, srv, http.MethodPost, "/api/checkout", "customer",
			`{"shipping_address_id":"a1","payment":{"method":"card"}}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, env.Message, "SAVE10")
	})

	t.Run("invalid transition", func(t *testing.T) {
		co := &mockCheckout{err: &payment.InvalidTransitionError{From: payment.StatusPending, To: payment.StatusRefunded}}
		srv := newTestHandler(Services{Checkout: co, Orders: &mockOrders{}}, nil)

		rec, _ := do(t, srv, http.MethodPost, "/api/checkout", "customer",
			`{"shipping_address_id":"a1","payment":{"method":"cash_on_delivery"}}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("client cannot set payment outcome", func(t *testing.T) {
		for _, body := range []string{
			`{"shipping_address_id":"a1","payment":{"method":"cash_on_delivery","status":"completed"}}`,
			`{"shipping_address_id":"a1","payment":{"method":"card","gateway_response":{"result":"paid"}}}`,
		} {
			co := &mockCheckout{res: &checkout.Result{Order: o, Payment: pay}}
			srv := newTestHandler(Services{Checkout: co, Orders: &mockOrders{}}, nil)

			rec, _ := do(t, srv, http.MethodPost, "/api/checkout", "customer", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, body)
			assert.Empty(t, co.req.Customer.UserID, "checkout must not run")
		}
	})
}

func TestDeleteCoupon_UsedIsDeactivated(t *testing.T) {
	srv := newTestHandler(Services{Coupons: &mockCoupons{deactivated: true}}, nil)

	rec, env := do(t, srv, http.MethodDelete, "/api/admin/coupons/c1", "admin", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "coupon has been used and was deactivated instead", env.Message)
}

func TestPaymentCallback(t *testing.T) {
	const key = "gateway-secret"
	keys := &mockAPIKeyRepo{info: &auth.APIKeyInfo{
		ID:      "k1",
		KeyHash: HashAPIKey(testPepper, key),
		Name:    "gateway",
		Scopes:  []string{auth.ScopePaymentsWrite},
	}}

	call := func(srv http.Handler, apiKey string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/payments/PAY1/status",
			strings.NewReader(`{"status":"completed"}`))
		if apiKey != "" {
			req.Header.Set(APIKeyHeader, apiKey)
		}
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		return rec
	}

	t.Run("valid key", func(t *testing.T) {
		payments := &mockPayments{}
		rec := call(newTestHandler(Services{Payments: payments}, keys), key)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, payment.StatusCompleted, payments.updated)
	})

	t.Run("missing key", func(t *testing.T) {
		rec := call(newTestHandler(Services{Payments: &mockPayments{}}, keys), "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong key", func(t *testing.T) {
		rec := call(newTestHandler(Services{Payments: &mockPayments{}}, keys), "guess")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing scope", func(t *testing.T) {
		readOnly := &mockAPIKeyRepo{info: &auth.APIKeyInfo{ID: "k2", KeyHash: HashAPIKey(testPepper, key)}}
		rec := call(newTestHandler(Services{Payments: &mockPayments{}}, readOnly), key)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestHashAPIKey(t *testing.T) {
	a := HashAPIKey([]byte("p1"), "key")
	assert.Len(t, a, 64)
	assert.Equal(t, a, HashAPIKey([]byte("p1"), "key"))
	assert.NotEqual(t, a, HashAPIKey([]byte("p2"), "key"))
}
