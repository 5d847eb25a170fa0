// Package handler exposes the storefront over HTTP+JSON.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/teacheasy/internal/domain/address"
	"github.com/xenking/teacheasy/internal/domain/auth"
	"github.com/xenking/teacheasy/internal/domain/cart"
	"github.com/xenking/teacheasy/internal/domain/category"
	"github.com/xenking/teacheasy/internal/domain/checkout"
	"github.com/xenking/teacheasy/internal/domain/coupon"
	"github.com/xenking/teacheasy/internal/domain/order"
	"github.com/xenking/teacheasy/internal/domain/payment"
	"github.com/xenking/teacheasy/internal/domain/product"
)

// ProductService is the catalog as seen by the handlers.
type ProductService interface {
	List(ctx context.Context, f product.Filter) ([]product.Product, int, error)
	GetBySlug(ctx context.Context, slug string) (*product.Product, error)
	Get(ctx context.Context, id string) (*product.Product, error)
	Create(ctx context.Context, p *product.Product) error
	Update(ctx context.Context, p *product.Product) error
	Delete(ctx context.Context, id string) error
}

type CategoryService interface {
	List(ctx context.Context) ([]category.Category, error)
	Get(ctx context.Context, id string) (*category.Category, error)
	Create(ctx context.Context, c *category.Category) error
	Update(ctx context.Context, c *category.Category) error
	Delete(ctx context.Context, id string) error
}

type CartService interface {
	Get(ctx context.Context, userID string) (*cart.Cart, error)
	AddItem(ctx context.Context, userID, productID string, qty int) (*cart.Cart, error)
	UpdateQuantity(ctx context.Context, userID, productID string, qty int) (*cart.Cart, error)
	RemoveItem(ctx context.Context, userID, productID string) (*cart.Cart, error)
	ApplyCoupon(ctx context.Context, cust coupon.Customer, code string) (*cart.Cart, error)
	RemoveCoupon(ctx context.Context, userID, code string) (*cart.Cart, error)
	Clear(ctx context.Context, userID string) error
}

type WishlistService interface {
	List(ctx context.Context, userID string) ([]product.Product, error)
	Add(ctx context.Context, userID, productID string) error
	Remove(ctx context.Context, userID, productID string) error
	MoveToCart(ctx context.Context, userID, productID string) (*cart.Cart, error)
}

type AddressService interface {
	List(ctx context.Context, userID string) ([]address.Address, error)
	Get(ctx context.Context, userID, id string) (*address.Address, error)
	Save(ctx context.Context, a *address.Address) error
	SetDefault(ctx context.Context, userID, id string) error
	Delete(ctx context.Context, userID, id string) error
}

type CouponService interface {
	ListPublic(ctx context.Context) ([]coupon.Coupon, error)
	AutoApplicable(ctx context.Context, cust coupon.Customer, items []coupon.Item) ([]coupon.Discount, error)
	Get(ctx context.Context, id string) (*coupon.Coupon, error)
	List(ctx context.Context, f coupon.ListFilter) ([]coupon.Coupon, int, error)
	Create(ctx context.Context, c *coupon.Coupon) error
	Update(ctx context.Context, c *coupon.Coupon) error
	Delete(ctx context.Context, id string) (bool, error)
}

type OrderService interface {
	Get(ctx context.Context, userID, number string) (*order.Order, error)
	Find(ctx context.Context, number string) (*order.Order, error)
	ListForUser(ctx context.Context, userID string, p order.Page) ([]order.Order, int, error)
	List(ctx context.Context, f order.ListFilter) ([]order.Order, int, error)
	CountForUser(ctx context.Context, userID string) (int, error)
	Cancel(ctx context.Context, userID, number, reason string) (*order.Order, error)
	RequestReturn(ctx context.Context, userID, number, reason string) (*order.Order, error)
	UpdateStatus(ctx context.Context, number string, next order.Status, opts order.UpdateOptions) (*order.Order, error)
	Stats(ctx context.Context) (*order.Stats, error)
}

type PaymentService interface {
	Get(ctx context.Context, paymentID string) (*payment.Payment, error)
	UpdateStatus(ctx context.Context, paymentID string, next payment.Status, note string, gatewayResponse map[string]string) (*payment.Payment, error)
	ProcessRefund(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) (*payment.Payment, error)
	UpdateFees(ctx context.Context, paymentID string, fees payment.Fees) (*payment.Payment, error)
}

type CheckoutService interface {
	Checkout(ctx context.Context, req checkout.Request) (*checkout.Result, error)
}

// TokenParser authenticates bearer tokens.
type TokenParser interface {
	Parse(raw string) (*auth.User, error)
}

// Services bundles the domain services the handlers delegate to.
type Services struct {
	Products   ProductService
	Categories CategoryService
	Carts      CartService
	Wishlist   WishlistService
	Addresses  AddressService
	Coupons    CouponService
	Orders     OrderService
	Payments   PaymentService
	Checkout   CheckoutService
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in responses.
	// When empty, image paths are returned as stored.
	ImageBaseURL string
	// APIKeyPepper keys the HMAC used to hash gateway API keys.
	APIKeyPepper []byte
}

// Handler serves the storefront API.
type Handler struct {
	Services

	tokens       TokenParser
	apikeys      auth.APIKeyRepository
	pepper       []byte
	imageBaseURL string
}

// New constructs a Handler.
func New(cfg Config, svc Services, tokens TokenParser, apikeys auth.APIKeyRepository) *Handler {
	return &Handler{
		Services:     svc,
		tokens:       tokens,
		apikeys:      apikeys,
		pepper:       cfg.APIKeyPepper,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Routes returns the API router. Every route lives under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.listProducts)
		r.Get("/products/{slug}", h.getProduct)
		r.Get("/categories", h.listCategories)
		r.Get("/coupons", h.listPublicCoupons)

		r.With(h.requireAPIKey(auth.ScopePaymentsWrite)).
			Post("/payments/{paymentID}/status", h.updatePaymentStatus)

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.getCart)
				r.Delete("/", h.clearCart)
				r.Post("/items", h.addCartItem)
				r.Patch("/items/{productID}", h.updateCartItem)
				r.Delete("/items/{productID}", h.removeCartItem)
				r.Post("/coupons", h.applyCoupon)
				r.Delete("/coupons/{code}", h.removeCoupon)
			})

			r.Route("/wishlist", func(r chi.Router) {
				r.Get("/", h.getWishlist)
				r.Post("/", h.addToWishlist)
				r.Delete("/{productID}", h.removeFromWishlist)
				r.Post("/{productID}/move", h.moveToCart)
			})

			r.Route("/addresses", func(r chi.Router) {
				r.Get("/", h.listAddresses)
				r.Post("/", h.createAddress)
				r.Get("/{id}", h.getAddress)
				r.Put("/{id}", h.updateAddress)
				r.Delete("/{id}", h.deleteAddress)
				r.Post("/{id}/default", h.setDefaultAddress)
			})

			r.Post("/checkout", h.checkout)
			r.Route("/orders", func(r chi.Router) {
				r.Get("/", h.listOrders)
				r.Get("/{number}", h.getOrder)
				r.Post("/{number}/cancel", h.cancelOrder)
				r.Post("/{number}/return", h.requestReturn)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireRole(auth.RoleAdmin))

				r.Get("/products", h.adminListProducts)
				r.Post("/products", h.createProduct)
				r.Put("/products/{id}", h.updateProduct)
				r.Delete("/products/{id}", h.deleteProduct)

				r.Post("/categories", h.createCategory)
				r.Put("/categories/{id}", h.updateCategory)
				r.Delete("/categories/{id}", h.deleteCategory)

				r.Get("/coupons", h.adminListCoupons)
				r.Post("/coupons", h.createCoupon)
				r.Get("/coupons/{id}", h.adminGetCoupon)
				r.Put("/coupons/{id}", h.updateCoupon)
				r.Delete("/coupons/{id}", h.deleteCoupon)

				r.Get("/orders", h.adminListOrders)
				r.Get("/orders/{number}", h.adminGetOrder)
				r.Patch("/orders/{number}/status", h.updateOrderStatus)
				r.Get("/stats", h.orderStats)

				r.Get("/payments/{paymentID}", h.adminGetPayment)
				r.Post("/payments/{paymentID}/refund", h.refundPayment)
				r.Put("/payments/{paymentID}/fees", h.updatePaymentFees)
			})
		})
	})
	return r
}
