package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/teacheasy/internal/domain/address"
	"github.com/xenking/teacheasy/internal/domain/cart"
	"github.com/xenking/teacheasy/internal/domain/coupon"
	"github.com/xenking/teacheasy/internal/domain/order"
	"github.com/xenking/teacheasy/internal/domain/payment"
)

// CartStore loads and clears carts.
type CartStore interface {
	Get(ctx context.Context, userID string) (*cart.Cart, error)
	Clear(ctx context.Context, userID string) error
}

// AddressBook resolves a user's saved addresses.
type AddressBook interface {
	Get(ctx context.Context, userID, id string) (*address.Address, error)
}

// CouponRedeemer re-prices and redeems coupons.
type CouponRedeemer interface {
	Quote(ctx context.Context, code string, cust coupon.Customer, items []coupon.Item) (*coupon.Discount, error)
	RecordUsage(ctx context.Context, code string, cust coupon.Customer, u coupon.Usage) error
}

// PaymentCreator records the payment for a new order.
type PaymentCreator interface {
	Create(ctx context.Context, req payment.CreateRequest) (*payment.Payment, error)
}

// OrderPlacer stores the order.
type OrderPlacer interface {
	Place(ctx context.Context, req order.PlaceRequest) (*order.Order, error)
}

// PaymentInput is what the customer submitted on the payment step. The
// payment it creates starts pending; the gateway callback reports the
// outcome.
type PaymentInput struct {
	Method        payment.Method
	Card          *payment.CardDetails
	MobileBanking *payment.MobileBankingDetails
	BankTransfer  *payment.BankTransferDetails
}

// Request is a checkout submission.
type Request struct {
	Customer          coupon.Customer
	BillingAddressID  string // empty means same as shipping
	ShippingAddressID string
	Payment           PaymentInput
	Notes             string
}

// Result is the outcome of a successful checkout.
type Result struct {
	Order   *order.Order
	Payment *payment.Payment
}

// CouponError reports which applied coupon failed re-validation.
type CouponError struct {
	Code string
	Err  error
}

func (e *CouponError) Error() string {
	return "coupon " + e.Code + ": " + e.Err.Error()
}

func (e *CouponError) Unwrap() error {
	return e.Err
}

// Deps are the collaborators of the checkout Service.
type Deps struct {
	Carts     CartStore
	Addresses AddressBook
	Coupons   CouponRedeemer
	Payments  PaymentCreator
	Orders    OrderPlacer
}

// Service runs checkout.
type Service struct {
	deps     Deps
	pricing  order.PricingPolicy
	currency string

	tracer      trace.Tracer
	placed      metric.Int64Counter
	redemptions metric.Int64Counter
}

// NewService creates a checkout Service.
func NewService(deps Deps, pricing order.PricingPolicy, currency string, tp trace.TracerProvider, mp metric.MeterProvider) (*Service, error) {
	meter := mp.Meter("github.com/xenking/teacheasy/internal/domain/checkout")

	placed, err := meter.Int64Counter("teacheasy.orders.placed",
		metric.WithDescription("Orders placed through checkout"))
	if err != nil {
		return nil, errors.Wrap(err, "orders placed counter")
	}
	redemptions, err := meter.Int64Counter("teacheasy.coupons.redeemed",
		metric.WithDescription("Coupons redeemed at checkout"))
	if err != nil {
		return nil, errors.Wrap(err, "coupon redemptions counter")
	}

	return &Service{
		deps:        deps,
		pricing:     pricing,
		currency:    currency,
		tracer:      tp.Tracer("github.com/xenking/teacheasy/internal/domain/checkout"),
		placed:      placed,
		redemptions: redemptions,
	}, nil
}

// Checkout walks the wizard, prices the cart, redeems coupons, records the
// payment, places the order and clears the cart. Steps that already
// succeeded are not undone when a later step fails.
func (s *Service) Checkout(ctx context.Context, req Request) (_ *Result, rerr error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Checkout",
		trace.WithAttributes(attribute.String("payment.method", string(req.Payment.Method))))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	userID := req.Customer.UserID
	w := NewWizard()

	var billing *address.Address
	if req.BillingAddressID != "" {
		a, err := s.deps.Addresses.Get(ctx, userID, req.BillingAddressID)
		if err != nil {
			return nil, errors.Wrap(err, "billing address")
		}
		billing = a
	}
	if err := w.Complete(StepBilling); err != nil {
		return nil, err
	}

	shipping, err := s.deps.Addresses.Get(ctx, userID, req.ShippingAddressID)
	if err != nil {
		return nil, errors.Wrap(err, "shipping address")
	}
	if billing == nil {
		billing = shipping
	}
	if err := w.Complete(StepShipping); err != nil {
		return nil, err
	}

	pi := req.Payment
	if !pi.Method.Valid() {
		return nil, payment.ErrInvalidMethod
	}
	if err := payment.ValidateInput(pi.Method, pi.Card, pi.MobileBanking, pi.BankTransfer); err != nil {
		return nil, err
	}
	if err := w.Complete(StepPayment); err != nil {
		return nil, err
	}

	c, err := s.deps.Carts.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	if c.IsEmpty() {
		return nil, cart.ErrEmptyCart
	}

	items := c.CouponItems()
	discounts := make([]coupon.Discount, 0, len(c.Coupons))
	discount := decimal.Zero
	freeShipping := false
	for _, ac := range c.Coupons {
		d, err := s.deps.Coupons.Quote(ctx, ac.Code, req.Customer, items)
		if err != nil {
			return nil, &CouponError{Code: ac.Code, Err: err}
		}
		discounts = append(discounts, *d)
		discount = discount.Add(d.Amount)
		freeShipping = freeShipping || d.FreeShipping
	}
	pricing := s.pricing.Price(c.Subtotal(), discount, freeShipping)
	if err := w.Complete(StepConfirm); err != nil {
		return nil, err
	}
	if !w.Ready() {
		return nil, ErrNotReady
	}

	orderID := uuid.NewString()
	for _, d := range discounts {
		err := s.deps.Coupons.RecordUsage(ctx, d.Code, req.Customer, coupon.Usage{
			OrderID:  orderID,
			Discount: d.Amount,
		})
		if err != nil {
			return nil, &CouponError{Code: d.Code, Err: err}
		}
		s.redemptions.Add(ctx, 1, metric.WithAttributes(attribute.String("coupon.type", string(d.Type))))
	}

	p, err := s.deps.Payments.Create(ctx, payment.CreateRequest{
		OrderID:       orderID,
		UserID:        userID,
		Amount:        pricing.Total,
		Currency:      s.currency,
		Method:        pi.Method,
		Card:          pi.Card,
		MobileBanking: pi.MobileBanking,
		BankTransfer:  pi.BankTransfer,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create payment")
	}

	orderItems := make([]order.Item, len(c.Items))
	for i, it := range c.Items {
		orderItems[i] = order.Item{ProductID: it.ProductID, Snapshot: it.Snapshot, Quantity: it.Quantity}
	}
	usages := make([]order.CouponUsage, len(discounts))
	for i, d := range discounts {
		usages[i] = order.CouponUsage{Code: d.Code, Discount: d.Amount}
	}

	o, err := s.deps.Orders.Place(ctx, order.PlaceRequest{
		ID:              orderID,
		UserID:          userID,
		Items:           orderItems,
		Coupons:         usages,
		Pricing:         pricing,
		ShippingAddress: shipping.Snapshot(),
		BillingAddress:  billing.Snapshot(),
		PaymentID:       p.PaymentID,
		PaymentMethod:   string(p.Method),
		Notes:           req.Notes,
	})
	if err != nil {
		return nil, errors.Wrap(err, "place order")
	}
	s.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("payment.method", string(p.Method))))
	span.SetAttributes(attribute.String("order.number", o.Number))

	if err := s.deps.Carts.Clear(ctx, userID); err != nil {
		zctx.From(ctx).Warn("Clear cart after checkout",
			zap.String("order", o.Number), zap.Error(err))
	}

	return &Result{Order: o, Payment: p}, nil
}
