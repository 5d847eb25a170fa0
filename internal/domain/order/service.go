package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/teacheasy/internal/domain/address"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems              = errors.New("items required")
	ErrShippingAddressRequired = errors.New("shipping address required")
	ErrPaymentRequired         = errors.New("payment reference required")
	ErrCannotCancel            = errors.New("order can no longer be cancelled")
	ErrCannotReturn            = errors.New("order is not eligible for return")
	ErrReturnAlreadyRequested  = errors.New("return already requested")
	ErrInvalidStatus           = errors.New("unknown order status")
)

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// NumberGenerator allocates order numbers.
type NumberGenerator interface {
	Next(ctx context.Context) (string, error)
}

// Notifier is told about order lifecycle events.
type Notifier interface {
	OrderCreated(ctx context.Context, o *Order) error
	OrderStatusChanged(ctx context.Context, o *Order, from Status) error
}

// PlaceRequest holds the input for placing an order.
type PlaceRequest struct {
	// ID is optional; callers that must reference the order before it is
	// stored pre-assign it.
	ID              string
	UserID          string
	Items           []Item
	Coupons         []CouponUsage
	Pricing         Pricing
	ShippingAddress address.Snapshot
	BillingAddress  address.Snapshot
	PaymentID       string
	PaymentMethod   string
	Notes           string
}

// UpdateOptions carries optional data for a status change.
type UpdateOptions struct {
	Note              string
	TrackingNumber    string
	EstimatedDelivery *time.Time
}

// Service encapsulates the order lifecycle.
type Service struct {
	orders        Repository
	numbers       NumberGenerator
	notifier      Notifier
	maxReturnDays int
	now           func() time.Time
}

// NewService creates an order Service.
func NewService(orders Repository, numbers NumberGenerator, notifier Notifier, maxReturnDays int) *Service {
	return &Service{
		orders:        orders,
		numbers:       numbers,
		notifier:      notifier,
		maxReturnDays: maxReturnDays,
		now:           time.Now,
	}
}

// Place validates the request, allocates the order number, persists the
// order in pending state and announces it.
func (s *Service) Place(ctx context.Context, req PlaceRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
	}
	if req.ShippingAddress.IsZero() {
		return nil, ErrShippingAddressRequired
	}
	if req.PaymentID == "" {
		return nil, ErrPaymentRequired
	}

	number, err := s.numbers.Next(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "allocate order number")
	}

	billing := req.BillingAddress
	if billing.IsZero() {
		billing = req.ShippingAddress
	}

	items := make([]Item, len(req.Items))
	for i, item := range req.Items {
		item.Total = item.Snapshot.UnitPrice().Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
		items[i] = item
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	now := s.now()
	o := &Order{
		ID:              id,
		Number:          number,
		UserID:          req.UserID,
		Items:           items,
		Coupons:         req.Coupons,
		Pricing:         req.Pricing,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  billing,
		PaymentID:       req.PaymentID,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
		CreatedAt:       now,
	}
	o.transition(StatusPending, "Order placed", now)

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	if err := s.notifier.OrderCreated(ctx, o); err != nil {
		zctx.From(ctx).Warn("Publish order created",
			zap.String("order", o.Number), zap.Error(err))
	}
	return o, nil
}

// UpdateStatus moves an order along the transition table.
func (s *Service) UpdateStatus(ctx context.Context, number string, next Status, opts UpdateOptions) (*Order, error) {
	if !next.Valid() {
		return nil, ErrInvalidStatus
	}
	o, err := s.orders.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if opts.TrackingNumber != "" {
		o.TrackingNumber = opts.TrackingNumber
	}
	if opts.EstimatedDelivery != nil {
		o.EstimatedDelivery = opts.EstimatedDelivery
	}
	return s.changeStatus(ctx, o, next, opts.Note)
}

func (s *Service) changeStatus(ctx context.Context, o *Order, next Status, note string) (*Order, error) {
	prev := o.Status
	if !prev.CanTransitionTo(next) {
		return nil, &InvalidTransitionError{From: prev, To: next}
	}

	o.transition(next, note, s.now())
	if err := s.orders.Update(ctx, o, prev); err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}

	if err := s.notifier.OrderStatusChanged(ctx, o, prev); err != nil {
		zctx.From(ctx).Warn("Publish order status change",
			zap.String("order", o.Number), zap.Error(err))
	}
	return o, nil
}

// Cancel cancels a pending or confirmed order on behalf of its owner.
func (s *Service) Cancel(ctx context.Context, userID, number, reason string) (*Order, error) {
	o, err := s.Get(ctx, userID, number)
	if err != nil {
		return nil, err
	}
	if !o.CanBeCancelled() {
		return nil, ErrCannotCancel
	}
	o.CancelReason = reason
	return s.changeStatus(ctx, o, StatusCancelled, reason)
}

// RequestReturn flags a recently delivered order for return and refund.
func (s *Service) RequestReturn(ctx context.Context, userID, number, reason string) (*Order, error) {
	o, err := s.Get(ctx, userID, number)
	if err != nil {
		return nil, err
	}
	if o.ReturnRequested {
		return nil, ErrReturnAlreadyRequested
	}
	now := s.now()
	if !o.CanBeReturned(now, s.maxReturnDays) {
		return nil, ErrCannotReturn
	}

	o.ReturnRequested = true
	o.RefundRequested = true
	o.ReturnReason = reason
	o.UpdatedAt = now
	if err := s.orders.Update(ctx, o, o.Status); err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	return o, nil
}

// Get returns one of the user's orders.
func (s *Service) Get(ctx context.Context, userID, number string) (*Order, error) {
	o, err := s.orders.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// Find returns any order by number.
func (s *Service) Find(ctx context.Context, number string) (*Order, error) {
	return s.orders.GetByNumber(ctx, number)
}

// ListForUser returns the user's orders, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string, p Page) ([]Order, int, error) {
	p.Normalize()
	return s.orders.ListByUser(ctx, userID, p)
}

// List returns orders for the admin dashboard.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, ErrInvalidStatus
	}
	f.Page.Normalize()
	return s.orders.List(ctx, f)
}

// CountForUser returns how many orders the user has placed.
func (s *Service) CountForUser(ctx context.Context, userID string) (int, error) {
	return s.orders.CountByUser(ctx, userID)
}

// Stats aggregates order counts and revenue. Cancelled and refunded orders
// do not count towards revenue.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	byStatus, err := s.orders.StatsByStatus(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "order stats")
	}

	st := &Stats{TotalRevenue: decimal.Zero, ByStatus: byStatus}
	for _, row := range byStatus {
		st.TotalOrders += row.Count
		if row.Status == StatusCancelled || row.Status == StatusRefunded {
			continue
		}
		st.TotalRevenue = st.TotalRevenue.Add(row.Revenue)
	}
	return st, nil
}
