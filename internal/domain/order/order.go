package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/teacheasy/internal/domain/address"
	"github.com/xenking/teacheasy/internal/domain/product"
)

var (
	// ErrNotFound is returned when an order does not exist or belongs to
	// another user.
	ErrNotFound = errors.New("order not found")
	// ErrConflict is returned when the order changed between read and write.
	ErrConflict = errors.New("order was modified concurrently")
)

// Order is a placed order. Items and addresses are snapshots taken at
// checkout and never change afterwards.
type Order struct {
	ID                 string
	Number             string
	UserID             string
	Items              []Item
	Coupons            []CouponUsage
	Pricing            Pricing
	ShippingAddress    address.Snapshot
	BillingAddress     address.Snapshot
	Status             Status
	StatusHistory      []StatusChange
	PaymentID          string
	PaymentMethod      string
	TrackingNumber     string
	EstimatedDelivery  *time.Time
	ShippedAt          *time.Time
	ActualDeliveryDate *time.Time
	CancelReason       string
	ReturnRequested    bool
	ReturnReason       string
	RefundRequested    bool
	Notes              string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Item represents a single line item in an order.
type Item struct {
	ProductID string           `json:"product_id"`
	Snapshot  product.Snapshot `json:"snapshot"`
	Quantity  int              `json:"quantity"`
	Total     decimal.Decimal  `json:"total"`
}

// CouponUsage records a coupon redeemed on the order.
type CouponUsage struct {
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
}

// StatusChange is one entry of the append-only status history.
type StatusChange struct {
	Status    Status    `json:"status"`
	Note      string    `json:"note,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanBeCancelled reports whether the customer may still cancel.
func (o *Order) CanBeCancelled() bool {
	return o.Status == StatusPending || o.Status == StatusConfirmed
}

// CanBeReturned reports whether the order was delivered no more than
// maxReturnDays whole days before now.
func (o *Order) CanBeReturned(now time.Time, maxReturnDays int) bool {
	if o.Status != StatusDelivered || o.ActualDeliveryDate == nil {
		return false
	}
	days := int(now.Sub(*o.ActualDeliveryDate) / (24 * time.Hour))
	return days <= maxReturnDays
}

// transition appends to the history and stamps fulfilment timestamps. The
// caller checks the transition table first.
func (o *Order) transition(next Status, note string, now time.Time) {
	o.Status = next
	o.StatusHistory = append(o.StatusHistory, StatusChange{
		Status:    next,
		Note:      note,
		UpdatedAt: now,
	})
	switch next {
	case StatusShipped, StatusPartiallyShipped:
		if o.ShippedAt == nil {
			o.ShippedAt = &now
		}
	case StatusDelivered:
		o.ActualDeliveryDate = &now
	}
	o.UpdatedAt = now
}

// Page selects a window of a listing.
type Page struct {
	Page     int
	PageSize int
}

// Normalize applies paging defaults and bounds.
func (p *Page) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 || p.PageSize > 100 {
		p.PageSize = 20
	}
}

// Offset returns the row offset for the page.
func (p Page) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// ListFilter narrows the admin order listing.
type ListFilter struct {
	Status Status
	UserID string
	Page
}

// StatusStat aggregates orders in one status.
type StatusStat struct {
	Status  Status
	Count   int
	Revenue decimal.Decimal
}

// Stats summarises orders for the admin dashboard.
type Stats struct {
	TotalOrders  int
	TotalRevenue decimal.Decimal
	ByStatus     []StatusStat
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByNumber(ctx context.Context, number string) (*Order, error)
	// Update writes o only if the stored status still equals prev and
	// returns ErrConflict otherwise.
	Update(ctx context.Context, o *Order, prev Status) error
	ListByUser(ctx context.Context, userID string, p Page) ([]Order, int, error)
	List(ctx context.Context, f ListFilter) ([]Order, int, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	StatsByStatus(ctx context.Context) ([]StatusStat, error)
}
