package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/teacheasy/pkg/validation"
)

// Type enumerates the supported coupon discount strategies.
type Type string

const (
	// TypePercentage takes a percentage off the eligible subtotal.
	TypePercentage Type = "percentage"
	// TypeFixedAmount takes a fixed amount off, capped at the eligible subtotal.
	TypeFixedAmount Type = "fixed_amount"
	// TypeFreeShipping waives the shipping fee.
	TypeFreeShipping Type = "free_shipping"
)

// Valid reports whether t is a known coupon type.
func (t Type) Valid() bool {
	switch t {
	case TypePercentage, TypeFixedAmount, TypeFreeShipping:
		return true
	}
	return false
}

var (
	// ErrInvalidCoupon is returned when a coupon code is not found.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrNotFound is returned when a coupon ID does not exist.
	ErrNotFound = errors.New("coupon not found")
	// ErrCouponInactive is returned for coupons switched off by an admin.
	ErrCouponInactive = errors.New("coupon is not active")
	// ErrCouponNotStarted is returned before the coupon's start date.
	ErrCouponNotStarted = errors.New("coupon is not yet valid")
	// ErrCouponExpired is returned after the coupon's end date.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrUsageLimitReached is returned when a coupon has exhausted its allowed uses.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrNotEligible is matched by *IneligibleError.
	ErrNotEligible = errors.New("coupon not applicable to this customer")
	// ErrFirstOrderOnly is returned for first-order coupons used by returning customers.
	ErrFirstOrderOnly = errors.New("coupon is valid for first order only")
	// ErrNoEligibleItems is returned when no cart item qualifies for the coupon.
	ErrNoEligibleItems = errors.New("no items in cart are eligible for this coupon")
	// ErrDuplicateCode is returned when another coupon already uses the code.
	ErrDuplicateCode = errors.New("coupon code already exists")
)

var rejections = []error{
	ErrInvalidCoupon,
	ErrCouponInactive,
	ErrCouponNotStarted,
	ErrCouponExpired,
	ErrUsageLimitReached,
	ErrNotEligible,
	ErrFirstOrderOnly,
	ErrNoEligibleItems,
}

// Rejected reports whether err says the coupon cannot be used, as opposed
// to a failure while checking it.
func Rejected(err error) bool {
	var minOrder *MinOrderError
	if errors.As(err, &minOrder) {
		return true
	}
	for _, target := range rejections {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IneligibleError explains why a customer may not use a coupon.
type IneligibleError struct {
	Reason string
}

func (e *IneligibleError) Error() string {
	return e.Reason
}

// Is makes errors.Is(err, ErrNotEligible) match.
func (e *IneligibleError) Is(target error) bool {
	return target == ErrNotEligible
}

// MinOrderError indicates the cart subtotal is below the coupon minimum.
type MinOrderError struct {
	Required decimal.Decimal
}

func (e *MinOrderError) Error() string {
	return fmt.Sprintf("minimum order amount of %s required", e.Required.StringFixed(2))
}

// Coupon is a discount code with its validity window, usage limits and
// targeting rules.
type Coupon struct {
	ID                   string
	Code                 string
	Description          string
	Type                 Type
	Value                decimal.Decimal
	MinOrderAmount       decimal.Decimal
	MaxDiscount          decimal.Decimal // zero means uncapped
	StartDate            time.Time
	EndDate              time.Time
	UsageLimit           *int // nil means unlimited
	UsageLimitPerUser    *int
	CurrentUsage         int
	ApplicableProducts   []string
	ExcludedProducts     []string
	ApplicableCategories []string
	ExcludedCategories   []string
	ApplicableUsers      []string
	ExcludedUsers        []string
	ApplicableRoles      []string
	IsActive             bool
	IsPublic             bool
	IsAutoApply          bool
	IsStackable          bool
	FirstOrderOnly       bool
	UsageHistory         []Usage
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Usage records one redemption of a coupon.
type Usage struct {
	UserID   string
	OrderID  string
	Discount decimal.Decimal
	UsedAt   time.Time
}

// NormalizeCode upper-cases and trims a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsExpired reports whether now is past the end date.
func (c *Coupon) IsExpired(now time.Time) bool {
	return now.After(c.EndDate)
}

// IsCurrentlyValid reports whether the coupon is active, inside its window
// and under its global usage limit.
func (c *Coupon) IsCurrentlyValid(now time.Time) bool {
	return c.IsActive &&
		!now.Before(c.StartDate) &&
		!now.After(c.EndDate) &&
		!c.limitReached()
}

func (c *Coupon) limitReached() bool {
	return c.UsageLimit != nil && c.CurrentUsage >= *c.UsageLimit
}

// RemainingUsage returns the number of redemptions left, or nil when
// unlimited.
func (c *Coupon) RemainingUsage() *int {
	if c.UsageLimit == nil {
		return nil
	}
	left := max(*c.UsageLimit-c.CurrentUsage, 0)
	return &left
}

var hundred = decimal.NewFromInt(100)

// UsagePercentage returns CurrentUsage as a share of UsageLimit in percent,
// rounded to two decimals and capped at 100. Unlimited coupons report 0.
func (c *Coupon) UsagePercentage() decimal.Decimal {
	if c.UsageLimit == nil {
		return decimal.Zero
	}
	if *c.UsageLimit <= 0 {
		return hundred
	}
	pct := decimal.NewFromInt(int64(c.CurrentUsage)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(*c.UsageLimit))).
		Round(2)
	return decimal.Min(pct, hundred)
}

// UsesBy counts the redemptions recorded for userID.
func (c *Coupon) UsesBy(userID string) int {
	n := 0
	for _, u := range c.UsageHistory {
		if u.UserID == userID {
			n++
		}
	}
	return n
}

// Validate checks the invariants every stored coupon must satisfy.
func (c *Coupon) Validate() error {
	errs := validation.Errors{}
	if c.Code == "" {
		errs.Add("code", "is required")
	}
	if !c.Type.Valid() {
		errs.Add("type", "must be one of: percentage fixed_amount free_shipping")
	}
	if c.Value.IsNegative() {
		errs.Add("value", "must not be negative")
	} else if c.Type == TypePercentage && c.Value.GreaterThan(hundred) {
		errs.Add("value", "must be between 0 and 100 for percentage coupons")
	}
	if c.MinOrderAmount.IsNegative() {
		errs.Add("min_order_amount", "must not be negative")
	}
	if c.MaxDiscount.IsNegative() {
		errs.Add("max_discount", "must not be negative")
	}
	if !c.EndDate.After(c.StartDate) {
		errs.Add("end_date", "must be after start date")
	}
	if c.UsageLimit != nil && *c.UsageLimit < 0 {
		errs.Add("usage_limit", "must not be negative")
	}
	if c.UsageLimitPerUser != nil && *c.UsageLimitPerUser < 0 {
		errs.Add("usage_limit_per_user", "must not be negative")
	}
	return errs.Err()
}

// ListFilter narrows the admin coupon listing.
type ListFilter struct {
	Search   string
	Active   *bool
	Page     int
	PageSize int
}

// Repository provides lookup and mutation of coupons.
type Repository interface {
	// FindByCode returns ErrInvalidCoupon when the code is unknown. The
	// returned coupon carries its usage history.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	Get(ctx context.Context, id string) (*Coupon, error)
	List(ctx context.Context, f ListFilter) ([]Coupon, int, error)
	ListActive(ctx context.Context) ([]Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	Deactivate(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	// Redeem locks the coupon row, runs check against the locked state and,
	// when it passes, records u and increments the usage counter. All of it
	// happens in one transaction.
	Redeem(ctx context.Context, code string, u Usage, check func(*Coupon) error) error
}
