package coupon

import (
	"slices"
	"time"
)

// Eligibility is the outcome of a per-user coupon check.
type Eligibility struct {
	Valid  bool
	Reason string
}

// Customer identifies who is redeeming a coupon.
type Customer struct {
	UserID     string
	Role       string
	OrderCount int
}

// IsValidForUser checks the per-user cap, the allow list and the deny list,
// in that order, and reports the first failure.
func IsValidForUser(c *Coupon, userID string) Eligibility {
	if c.UsageLimitPerUser != nil && c.UsesBy(userID) >= *c.UsageLimitPerUser {
		return Eligibility{Reason: "you have already used this coupon the maximum number of times"}
	}
	if len(c.ApplicableUsers) > 0 && !slices.Contains(c.ApplicableUsers, userID) {
		return Eligibility{Reason: "this coupon is not available for your account"}
	}
	if slices.Contains(c.ExcludedUsers, userID) {
		return Eligibility{Reason: "you are not eligible to use this coupon"}
	}
	return Eligibility{Valid: true}
}

// CheckAvailability reports why a coupon cannot be used by anyone at now.
func CheckAvailability(c *Coupon, now time.Time) error {
	switch {
	case !c.IsActive:
		return ErrCouponInactive
	case now.Before(c.StartDate):
		return ErrCouponNotStarted
	case c.IsExpired(now):
		return ErrCouponExpired
	case c.limitReached():
		return ErrUsageLimitReached
	}
	return nil
}

// CheckCustomer runs every non-cart check for cust.
func CheckCustomer(c *Coupon, cust Customer, now time.Time) error {
	if err := CheckAvailability(c, now); err != nil {
		return err
	}
	if e := IsValidForUser(c, cust.UserID); !e.Valid {
		return &IneligibleError{Reason: e.Reason}
	}
	if len(c.ApplicableRoles) > 0 && !slices.Contains(c.ApplicableRoles, cust.Role) {
		return &IneligibleError{Reason: "this coupon is not available for your account type"}
	}
	if c.FirstOrderOnly && cust.OrderCount > 0 {
		return ErrFirstOrderOnly
	}
	return nil
}
