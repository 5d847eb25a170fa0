package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Service evaluates and redeems coupons and implements admin management.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a coupon Service backed by the given Repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Quote looks up code, checks it against cust and computes the discount it
// grants on items. Nothing is persisted.
func (s *Service) Quote(ctx context.Context, code string, cust Customer, items []Item) (*Discount, error) {
	c, err := s.findByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if err := CheckCustomer(c, cust, s.now()); err != nil {
		return nil, err
	}

	d, err := Apply(c, items)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Reprice recomputes an applied coupon's discount for a changed set of
// items. Customer checks are repeated by Quote at checkout.
func (s *Service) Reprice(ctx context.Context, code string, items []Item) (*Discount, error) {
	c, err := s.findByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := CheckAvailability(c, s.now()); err != nil {
		return nil, err
	}

	d, err := Apply(c, items)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Service) findByCode(ctx context.Context, code string) (*Coupon, error) {
	c, err := s.repo.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	return c, nil
}

// RecordUsage redeems code for cust. The customer checks run again against
// the locked coupon row so concurrent redemptions cannot exceed the limits.
func (s *Service) RecordUsage(ctx context.Context, code string, cust Customer, u Usage) error {
	now := s.now()
	if u.UsedAt.IsZero() {
		u.UsedAt = now
	}
	u.UserID = cust.UserID

	err := s.repo.Redeem(ctx, NormalizeCode(code), u, func(c *Coupon) error {
		return CheckCustomer(c, cust, now)
	})
	if err != nil {
		return errors.Wrapf(err, "redeem %s", code)
	}
	return nil
}

// AutoApplicable returns the discounts of every auto-apply coupon cust
// qualifies for on items.
func (s *Service) AutoApplicable(ctx context.Context, cust Customer, items []Item) ([]Discount, error) {
	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list active coupons")
	}

	now := s.now()
	var out []Discount
	for i := range active {
		c := &active[i]
		if !c.IsAutoApply || CheckCustomer(c, cust, now) != nil {
			continue
		}
		d, err := Apply(c, items)
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// ListPublic returns the public coupons customers can use right now.
func (s *Service) ListPublic(ctx context.Context) ([]Coupon, error) {
	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list active coupons")
	}

	now := s.now()
	out := make([]Coupon, 0, len(active))
	for _, c := range active {
		if c.IsPublic && c.IsCurrentlyValid(now) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Get returns a coupon by ID.
func (s *Service) Get(ctx context.Context, id string) (*Coupon, error) {
	return s.repo.Get(ctx, id)
}

// List returns one page of coupons for the admin dashboard.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Coupon, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
	return s.repo.List(ctx, f)
}

// Create validates and stores a new coupon.
func (s *Service) Create(ctx context.Context, c *Coupon) error {
	c.Code = NormalizeCode(c.Code)
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := s.now()
	c.CurrentUsage = 0
	c.CreatedAt, c.UpdatedAt = now, now
	return s.repo.Create(ctx, c)
}

// Update validates and replaces an existing coupon. Usage counters are not
// editable.
func (s *Service) Update(ctx context.Context, c *Coupon) error {
	existing, err := s.repo.Get(ctx, c.ID)
	if err != nil {
		return err
	}
	c.Code = NormalizeCode(c.Code)
	c.CurrentUsage = existing.CurrentUsage
	c.CreatedAt = existing.CreatedAt
	if err := c.Validate(); err != nil {
		return err
	}
	c.UpdatedAt = s.now()
	return s.repo.Update(ctx, c)
}

// Delete removes an unused coupon. A coupon that has been redeemed is
// deactivated instead so its usage history stays intact; deactivated
// reports which happened.
func (s *Service) Delete(ctx context.Context, id string) (deactivated bool, err error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if c.CurrentUsage > 0 {
		return true, s.repo.Deactivate(ctx, id)
	}
	return false, s.repo.Delete(ctx, id)
}
