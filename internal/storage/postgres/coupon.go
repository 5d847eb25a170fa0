package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/teacheasy/internal/domain/coupon"
)

const (
	couponColumns = `id, code, description, type, value, min_order_amount, max_discount,
		start_date, end_date, usage_limit, usage_limit_per_user, current_usage,
		applicable_products, excluded_products, applicable_categories, excluded_categories,
		applicable_users, excluded_users, applicable_roles,
		is_active, is_public, is_auto_apply, is_stackable, first_order_only,
		created_at, updated_at`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`
	getCouponSQL       = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`
	lockCouponSQL      = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1 FOR UPDATE`
	listActiveSQL      = `SELECT ` + couponColumns + ` FROM coupons
		WHERE is_active AND start_date <= now() AND end_date >= now()
		ORDER BY created_at DESC`

	createCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`

	updateCouponSQL = `UPDATE coupons SET code = $2, description = $3, type = $4, value = $5,
		min_order_amount = $6, max_discount = $7, start_date = $8, end_date = $9,
		usage_limit = $10, usage_limit_per_user = $11,
		applicable_products = $12, excluded_products = $13,
		applicable_categories = $14, excluded_categories = $15,
		applicable_users = $16, excluded_users = $17, applicable_roles = $18,
		is_active = $19, is_public = $20, is_auto_apply = $21, is_stackable = $22,
		first_order_only = $23, updated_at = $24
		WHERE id = $1`

	deactivateCouponSQL = `UPDATE coupons SET is_active = FALSE, updated_at = now() WHERE id = $1`
	deleteCouponSQL     = `DELETE FROM coupons WHERE id = $1`

	incrementCouponUsageSQL = `UPDATE coupons SET current_usage = current_usage + 1, updated_at = now()
		WHERE id = $1`
	insertCouponUsageSQL = `INSERT INTO coupon_usages (coupon_id, user_id, order_id, discount, used_at)
		VALUES ($1, $2, $3, $4, $5)`
	listCouponUsagesSQL = `SELECT coupon_id, user_id, order_id, discount, used_at
		FROM coupon_usages WHERE coupon_id = ANY($1) ORDER BY used_at`

	couponCodeConstraint = "coupons_code_key"
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its normalized code together with its
// usage history. Returns coupon.ErrInvalidCoupon when no coupon matches.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	c, err := r.getOne(ctx, r.pool, getCouponByCodeSQL, code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return c, nil
}

// Get returns a coupon by ID together with its usage history.
func (r *CouponRepository) Get(ctx context.Context, id string) (*coupon.Coupon, error) {
	c, err := r.getOne(ctx, r.pool, getCouponSQL, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon %q: %w", id, err)
	}
	return c, nil
}

func (r *CouponRepository) getOne(ctx context.Context, q querier, sql, key string) (*coupon.Coupon, error) {
	rows, err := q.Query(ctx, sql, key)
	if err != nil {
		return nil, err
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		return nil, err
	}
	coupons := []coupon.Coupon{c}
	if err := loadCouponUsages(ctx, q, coupons); err != nil {
		return nil, err
	}
	return &coupons[0], nil
}

// List returns one page of coupons and the total match count.
func (r *CouponRepository) List(ctx context.Context, f coupon.ListFilter) ([]coupon.Coupon, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := arg("%" + s + "%")
		where = append(where, fmt.Sprintf("(code ILIKE %s OR description ILIKE %s)", like, like))
	}
	if f.Active != nil {
		where = append(where, "is_active = "+arg(*f.Active))
	}

	var cond string
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM coupons`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting coupons: %w", err)
	}

	q := `SELECT ` + couponColumns + ` FROM coupons` + cond +
		` ORDER BY created_at DESC LIMIT ` + arg(f.PageSize) + ` OFFSET ` + arg((f.Page-1)*f.PageSize)
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing coupons: %w", err)
	}
	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, 0, fmt.Errorf("scanning coupon rows: %w", err)
	}
	return coupons, int(total), nil
}

// ListActive returns the coupons that are switched on and inside their
// validity window, with usage history.
func (r *CouponRepository) ListActive(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listActiveSQL)
	if err != nil {
		return nil, fmt.Errorf("listing active coupons: %w", err)
	}
	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, fmt.Errorf("scanning coupon rows: %w", err)
	}
	if err := loadCouponUsages(ctx, r.pool, coupons); err != nil {
		return nil, err
	}
	return coupons, nil
}

// Create inserts a new coupon.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, createCouponSQL,
		c.ID, c.Code, c.Description, string(c.Type), c.Value, c.MinOrderAmount, c.MaxDiscount,
		c.StartDate, c.EndDate, c.UsageLimit, c.UsageLimitPerUser, c.CurrentUsage,
		emptyIfNil(c.ApplicableProducts), emptyIfNil(c.ExcludedProducts),
		emptyIfNil(c.ApplicableCategories), emptyIfNil(c.ExcludedCategories),
		emptyIfNil(c.ApplicableUsers), emptyIfNil(c.ExcludedUsers), emptyIfNil(c.ApplicableRoles),
		c.IsActive, c.IsPublic, c.IsAutoApply, c.IsStackable, c.FirstOrderOnly,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, couponCodeConstraint) {
			return coupon.ErrDuplicateCode
		}
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Update overwrites the editable fields of a coupon. The usage counter is
// only changed by Redeem.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	tag, err := r.pool.Exec(ctx, updateCouponSQL,
		c.ID, c.Code, c.Description, string(c.Type), c.Value, c.MinOrderAmount, c.MaxDiscount,
		c.StartDate, c.EndDate, c.UsageLimit, c.UsageLimitPerUser,
		emptyIfNil(c.ApplicableProducts), emptyIfNil(c.ExcludedProducts),
		emptyIfNil(c.ApplicableCategories), emptyIfNil(c.ExcludedCategories),
		emptyIfNil(c.ApplicableUsers), emptyIfNil(c.ExcludedUsers), emptyIfNil(c.ApplicableRoles),
		c.IsActive, c.IsPublic, c.IsAutoApply, c.IsStackable, c.FirstOrderOnly,
		c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, couponCodeConstraint) {
			return coupon.ErrDuplicateCode
		}
		return fmt.Errorf("updating coupon %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Deactivate switches a coupon off.
func (r *CouponRepository) Deactivate(ctx context.Context, id string) error {
	return r.execByID(ctx, deactivateCouponSQL, "deactivating", id)
}

// Delete removes a coupon and its usage history.
func (r *CouponRepository) Delete(ctx context.Context, id string) error {
	return r.execByID(ctx, deleteCouponSQL, "deleting", id)
}

func (r *CouponRepository) execByID(ctx context.Context, sql, op, id string) error {
	tag, err := r.pool.Exec(ctx, sql, id)
	if err != nil {
		return fmt.Errorf("%s coupon %q: %w", op, id, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Redeem locks the coupon row, runs check against the locked state and
// records the usage. Concurrent redemptions of the same code serialize on
// the row lock, so the usage limit cannot be overshot.
func (r *CouponRepository) Redeem(ctx context.Context, code string, u coupon.Usage, check func(*coupon.Coupon) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		c, err := r.getOne(ctx, tx, lockCouponSQL, code)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return coupon.ErrInvalidCoupon
			}
			return fmt.Errorf("locking coupon %q: %w", code, err)
		}

		if err := check(c); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, insertCouponUsageSQL, c.ID, u.UserID, u.OrderID, u.Discount, u.UsedAt); err != nil {
			return fmt.Errorf("recording usage of coupon %q: %w", code, err)
		}
		if _, err := tx.Exec(ctx, incrementCouponUsageSQL, c.ID); err != nil {
			return fmt.Errorf("incrementing usage of coupon %q: %w", code, err)
		}
		return nil
	})
}

func loadCouponUsages(ctx context.Context, q querier, coupons []coupon.Coupon) error {
	if len(coupons) == 0 {
		return nil
	}
	ids := make([]string, len(coupons))
	index := make(map[string]int, len(coupons))
	for i := range coupons {
		ids[i] = coupons[i].ID
		index[coupons[i].ID] = i
	}

	rows, err := q.Query(ctx, listCouponUsagesSQL, ids)
	if err != nil {
		return fmt.Errorf("loading coupon usages: %w", err)
	}
	var (
		couponID string
		u        coupon.Usage
	)
	_, err = pgx.ForEachRow(rows, []any{&couponID, &u.UserID, &u.OrderID, &u.Discount, &u.UsedAt}, func() error {
		i := index[couponID]
		coupons[i].UsageHistory = append(coupons[i].UsageHistory, u)
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning coupon usages: %w", err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		couponType   string
		usageLimit   *int32
		perUserLimit *int32
		currentUsage int32
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Description, &couponType, &c.Value, &c.MinOrderAmount, &c.MaxDiscount,
		&c.StartDate, &c.EndDate, &usageLimit, &perUserLimit, &currentUsage,
		&c.ApplicableProducts, &c.ExcludedProducts, &c.ApplicableCategories, &c.ExcludedCategories,
		&c.ApplicableUsers, &c.ExcludedUsers, &c.ApplicableRoles,
		&c.IsActive, &c.IsPublic, &c.IsAutoApply, &c.IsStackable, &c.FirstOrderOnly,
		&c.CreatedAt, &c.UpdatedAt,
	)
	c.Type = coupon.Type(couponType)
	c.UsageLimit = intPtr(usageLimit)
	c.UsageLimitPerUser = intPtr(perUserLimit)
	c.CurrentUsage = int(currentUsage)
	return c, err
}

func intPtr(v *int32) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}
