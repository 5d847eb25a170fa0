package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/teacheasy/internal/domain/order"
)

const (
	orderColumns = `id, number, user_id, items, coupons, subtotal, discount, shipping, tax, total,
		shipping_address, billing_address, status, status_history, payment_id, payment_method,
		tracking_number, estimated_delivery, shipped_at, actual_delivery_date, cancel_reason,
		return_requested, return_reason, refund_requested, notes, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)`

	getOrderByNumberSQL = `SELECT ` + orderColumns + ` FROM orders WHERE number = $1`

	updateOrderSQL = `UPDATE orders SET status = $3, status_history = $4, tracking_number = $5,
		estimated_delivery = $6, shipped_at = $7, actual_delivery_date = $8, cancel_reason = $9,
		return_requested = $10, return_reason = $11, refund_requested = $12, updated_at = $13
		WHERE number = $1 AND status = $2`

	countOrdersByUserSQL = `SELECT count(*) FROM orders WHERE user_id = $1`

	orderStatsSQL = `SELECT status, count(*), COALESCE(sum(total), 0)
		FROM orders GROUP BY status ORDER BY status`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. Items, coupons, addresses and the status
// history are serialized to JSON for storage in JSONB columns.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	docs, err := marshalOrderDocs(o)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.Number, o.UserID, docs.items, docs.coupons,
		o.Pricing.Subtotal, o.Pricing.Discount, o.Pricing.Shipping, o.Pricing.Tax, o.Pricing.Total,
		docs.shipping, docs.billing, string(o.Status), docs.history, o.PaymentID, o.PaymentMethod,
		o.TrackingNumber, o.EstimatedDelivery, o.ShippedAt, o.ActualDeliveryDate, o.CancelReason,
		o.ReturnRequested, o.ReturnReason, o.RefundRequested, o.Notes, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.Number, err)
	}

	return nil
}

// GetByNumber returns an order by its human-readable number.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByNumberSQL, number)
	if err != nil {
		return nil, fmt.Errorf("finding order %q: %w", number, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("finding order %q: %w", number, err)
	}
	return &o, nil
}

// Update writes the mutable order fields, provided the stored status still
// equals prev.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order, prev order.Status) error {
	history, err := json.Marshal(o.StatusHistory)
	if err != nil {
		return fmt.Errorf("marshaling status history: %w", err)
	}

	tag, err := r.pool.Exec(ctx, updateOrderSQL,
		o.Number, string(prev), string(o.Status), history, o.TrackingNumber,
		o.EstimatedDelivery, o.ShippedAt, o.ActualDeliveryDate, o.CancelReason,
		o.ReturnRequested, o.ReturnReason, o.RefundRequested, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.Number, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrConflict
	}
	return nil
}

// ListByUser returns one page of the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, p order.Page) ([]order.Order, int, error) {
	return r.List(ctx, order.ListFilter{UserID: userID, Page: p})
}

// List returns one page of orders matching f, newest first.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.UserID != "" {
		where = append(where, "user_id = "+arg(f.UserID))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}

	var cond string
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM orders`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}

	q := `SELECT ` + orderColumns + ` FROM orders` + cond +
		` ORDER BY created_at DESC LIMIT ` + arg(f.PageSize) + ` OFFSET ` + arg(f.Offset())
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("scanning order rows: %w", err)
	}
	return orders, int(total), nil
}

// CountByUser returns how many orders the user has placed.
func (r *OrderRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, countOrdersByUserSQL, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting orders of %q: %w", userID, err)
	}
	return int(n), nil
}

// StatsByStatus returns order counts and totals grouped by status.
func (r *OrderRepository) StatsByStatus(ctx context.Context) ([]order.StatusStat, error) {
	rows, err := r.pool.Query(ctx, orderStatsSQL)
	if err != nil {
		return nil, fmt.Errorf("aggregating orders: %w", err)
	}
	stats, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.StatusStat, error) {
		var (
			st     order.StatusStat
			status string
			count  int64
		)
		err := row.Scan(&status, &count, &st.Revenue)
		st.Status = order.Status(status)
		st.Count = int(count)
		return st, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning order stats: %w", err)
	}
	return stats, nil
}

type orderDocs struct {
	items, coupons, shipping, billing, history []byte
}

func marshalOrderDocs(o *order.Order) (orderDocs, error) {
	var (
		d   orderDocs
		err error
	)
	if d.items, err = marshalList(o.Items); err != nil {
		return d, fmt.Errorf("marshaling order items: %w", err)
	}
	if d.coupons, err = marshalList(o.Coupons); err != nil {
		return d, fmt.Errorf("marshaling order coupons: %w", err)
	}
	if d.shipping, err = json.Marshal(o.ShippingAddress); err != nil {
		return d, fmt.Errorf("marshaling shipping address: %w", err)
	}
	if d.billing, err = json.Marshal(o.BillingAddress); err != nil {
		return d, fmt.Errorf("marshaling billing address: %w", err)
	}
	if d.history, err = marshalList(o.StatusHistory); err != nil {
		return d, fmt.Errorf("marshaling status history: %w", err)
	}
	return d, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		docs   orderDocs
		status string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &docs.items, &docs.coupons,
		&o.Pricing.Subtotal, &o.Pricing.Discount, &o.Pricing.Shipping, &o.Pricing.Tax, &o.Pricing.Total,
		&docs.shipping, &docs.billing, &status, &docs.history, &o.PaymentID, &o.PaymentMethod,
		&o.TrackingNumber, &o.EstimatedDelivery, &o.ShippedAt, &o.ActualDeliveryDate, &o.CancelReason,
		&o.ReturnRequested, &o.ReturnReason, &o.RefundRequested, &o.Notes, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)

	for _, doc := range []struct {
		name string
		data []byte
		dst  any
	}{
		{"items", docs.items, &o.Items},
		{"coupons", docs.coupons, &o.Coupons},
		{"shipping address", docs.shipping, &o.ShippingAddress},
		{"billing address", docs.billing, &o.BillingAddress},
		{"status history", docs.history, &o.StatusHistory},
	} {
		if err := json.Unmarshal(doc.data, doc.dst); err != nil {
			return o, fmt.Errorf("unmarshaling order %s: %w", doc.name, err)
		}
	}
	return o, nil
}
