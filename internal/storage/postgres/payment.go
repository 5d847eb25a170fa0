package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/teacheasy/internal/domain/payment"
)

const (
	paymentColumns = `id, payment_id, order_id, user_id, amount, currency, method,
		card, mobile_banking, bank_transfer, status, status_history,
		processing_fee, gateway_fee, service_fee, total_fees, refund, gateway_response,
		captured_at, failed_at, refunded_at, created_at, updated_at`

	createPaymentSQL = `INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`

	getPaymentSQL = `SELECT ` + paymentColumns + ` FROM payments WHERE payment_id = $1`

	updatePaymentSQL = `UPDATE payments SET status = $3, status_history = $4,
		processing_fee = $5, gateway_fee = $6, service_fee = $7, total_fees = $8,
		refund = $9, gateway_response = $10, captured_at = $11, failed_at = $12,
		refunded_at = $13, updated_at = $14
		WHERE payment_id = $1 AND status = $2`
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository returns a PaymentRepository that uses the given pool.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Create persists a new payment.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	docs, err := marshalPaymentDocs(p)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, createPaymentSQL,
		p.ID, p.PaymentID, p.OrderID, p.UserID, p.Amount, p.Currency, string(p.Method),
		docs.card, docs.mobileBanking, docs.bankTransfer, string(p.Status), docs.history,
		p.Fees.ProcessingFee, p.Fees.GatewayFee, p.Fees.ServiceFee, p.Fees.TotalFees,
		docs.refund, docs.gateway, p.CapturedAt, p.FailedAt, p.RefundedAt, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating payment %q: %w", p.PaymentID, err)
	}
	return nil
}

// GetByPaymentID returns a payment by its human-readable ID.
func (r *PaymentRepository) GetByPaymentID(ctx context.Context, paymentID string) (*payment.Payment, error) {
	rows, err := r.pool.Query(ctx, getPaymentSQL, paymentID)
	if err != nil {
		return nil, fmt.Errorf("finding payment %q: %w", paymentID, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("finding payment %q: %w", paymentID, err)
	}
	return &p, nil
}

// Update writes the mutable payment fields, provided the stored status
// still equals prev.
func (r *PaymentRepository) Update(ctx context.Context, p *payment.Payment, prev payment.Status) error {
	docs, err := marshalPaymentDocs(p)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, updatePaymentSQL,
		p.PaymentID, string(prev), string(p.Status), docs.history,
		p.Fees.ProcessingFee, p.Fees.GatewayFee, p.Fees.ServiceFee, p.Fees.TotalFees,
		docs.refund, docs.gateway, p.CapturedAt, p.FailedAt, p.RefundedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating payment %q: %w", p.PaymentID, err)
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrConflict
	}
	return nil
}

type paymentDocs struct {
	card, mobileBanking, bankTransfer, refund []byte
	history, gateway                          []byte
}

// marshalPaymentDocs leaves absent detail blocks and refunds as SQL NULL.
func marshalPaymentDocs(p *payment.Payment) (paymentDocs, error) {
	var (
		d   paymentDocs
		err error
	)
	optional := []struct {
		name  string
		value any
		isNil bool
		dst   *[]byte
	}{
		{"card details", p.Card, p.Card == nil, &d.card},
		{"mobile banking details", p.MobileBanking, p.MobileBanking == nil, &d.mobileBanking},
		{"bank transfer details", p.BankTransfer, p.BankTransfer == nil, &d.bankTransfer},
		{"refund", p.Refund, p.Refund == nil, &d.refund},
	}
	for _, doc := range optional {
		if doc.isNil {
			continue
		}
		if *doc.dst, err = json.Marshal(doc.value); err != nil {
			return d, fmt.Errorf("marshaling %s: %w", doc.name, err)
		}
	}

	if d.history, err = marshalList(p.StatusHistory); err != nil {
		return d, fmt.Errorf("marshaling status history: %w", err)
	}
	gateway := p.GatewayResponse
	if gateway == nil {
		gateway = map[string]string{}
	}
	if d.gateway, err = json.Marshal(gateway); err != nil {
		return d, fmt.Errorf("marshaling gateway response: %w", err)
	}
	return d, nil
}

func scanPayment(row pgx.CollectableRow) (payment.Payment, error) {
	var (
		p      payment.Payment
		docs   paymentDocs
		method string
		status string
	)
	err := row.Scan(
		&p.ID, &p.PaymentID, &p.OrderID, &p.UserID, &p.Amount, &p.Currency, &method,
		&docs.card, &docs.mobileBanking, &docs.bankTransfer, &status, &docs.history,
		&p.Fees.ProcessingFee, &p.Fees.GatewayFee, &p.Fees.ServiceFee, &p.Fees.TotalFees,
		&docs.refund, &docs.gateway, &p.CapturedAt, &p.FailedAt, &p.RefundedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}
	p.Method = payment.Method(method)
	p.Status = payment.Status(status)

	if docs.card != nil {
		p.Card = new(payment.CardDetails)
	}
	if docs.mobileBanking != nil {
		p.MobileBanking = new(payment.MobileBankingDetails)
	}
	if docs.bankTransfer != nil {
		p.BankTransfer = new(payment.BankTransferDetails)
	}
	if docs.refund != nil {
		p.Refund = new(payment.Refund)
	}

	for _, doc := range []struct {
		name string
		data []byte
		dst  any
	}{
		{"card details", docs.card, p.Card},
		{"mobile banking details", docs.mobileBanking, p.MobileBanking},
		{"bank transfer details", docs.bankTransfer, p.BankTransfer},
		{"refund", docs.refund, p.Refund},
		{"status history", docs.history, &p.StatusHistory},
		{"gateway response", docs.gateway, &p.GatewayResponse},
	} {
		if doc.data == nil {
			continue
		}
		if err := json.Unmarshal(doc.data, doc.dst); err != nil {
			return p, fmt.Errorf("unmarshaling payment %s: %w", doc.name, err)
		}
	}
	return p, nil
}
