package payment

import (
	"context"
	"maps"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// IDGenerator allocates payment IDs.
type IDGenerator interface {
	Next(ctx context.Context) (string, error)
}

// Notifier is told about payment status changes.
type Notifier interface {
	PaymentStatusChanged(ctx context.Context, p *Payment, from Status) error
}

// CreateRequest holds the input for recording a payment.
type CreateRequest struct {
	OrderID       string
	UserID        string
	Amount        decimal.Decimal
	Currency      string
	Method        Method
	Card          *CardDetails
	MobileBanking *MobileBankingDetails
	BankTransfer  *BankTransferDetails
	Fees          Fees
}

// Service tracks payment state.
type Service struct {
	repo     Repository
	ids      IDGenerator
	notifier Notifier
	now      func() time.Time
}

// NewService creates a payment Service.
func NewService(repo Repository, ids IDGenerator, notifier Notifier) *Service {
	return &Service{repo: repo, ids: ids, notifier: notifier, now: time.Now}
}

// Create validates and stores a new payment. Payments always start
// pending; only UpdateStatus moves them on.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Payment, error) {
	p := &Payment{
		ID:            uuid.NewString(),
		OrderID:       req.OrderID,
		UserID:        req.UserID,
		Amount:        req.Amount.Round(2),
		Currency:      req.Currency,
		Method:        req.Method,
		Card:          req.Card,
		MobileBanking: req.MobileBanking,
		BankTransfer:  req.BankTransfer,
		Fees:          req.Fees,
	}
	p.Fees.Normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	id, err := s.ids.Next(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "allocate payment id")
	}
	p.PaymentID = id

	now := s.now()
	p.CreatedAt = now
	p.transition(StatusPending, "Payment created", now)

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create payment")
	}
	return p, nil
}

// Get returns a payment by its public ID.
func (s *Service) Get(ctx context.Context, paymentID string) (*Payment, error) {
	return s.repo.GetByPaymentID(ctx, paymentID)
}

// UpdateStatus applies a status reported by the gateway or an admin.
// Order status is not touched.
func (s *Service) UpdateStatus(ctx context.Context, paymentID string, next Status, note string, gatewayResponse map[string]string) (*Payment, error) {
	if !next.Valid() {
		return nil, ErrInvalidStatus
	}
	p, err := s.repo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if len(gatewayResponse) > 0 {
		if p.GatewayResponse == nil {
			p.GatewayResponse = make(map[string]string, len(gatewayResponse))
		}
		maps.Copy(p.GatewayResponse, gatewayResponse)
	}
	return s.changeStatus(ctx, p, next, note)
}

func (s *Service) changeStatus(ctx context.Context, p *Payment, next Status, note string) (*Payment, error) {
	prev := p.Status
	if !prev.CanTransitionTo(next) {
		return nil, &InvalidTransitionError{From: prev, To: next}
	}

	p.transition(next, note, s.now())
	if err := s.repo.Update(ctx, p, prev); err != nil {
		return nil, errors.Wrap(err, "update payment")
	}

	if err := s.notifier.PaymentStatusChanged(ctx, p, prev); err != nil {
		zctx.From(ctx).Warn("Publish payment status change",
			zap.String("payment", p.PaymentID), zap.Error(err))
	}
	return p, nil
}

// ProcessRefund refunds amount from a captured payment. Refunds accumulate
// on the single refund record; the payment becomes refunded once nothing
// is left to refund and partially refunded otherwise.
func (s *Service) ProcessRefund(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) (*Payment, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidRefundAmount
	}
	p, err := s.repo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusCompleted && p.Status != StatusPartiallyRefunded {
		return nil, ErrNotRefundable
	}
	if amount.GreaterThan(p.RefundableAmount()) {
		return nil, ErrRefundExceedsRefundable
	}

	now := s.now()
	if p.Refund == nil {
		p.Refund = &Refund{Amount: decimal.Zero, RefundID: uuid.NewString()}
	}
	p.Refund.Amount = p.Refund.Amount.Add(amount).Round(2)
	p.Refund.Reason = reason
	p.Refund.ProcessedAt = now

	next := StatusPartiallyRefunded
	if p.RefundableAmount().IsZero() {
		next = StatusRefunded
	}
	return s.changeStatus(ctx, p, next, reason)
}

// UpdateFees replaces the fee breakdown and recomputes the total.
func (s *Service) UpdateFees(ctx context.Context, paymentID string, fees Fees) (*Payment, error) {
	p, err := s.repo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	fees.Normalize()
	p.Fees = fees
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, p, p.Status); err != nil {
		return nil, errors.Wrap(err, "update payment")
	}
	return p, nil
}
