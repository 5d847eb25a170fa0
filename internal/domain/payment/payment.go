// Package payment tracks payments, their gateway status and refunds.
package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/teacheasy/pkg/validation"
)

// Method is how the customer pays.
type Method string

const (
	MethodCard           Method = "card"
	MethodMobileBanking  Method = "mobile_banking"
	MethodBankTransfer   Method = "bank_transfer"
	MethodCashOnDelivery Method = "cash_on_delivery"
)

// Valid reports whether m is a supported method.
func (m Method) Valid() bool {
	switch m {
	case MethodCard, MethodMobileBanking, MethodBankTransfer, MethodCashOnDelivery:
		return true
	}
	return false
}

var (
	// ErrNotFound is returned when a payment does not exist.
	ErrNotFound = errors.New("payment not found")
	// ErrConflict is returned when the payment changed between read and write.
	ErrConflict = errors.New("payment was modified concurrently")
	// ErrNotRefundable is returned when refunding a payment that was never captured.
	ErrNotRefundable = errors.New("payment cannot be refunded in its current status")
	// ErrInvalidRefundAmount is returned for zero or negative refunds.
	ErrInvalidRefundAmount = errors.New("refund amount must be greater than 0")
	// ErrRefundExceedsRefundable is returned when a refund is larger than what is left.
	ErrRefundExceedsRefundable = errors.New("refund amount exceeds refundable amount")
	// ErrInvalidMethod is returned for unsupported payment methods.
	ErrInvalidMethod = errors.New("unsupported payment method")
	// ErrInvalidStatus is returned for unknown statuses.
	ErrInvalidStatus = errors.New("unknown payment status")
)

// CardDetails holds the non-sensitive card data kept after authorization.
type CardDetails struct {
	Brand      string `json:"brand" validate:"required"`
	Last4      string `json:"last4" validate:"required,len=4,numeric"`
	ExpMonth   int    `json:"exp_month" validate:"gte=1,lte=12"`
	ExpYear    int    `json:"exp_year" validate:"gte=2000"`
	HolderName string `json:"holder_name" validate:"required"`
}

// MobileBankingDetails identifies a mobile wallet transfer.
type MobileBankingDetails struct {
	Provider      string `json:"provider" validate:"required"`
	AccountNumber string `json:"account_number" validate:"required"`
	TransactionID string `json:"transaction_id" validate:"required"`
}

// BankTransferDetails identifies a bank transfer.
type BankTransferDetails struct {
	BankName        string `json:"bank_name" validate:"required"`
	AccountName     string `json:"account_name" validate:"required"`
	AccountNumber   string `json:"account_number" validate:"required"`
	ReferenceNumber string `json:"reference_number" validate:"required"`
}

// Fees charged on a payment. TotalFees always equals the sum of the others.
type Fees struct {
	ProcessingFee decimal.Decimal `json:"processing_fee"`
	GatewayFee    decimal.Decimal `json:"gateway_fee"`
	ServiceFee    decimal.Decimal `json:"service_fee"`
	TotalFees     decimal.Decimal `json:"total_fees"`
}

// Normalize recomputes TotalFees.
func (f *Fees) Normalize() {
	f.TotalFees = f.ProcessingFee.Add(f.GatewayFee).Add(f.ServiceFee)
}

// Refund accumulates every refund issued against a payment.
type Refund struct {
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason"`
	RefundID    string          `json:"refund_id"`
	ProcessedAt time.Time       `json:"processed_at"`
}

// StatusChange is one entry of the append-only status history.
type StatusChange struct {
	Status    Status    `json:"status"`
	Note      string    `json:"note,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Payment is a payment for one order.
type Payment struct {
	ID              string
	PaymentID       string
	OrderID         string
	UserID          string
	Amount          decimal.Decimal
	Currency        string
	Method          Method
	Card            *CardDetails
	MobileBanking   *MobileBankingDetails
	BankTransfer    *BankTransferDetails
	Status          Status
	StatusHistory   []StatusChange
	Fees            Fees
	Refund          *Refund
	GatewayResponse map[string]string
	CapturedAt      *time.Time
	FailedAt        *time.Time
	RefundedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RefundableAmount is the captured amount not yet refunded.
func (p *Payment) RefundableAmount() decimal.Decimal {
	if p.Refund == nil {
		return p.Amount
	}
	left := p.Amount.Sub(p.Refund.Amount)
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}

// Validate checks the amount, the method and that exactly the detail
// block matching the method is present.
func (p *Payment) Validate() error {
	errs := validation.Errors{}
	if p.Amount.IsNegative() {
		errs.Add("amount", "must not be negative")
	}
	if p.Currency == "" {
		errs.Add("currency", "is required")
	}
	if err := checkDetails(errs, p.Method, p.Card, p.MobileBanking, p.BankTransfer); err != nil {
		return err
	}
	if !p.Method.Valid() {
		return errs.Err()
	}

	for name, fee := range map[string]decimal.Decimal{
		"fees.processing_fee": p.Fees.ProcessingFee,
		"fees.gateway_fee":    p.Fees.GatewayFee,
		"fees.service_fee":    p.Fees.ServiceFee,
	} {
		if fee.IsNegative() {
			errs.Add(name, "must not be negative")
		}
	}
	return errs.Err()
}

// ValidateInput checks the method and its detail block the way Validate
// does, before any amount or payment record exists.
func ValidateInput(method Method, card *CardDetails, mb *MobileBankingDetails, bt *BankTransferDetails) error {
	errs := validation.Errors{}
	if err := checkDetails(errs, method, card, mb, bt); err != nil {
		return err
	}
	return errs.Err()
}

func checkDetails(errs validation.Errors, method Method, card *CardDetails, mb *MobileBankingDetails, bt *BankTransferDetails) error {
	if !method.Valid() {
		errs.Add("method", "must be one of: card mobile_banking bank_transfer cash_on_delivery")
		return nil
	}

	blocks := map[string]bool{
		"card":           card != nil,
		"mobile_banking": mb != nil,
		"bank_transfer":  bt != nil,
	}
	for name, present := range blocks {
		if present && name != string(method) {
			errs.Add(name, "must be empty for method "+string(method))
		}
	}
	if method == MethodCashOnDelivery {
		return nil
	}
	if !blocks[string(method)] {
		errs.Add(string(method), "is required")
		return nil
	}

	var details any
	switch method {
	case MethodCard:
		details = card
	case MethodMobileBanking:
		details = mb
	case MethodBankTransfer:
		details = bt
	}
	err := validation.Struct(details)
	if err == nil {
		return nil
	}
	fields, ok := validation.As(err)
	if !ok {
		return err
	}
	for f, msg := range fields {
		errs.Add(string(method)+"."+f, msg)
	}
	return nil
}

// stamps maps statuses to the timestamp they set.
var stamps = map[Status]func(p *Payment, at time.Time){
	StatusCompleted: func(p *Payment, at time.Time) { p.CapturedAt = &at },
	StatusFailed:    func(p *Payment, at time.Time) { p.FailedAt = &at },
	StatusRefunded:  func(p *Payment, at time.Time) { p.RefundedAt = &at },
}

func (p *Payment) transition(next Status, note string, now time.Time) {
	p.Status = next
	p.StatusHistory = append(p.StatusHistory, StatusChange{Status: next, Note: note, UpdatedAt: now})
	if stamp, ok := stamps[next]; ok {
		stamp(p, now)
	}
	p.UpdatedAt = now
}

// Repository defines persistence operations for payments.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByPaymentID(ctx context.Context, paymentID string) (*Payment, error)
	// Update writes p only if the stored status still equals prev and
	// returns ErrConflict otherwise.
	Update(ctx context.Context, p *Payment, prev Status) error
}
