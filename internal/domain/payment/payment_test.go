package payment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/teacheasy/pkg/validation"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func validCard() *CardDetails {
	return &CardDetails{Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030, HolderName: "R. Karim"}
}

func TestFees_Normalize(t *testing.T) {
	f := Fees{ProcessingFee: d("1.25"), GatewayFee: d("2.50"), ServiceFee: d("0.75"), TotalFees: d("999")}
	f.Normalize()
	assert.True(t, d("4.5").Equal(f.TotalFees), f.TotalFees.String())

	var zero Fees
	zero.Normalize()
	assert.True(t, zero.TotalFees.IsZero())
}

func TestPayment_Validate(t *testing.T) {
	tests := []struct {
		name       string
		payment    Payment
		wantFields []string
	}{
		{
			name:    "card with details",
			payment: Payment{Amount: d("100"), Currency: "BDT", Method: MethodCard, Card: validCard()},
		},
		{
			name:    "cash on delivery without details",
			payment: Payment{Amount: d("100"), Currency: "BDT", Method: MethodCashOnDelivery},
		},
		{
			name:       "card missing details",
			payment:    Payment{Amount: d("100"), Currency: "BDT", Method: MethodCard},
			wantFields: []string{"card"},
		},
		{
			name: "two detail blocks",
			payment: Payment{
				Amount:        d("100"),
				Currency:      "BDT",
				Method:        MethodCard,
				Card:          validCard(),
				MobileBanking: &MobileBankingDetails{Provider: "bkash", AccountNumber: "017", TransactionID: "T1"},
			},
			wantFields: []string{"mobile_banking"},
		},
		{
			name: "cash on delivery with bank details",
			payment: Payment{
				Amount:       d("100"),
				Currency:     "BDT",
				Method:       MethodCashOnDelivery,
				BankTransfer: &BankTransferDetails{BankName: "B", AccountName: "A", AccountNumber: "1", ReferenceNumber: "R"},
			},
			wantFields: []string{"bank_transfer"},
		},
		{
			name: "invalid card details",
			payment: Payment{
				Amount:   d("100"),
				Currency: "BDT",
				Method:   MethodCard,
				Card:     &CardDetails{Brand: "visa", Last4: "42", ExpMonth: 13, ExpYear: 2030, HolderName: "X"},
			},
			wantFields: []string{"card.last4", "card.exp_month"},
		},
		{
			name:       "negative amount and unknown method",
			payment:    Payment{Amount: d("-1"), Currency: "BDT", Method: "barter"},
			wantFields: []string{"amount", "method"},
		},
		{
			name: "negative fee",
			payment: Payment{
				Amount:   d("100"),
				Currency: "BDT",
				Method:   MethodCashOnDelivery,
				Fees:     Fees{GatewayFee: d("-1")},
			},
			wantFields: []string{"fees.gateway_fee"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payment.Validate()
			if len(tt.wantFields) == 0 {
				require.NoError(t, err)
				return
			}
			fields, ok := validation.As(err)
			require.True(t, ok, "got %v", err)
			for _, f := range tt.wantFields {
				assert.Contains(t, fields, f)
			}
		})
	}
}

func TestValidateInput(t *testing.T) {
	mobile := &MobileBankingDetails{Provider: "nagad", AccountNumber: "01800000000", TransactionID: "TX1"}

	tests := []struct {
		name      string
		method    Method
		card      *CardDetails
		mobile    *MobileBankingDetails
		wantField string
	}{
		{name: "card", method: MethodCard, card: validCard()},
		{name: "mobile banking", method: MethodMobileBanking, mobile: mobile},
		{name: "cash on delivery", method: MethodCashOnDelivery},
		{name: "card block missing", method: MethodCard, wantField: "card"},
		{name: "card block invalid", method: MethodCard, card: &CardDetails{Brand: "visa", Last4: "x", ExpMonth: 1, ExpYear: 2030, HolderName: "A"}, wantField: "card.last4"},
		{name: "block for another method", method: MethodCashOnDelivery, mobile: mobile, wantField: "mobile_banking"},
		{name: "unknown method", method: "cheque", wantField: "method"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInput(tt.method, tt.card, tt.mobile, nil)
			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}
			fields, ok := validation.As(err)
			require.True(t, ok, "got %v", err)
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

func TestPayment_RefundableAmount(t *testing.T) {
	p := &Payment{Amount: d("500")}
	assert.True(t, d("500").Equal(p.RefundableAmount()))

	p.Refund = &Refund{Amount: d("120")}
	assert.True(t, d("380").Equal(p.RefundableAmount()))

	p.Refund.Amount = d("600")
	assert.True(t, p.RefundableAmount().IsZero())
}

func TestStatus_Transitions(t *testing.T) {
	allowed := map[Status][]Status{
		StatusPending:           {StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled},
		StatusProcessing:        {StatusCompleted, StatusFailed, StatusCancelled},
		StatusCompleted:         {StatusRefunded, StatusPartiallyRefunded, StatusDisputed},
		StatusPartiallyRefunded: {StatusPartiallyRefunded, StatusRefunded, StatusDisputed},
		StatusDisputed:          {StatusCompleted, StatusChargeback, StatusRefunded},
	}
	for _, from := range Statuses {
		for _, to := range Statuses {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
	for _, s := range []Status{StatusFailed, StatusCancelled, StatusRefunded, StatusChargeback} {
		assert.True(t, s.IsTerminal(), s)
	}
	assert.False(t, Status("lost").Valid())
}
