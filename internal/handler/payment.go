package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/teacheasy/internal/domain/payment"
)

type paymentStatusRequest struct {
	Status          string            `json:"status" validate:"required"`
	Note            string            `json:"note" validate:"max=500"`
	GatewayResponse map[string]string `json:"gateway_response"`
}

// updatePaymentStatus is the gateway callback.
func (h *Handler) updatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req paymentStatusRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "update payment status", err)
		return
	}
	p, err := h.Payments.UpdateStatus(r.Context(), chi.URLParam(r, "paymentID"),
		payment.Status(req.Status), req.Note, req.GatewayResponse)
	if err != nil {
		fail(w, r, "update payment status", err)
		return
	}
	respond(w, http.StatusOK, "payment status updated", encodePayment(p))
}

func (h *Handler) adminGetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.Payments.Get(r.Context(), chi.URLParam(r, "paymentID"))
	if err != nil {
		fail(w, r, "get payment", err)
		return
	}
	respond(w, http.StatusOK, "payment retrieved", encodePayment(p))
}

type refundRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"required,max=500"`
}

func (h *Handler) refundPayment(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "refund payment", err)
		return
	}
	p, err := h.Payments.ProcessRefund(r.Context(), chi.URLParam(r, "paymentID"), req.Amount, req.Reason)
	if err != nil {
		fail(w, r, "refund payment", err)
		return
	}
	respond(w, http.StatusOK, "refund processed", encodePayment(p))
}

type feesRequest struct {
	ProcessingFee decimal.Decimal `json:"processing_fee"`
	GatewayFee    decimal.Decimal `json:"gateway_fee"`
	ServiceFee    decimal.Decimal `json:"service_fee"`
}

func (h *Handler) updatePaymentFees(w http.ResponseWriter, r *http.Request) {
	var req feesRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "update payment fees", err)
		return
	}
	p, err := h.Payments.UpdateFees(r.Context(), chi.URLParam(r, "paymentID"), payment.Fees{
		ProcessingFee: req.ProcessingFee,
		GatewayFee:    req.GatewayFee,
		ServiceFee:    req.ServiceFee,
	})
	if err != nil {
		fail(w, r, "update payment fees", err)
		return
	}
	respond(w, http.StatusOK, "payment fees updated", encodePayment(p))
}
