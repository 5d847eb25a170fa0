package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/teacheasy/internal/domain/checkout"
	"github.com/xenking/teacheasy/internal/domain/order"
	"github.com/xenking/teacheasy/internal/domain/payment"
)

// paymentInput carries no status: checkout payments start pending and only
// the gateway callback moves them on.
type paymentInput struct {
	Method        string                        `json:"method" validate:"required"`
	Card          *payment.CardDetails          `json:"card" validate:"omitempty"`
	MobileBanking *payment.MobileBankingDetails `json:"mobile_banking" validate:"omitempty"`
	BankTransfer  *payment.BankTransferDetails  `json:"bank_transfer" validate:"omitempty"`
}

type checkoutRequest struct {
	ShippingAddressID string       `json:"shipping_address_id" validate:"required"`
	BillingAddressID  string       `json:"billing_address_id"`
	Payment           paymentInput `json:"payment"`
	Notes             string       `json:"notes" validate:"max=500"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "checkout", err)
		return
	}
	cust, err := h.customer(r)
	if err != nil {
		fail(w, r, "checkout", err)
		return
	}

	res, err := h.Checkout.Checkout(r.Context(), checkout.Request{
		Customer:          cust,
		BillingAddressID:  req.BillingAddressID,
		ShippingAddressID: req.ShippingAddressID,
		Payment: checkout.PaymentInput{
			Method:        payment.Method(req.Payment.Method),
			Card:          req.Payment.Card,
			MobileBanking: req.Payment.MobileBanking,
			BankTransfer:  req.Payment.BankTransfer,
		},
		Notes: req.Notes,
	})
	if err != nil {
		fail(w, r, "checkout", err)
		return
	}

	pay := encodePayment(res.Payment)
	respond(w, http.StatusCreated, "order placed", func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("order")
		h.encodeOrder(e, res.Order)
		e.FieldStart("payment")
		pay(e)
		e.ObjEnd()
	})
}

func pageParams(r *http.Request) (order.Page, error) {
	var (
		p   order.Page
		err error
	)
	if p.Page, err = queryInt(r, "page"); err != nil {
		return p, err
	}
	if p.PageSize, err = queryInt(r, "page_size"); err != nil {
		return p, err
	}
	p.Normalize()
	return p, nil
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	p, err := pageParams(r)
	if err != nil {
		fail(w, r, "list orders", err)
		return
	}
	orders, total, err := h.Orders.ListForUser(r.Context(), currentUser(r).ID, p)
	if err != nil {
		fail(w, r, "list orders", err)
		return
	}
	respond(w, http.StatusOK, "orders retrieved", paged(p.Page, p.PageSize, total, h.encodeOrders(orders)))
}

func (h *Handler) writeOrder(w http.ResponseWriter, status int, message string, o *order.Order) {
	respond(w, status, message, func(e *jx.Encoder) {
		h.encodeOrder(e, o)
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Get(r.Context(), currentUser(r).ID, chi.URLParam(r, "number"))
	if err != nil {
		fail(w, r, "get order", err)
		return
	}
	h.writeOrder(w, http.StatusOK, "order retrieved", o)
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "cancel order", err)
		return
	}
	o, err := h.Orders.Cancel(r.Context(), currentUser(r).ID, chi.URLParam(r, "number"), req.Reason)
	if err != nil {
		fail(w, r, "cancel order", err)
		return
	}
	h.writeOrder(w, http.StatusOK, "order cancelled", o)
}

func (h *Handler) requestReturn(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "request return", err)
		return
	}
	o, err := h.Orders.RequestReturn(r.Context(), currentUser(r).ID, chi.URLParam(r, "number"), req.Reason)
	if err != nil {
		fail(w, r, "request return", err)
		return
	}
	h.writeOrder(w, http.StatusOK, "return requested", o)
}

func (h *Handler) adminListOrders(w http.ResponseWriter, r *http.Request) {
	p, err := pageParams(r)
	if err != nil {
		fail(w, r, "list orders", err)
		return
	}
	f := order.ListFilter{
		Status: order.Status(r.URL.Query().Get("status")),
		UserID: r.URL.Query().Get("user_id"),
		Page:   p,
	}
	orders, total, err := h.Orders.List(r.Context(), f)
	if err != nil {
		fail(w, r, "list orders", err)
		return
	}
	respond(w, http.StatusOK, "orders retrieved", paged(p.Page, p.PageSize, total, h.encodeOrders(orders)))
}

func (h *Handler) adminGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Find(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		fail(w, r, "get order", err)
		return
	}
	h.writeOrder(w, http.StatusOK, "order retrieved", o)
}

type orderStatusRequest struct {
	Status            string     `json:"status" validate:"required"`
	Note              string     `json:"note" validate:"max=500"`
	TrackingNumber    string     `json:"tracking_number" validate:"max=100"`
	EstimatedDelivery *time.Time `json:"estimated_delivery"`
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req orderStatusRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "update order status", err)
		return
	}
	o, err := h.Orders.UpdateStatus(r.Context(), chi.URLParam(r, "number"), order.Status(req.Status), order.UpdateOptions{
		Note:              req.Note,
		TrackingNumber:    req.TrackingNumber,
		EstimatedDelivery: req.EstimatedDelivery,
	})
	if err != nil {
		fail(w, r, "update order status", err)
		return
	}
	h.writeOrder(w, http.StatusOK, "order status updated", o)
}

func (h *Handler) orderStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Orders.Stats(r.Context())
	if err != nil {
		fail(w, r, "get stats", err)
		return
	}
	respond(w, http.StatusOK, "stats retrieved", encodeStats(st))
}
