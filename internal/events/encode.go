package events

import (
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/teacheasy/internal/domain/order"
	"github.com/xenking/teacheasy/internal/domain/payment"
)

func encodeOrderCreated(o *order.Order, at time.Time) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("event")
	e.Str(TopicOrderCreated)
	e.FieldStart("occurred_at")
	e.Str(at.UTC().Format(time.RFC3339))
	e.FieldStart("order_id")
	e.Str(o.ID)
	e.FieldStart("order_number")
	e.Str(o.Number)
	e.FieldStart("user_id")
	e.Str(o.UserID)
	e.FieldStart("payment_id")
	e.Str(o.PaymentID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("total")
	e.Str(o.Pricing.Total.StringFixed(2))
	e.FieldStart("items")
	e.ArrStart()
	for _, item := range o.Items {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Str(item.ProductID)
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		e.FieldStart("total")
		e.Str(item.Total.StringFixed(2))
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("coupons")
	e.ArrStart()
	for _, c := range o.Coupons {
		e.Str(c.Code)
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}

func encodeOrderStatus(o *order.Order, from order.Status, at time.Time) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("event")
	e.Str(TopicOrderStatusUpdated)
	e.FieldStart("occurred_at")
	e.Str(at.UTC().Format(time.RFC3339))
	e.FieldStart("order_number")
	e.Str(o.Number)
	e.FieldStart("user_id")
	e.Str(o.UserID)
	e.FieldStart("from")
	e.Str(string(from))
	e.FieldStart("to")
	e.Str(string(o.Status))
	if o.TrackingNumber != "" {
		e.FieldStart("tracking_number")
		e.Str(o.TrackingNumber)
	}
	e.ObjEnd()
	return e.Bytes()
}

func encodePaymentStatus(p *payment.Payment, from payment.Status, at time.Time) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("event")
	e.Str(TopicPaymentStatusUpdated)
	e.FieldStart("occurred_at")
	e.Str(at.UTC().Format(time.RFC3339))
	e.FieldStart("payment_id")
	e.Str(p.PaymentID)
	e.FieldStart("order_id")
	e.Str(p.OrderID)
	e.FieldStart("from")
	e.Str(string(from))
	e.FieldStart("to")
	e.Str(string(p.Status))
	e.FieldStart("amount")
	e.Str(p.Amount.StringFixed(2))
	e.FieldStart("refundable")
	e.Str(p.RefundableAmount().StringFixed(2))
	e.ObjEnd()
	return e.Bytes()
}
