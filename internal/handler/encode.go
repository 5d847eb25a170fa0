package handler

import (
	"strings"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/teacheasy/internal/domain/address"
	"github.com/xenking/teacheasy/internal/domain/cart"
	"github.com/xenking/teacheasy/internal/domain/category"
	"github.com/xenking/teacheasy/internal/domain/coupon"
	"github.com/xenking/teacheasy/internal/domain/order"
	"github.com/xenking/teacheasy/internal/domain/payment"
	"github.com/xenking/teacheasy/internal/domain/product"
)

// Money is encoded as a string with two decimals so clients never see
// float rounding.
func money(e *jx.Encoder, d decimal.Decimal) {
	e.Str(d.StringFixed(2))
}

func timestamp(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func optTimestamp(e *jx.Encoder, name string, t *time.Time) {
	if t == nil {
		return
	}
	e.FieldStart(name)
	timestamp(e, *t)
}

func strs(e *jx.Encoder, values []string) {
	e.ArrStart()
	for _, v := range values {
		e.Str(v)
	}
	e.ArrEnd()
}

// imageURL prepends the configured base URL to relative image paths.
func (h *Handler) imageURL(path string) string {
	if h.imageBaseURL == "" || path == "" || strings.Contains(path, "://") {
		return path
	}
	return strings.TrimRight(h.imageBaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func (h *Handler) encodeProduct(e *jx.Encoder, p *product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("slug")
	e.Str(p.Slug)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("price")
	money(e, p.Price)
	if d := p.Discount(); d.IsPositive() {
		e.FieldStart("discount_price")
		money(e, p.DiscountPrice)
	}
	e.FieldStart("category_id")
	e.Str(p.CategoryID)
	e.FieldStart("images")
	e.ArrStart()
	for _, img := range p.Images {
		e.Str(h.imageURL(img))
	}
	e.ArrEnd()
	e.FieldStart("stock")
	e.Int(p.Stock)
	e.FieldStart("in_stock")
	e.Bool(p.Stock > 0)
	e.FieldStart("is_active")
	e.Bool(p.IsActive)
	e.FieldStart("grade_levels")
	strs(e, p.GradeLevels)
	e.FieldStart("tags")
	strs(e, p.Tags)
	e.FieldStart("created_at")
	timestamp(e, p.CreatedAt)
	e.FieldStart("updated_at")
	timestamp(e, p.UpdatedAt)
	e.ObjEnd()
}

func (h *Handler) encodeProducts(products []product.Product) encodeFunc {
	return func(e *jx.Encoder) {
		e.ArrStart()
		for i := range products {
			h.encodeProduct(e, &products[i])
		}
		e.ArrEnd()
	}
}

func (h *Handler) encodeSnapshot(e *jx.Encoder, s product.Snapshot) {
	e.ObjStart()
	e.FieldStart("name")
	e.Str(s.Name)
	e.FieldStart("slug")
	e.Str(s.Slug)
	e.FieldStart("image")
	e.Str(h.imageURL(s.Image))
	e.FieldStart("price")
	money(e, s.Price)
	e.FieldStart("discount")
	money(e, s.Discount)
	e.FieldStart("unit_price")
	money(e, s.UnitPrice())
	e.ObjEnd()
}

// paged wraps a listing with its paging metadata.
func paged(page, pageSize, total int, items encodeFunc) encodeFunc {
	return func(e *jx.Encoder) {
		pages := 0
		if pageSize > 0 {
			pages = (total + pageSize - 1) / pageSize
		}
		e.ObjStart()
		e.FieldStart("items")
		items(e)
		e.FieldStart("pagination")
		e.ObjStart()
		e.FieldStart("page")
		e.Int(page)
		e.FieldStart("page_size")
		e.Int(pageSize)
		e.FieldStart("total")
		e.Int(total)
		e.FieldStart("pages")
		e.Int(pages)
		e.ObjEnd()
		e.ObjEnd()
	}
}

func encodeCategory(e *jx.Encoder, c *category.Category) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(c.ID)
	e.FieldStart("name")
	e.Str(c.Name)
	e.FieldStart("slug")
	e.Str(c.Slug)
	e.FieldStart("description")
	e.Str(c.Description)
	e.ObjEnd()
}

func encodeAddress(e *jx.Encoder, a *address.Address) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(a.ID)
	e.FieldStart("label")
	e.Str(a.Label)
	encodeAddressFields(e, a.Snapshot())
	e.FieldStart("is_default")
	e.Bool(a.IsDefault)
	e.FieldStart("created_at")
	timestamp(e, a.CreatedAt)
	e.FieldStart("updated_at")
	timestamp(e, a.UpdatedAt)
	e.ObjEnd()
}

func encodeAddressSnapshot(e *jx.Encoder, s address.Snapshot) {
	e.ObjStart()
	if s.Label != "" {
		e.FieldStart("label")
		e.Str(s.Label)
	}
	encodeAddressFields(e, s)
	e.ObjEnd()
}

func encodeAddressFields(e *jx.Encoder, s address.Snapshot) {
	e.FieldStart("full_name")
	e.Str(s.FullName)
	e.FieldStart("phone")
	e.Str(s.Phone)
	e.FieldStart("email")
	e.Str(s.Email)
	e.FieldStart("line1")
	e.Str(s.Line1)
	e.FieldStart("line2")
	e.Str(s.Line2)
	e.FieldStart("division")
	e.Str(s.Division)
	e.FieldStart("district")
	e.Str(s.District)
	e.FieldStart("city")
	e.Str(s.City)
	e.FieldStart("postal_code")
	e.Str(s.PostalCode)
}

func encodeDiscount(e *jx.Encoder, d coupon.Discount) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(d.Code)
	e.FieldStart("type")
	e.Str(string(d.Type))
	e.FieldStart("discount")
	money(e, d.Amount)
	e.FieldStart("free_shipping")
	e.Bool(d.FreeShipping)
	e.FieldStart("stackable")
	e.Bool(d.Stackable)
	e.FieldStart("description")
	e.Str(d.Description)
	e.ObjEnd()
}

func (h *Handler) encodeCart(c *cart.Cart, suggestions []coupon.Discount) encodeFunc {
	return func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("items")
		e.ArrStart()
		for _, item := range c.Items {
			e.ObjStart()
			e.FieldStart("product_id")
			e.Str(item.ProductID)
			e.FieldStart("product")
			h.encodeSnapshot(e, item.Snapshot)
			e.FieldStart("quantity")
			e.Int(item.Quantity)
			e.FieldStart("line_total")
			money(e, item.LineTotal())
			e.FieldStart("added_at")
			timestamp(e, item.AddedAt)
			e.ObjEnd()
		}
		e.ArrEnd()

		e.FieldStart("coupons")
		e.ArrStart()
		for _, ac := range c.Coupons {
			e.ObjStart()
			e.FieldStart("code")
			e.Str(ac.Code)
			e.FieldStart("type")
			e.Str(string(ac.Type))
			e.FieldStart("discount")
			money(e, ac.Discount)
			e.FieldStart("free_shipping")
			e.Bool(ac.FreeShipping)
			e.FieldStart("description")
			e.Str(ac.Description)
			e.ObjEnd()
		}
		e.ArrEnd()

		e.FieldStart("item_count")
		e.Int(c.ItemCount())
		e.FieldStart("subtotal")
		money(e, c.Subtotal())
		e.FieldStart("item_savings")
		money(e, c.ItemSavings())
		e.FieldStart("coupon_discount")
		money(e, c.CouponDiscount())
		e.FieldStart("total_savings")
		money(e, c.TotalSavings())
		e.FieldStart("cart_value")
		money(e, c.CartValue())
		e.FieldStart("free_shipping")
		e.Bool(c.FreeShipping())

		if len(suggestions) > 0 {
			e.FieldStart("suggested_coupons")
			e.ArrStart()
			for _, d := range suggestions {
				encodeDiscount(e, d)
			}
			e.ArrEnd()
		}
		e.ObjEnd()
	}
}

func encodePricing(e *jx.Encoder, p order.Pricing) {
	e.ObjStart()
	e.FieldStart("subtotal")
	money(e, p.Subtotal)
	e.FieldStart("discount")
	money(e, p.Discount)
	e.FieldStart("shipping")
	money(e, p.Shipping)
	e.FieldStart("tax")
	money(e, p.Tax)
	e.FieldStart("total")
	money(e, p.Total)
	e.ObjEnd()
}

func (h *Handler) encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("number")
	e.Str(o.Number)
	e.FieldStart("user_id")
	e.Str(o.UserID)
	e.FieldStart("status")
	e.Str(string(o.Status))

	e.FieldStart("items")
	e.ArrStart()
	for _, item := range o.Items {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Str(item.ProductID)
		e.FieldStart("product")
		h.encodeSnapshot(e, item.Snapshot)
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		e.FieldStart("total")
		money(e, item.Total)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("coupons")
	e.ArrStart()
	for _, c := range o.Coupons {
		e.ObjStart()
		e.FieldStart("code")
		e.Str(c.Code)
		e.FieldStart("discount")
		money(e, c.Discount)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("pricing")
	encodePricing(e, o.Pricing)
	e.FieldStart("shipping_address")
	encodeAddressSnapshot(e, o.ShippingAddress)
	e.FieldStart("billing_address")
	encodeAddressSnapshot(e, o.BillingAddress)

	e.FieldStart("status_history")
	e.ArrStart()
	for _, ch := range o.StatusHistory {
		e.ObjStart()
		e.FieldStart("status")
		e.Str(string(ch.Status))
		e.FieldStart("note")
		e.Str(ch.Note)
		e.FieldStart("updated_at")
		timestamp(e, ch.UpdatedAt)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("payment_id")
	e.Str(o.PaymentID)
	e.FieldStart("payment_method")
	e.Str(o.PaymentMethod)
	if o.TrackingNumber != "" {
		e.FieldStart("tracking_number")
		e.Str(o.TrackingNumber)
	}
	optTimestamp(e, "estimated_delivery", o.EstimatedDelivery)
	optTimestamp(e, "shipped_at", o.ShippedAt)
	optTimestamp(e, "actual_delivery_date", o.ActualDeliveryDate)
	if o.CancelReason != "" {
		e.FieldStart("cancel_reason")
		e.Str(o.CancelReason)
	}
	e.FieldStart("can_cancel")
	e.Bool(o.CanBeCancelled())
	e.FieldStart("return_requested")
	e.Bool(o.ReturnRequested)
	if o.ReturnReason != "" {
		e.FieldStart("return_reason")
		e.Str(o.ReturnReason)
	}
	e.FieldStart("refund_requested")
	e.Bool(o.RefundRequested)
	e.FieldStart("notes")
	e.Str(o.Notes)
	e.FieldStart("created_at")
	timestamp(e, o.CreatedAt)
	e.FieldStart("updated_at")
	timestamp(e, o.UpdatedAt)
	e.ObjEnd()
}

func (h *Handler) encodeOrders(orders []order.Order) encodeFunc {
	return func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			h.encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
	}
}

func encodeStats(st *order.Stats) encodeFunc {
	return func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("total_orders")
		e.Int(st.TotalOrders)
		e.FieldStart("total_revenue")
		money(e, st.TotalRevenue)
		e.FieldStart("by_status")
		e.ArrStart()
		for _, row := range st.ByStatus {
			e.ObjStart()
			e.FieldStart("status")
			e.Str(string(row.Status))
			e.FieldStart("count")
			e.Int(row.Count)
			e.FieldStart("revenue")
			money(e, row.Revenue)
			e.ObjEnd()
		}
		e.ArrEnd()
		e.ObjEnd()
	}
}

func encodePayment(p *payment.Payment) encodeFunc {
	return func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("payment_id")
		e.Str(p.PaymentID)
		e.FieldStart("order_id")
		e.Str(p.OrderID)
		e.FieldStart("amount")
		money(e, p.Amount)
		e.FieldStart("currency")
		e.Str(p.Currency)
		e.FieldStart("method")
		e.Str(string(p.Method))
		if p.Card != nil {
			e.FieldStart("card")
			e.ObjStart()
			e.FieldStart("brand")
			e.Str(p.Card.Brand)
			e.FieldStart("last4")
			e.Str(p.Card.Last4)
			e.ObjEnd()
		}
		e.FieldStart("status")
		e.Str(string(p.Status))

		e.FieldStart("fees")
		e.ObjStart()
		e.FieldStart("processing_fee")
		money(e, p.Fees.ProcessingFee)
		e.FieldStart("gateway_fee")
		money(e, p.Fees.GatewayFee)
		e.FieldStart("service_fee")
		money(e, p.Fees.ServiceFee)
		e.FieldStart("total_fees")
		money(e, p.Fees.TotalFees)
		e.ObjEnd()

		if p.Refund != nil {
			e.FieldStart("refund")
			e.ObjStart()
			e.FieldStart("amount")
			money(e, p.Refund.Amount)
			e.FieldStart("reason")
			e.Str(p.Refund.Reason)
			e.FieldStart("refund_id")
			e.Str(p.Refund.RefundID)
			e.FieldStart("processed_at")
			timestamp(e, p.Refund.ProcessedAt)
			e.ObjEnd()
		}
		e.FieldStart("refundable_amount")
		money(e, p.RefundableAmount())
		optTimestamp(e, "captured_at", p.CapturedAt)
		optTimestamp(e, "failed_at", p.FailedAt)
		optTimestamp(e, "refunded_at", p.RefundedAt)
		e.FieldStart("created_at")
		timestamp(e, p.CreatedAt)
		e.ObjEnd()
	}
}

// encodeCoupon writes a coupon. Admin views include targeting and usage;
// public views only what a shopper needs.
func encodeCoupon(e *jx.Encoder, c *coupon.Coupon, admin bool) {
	e.ObjStart()
	if admin {
		e.FieldStart("id")
		e.Str(c.ID)
	}
	e.FieldStart("code")
	e.Str(c.Code)
	e.FieldStart("description")
	e.Str(c.Description)
	e.FieldStart("type")
	e.Str(string(c.Type))
	e.FieldStart("value")
	money(e, c.Value)
	e.FieldStart("min_order_amount")
	money(e, c.MinOrderAmount)
	if c.MaxDiscount.IsPositive() {
		e.FieldStart("max_discount")
		money(e, c.MaxDiscount)
	}
	e.FieldStart("start_date")
	timestamp(e, c.StartDate)
	e.FieldStart("end_date")
	timestamp(e, c.EndDate)
	e.FieldStart("first_order_only")
	e.Bool(c.FirstOrderOnly)
	e.FieldStart("stackable")
	e.Bool(c.IsStackable)

	if admin {
		e.FieldStart("usage_limit")
		if c.UsageLimit != nil {
			e.Int(*c.UsageLimit)
		} else {
			e.Null()
		}
		e.FieldStart("usage_limit_per_user")
		if c.UsageLimitPerUser != nil {
			e.Int(*c.UsageLimitPerUser)
		} else {
			e.Null()
		}
		e.FieldStart("current_usage")
		e.Int(c.CurrentUsage)
		e.FieldStart("remaining_usage")
		if left := c.RemainingUsage(); left != nil {
			e.Int(*left)
		} else {
			e.Null()
		}
		e.FieldStart("usage_percentage")
		money(e, c.UsagePercentage())
		for _, list := range []struct {
			name   string
			values []string
		}{
			{"applicable_products", c.ApplicableProducts},
			{"excluded_products", c.ExcludedProducts},
			{"applicable_categories", c.ApplicableCategories},
			{"excluded_categories", c.ExcludedCategories},
			{"applicable_users", c.ApplicableUsers},
			{"excluded_users", c.ExcludedUsers},
			{"applicable_roles", c.ApplicableRoles},
		} {
			e.FieldStart(list.name)
			strs(e, list.values)
		}
		e.FieldStart("is_active")
		e.Bool(c.IsActive)
		e.FieldStart("is_public")
		e.Bool(c.IsPublic)
		e.FieldStart("is_auto_apply")
		e.Bool(c.IsAutoApply)
		e.FieldStart("created_at")
		timestamp(e, c.CreatedAt)
		e.FieldStart("updated_at")
		timestamp(e, c.UpdatedAt)
	}
	e.ObjEnd()
}

func encodeCoupons(coupons []coupon.Coupon, admin bool) encodeFunc {
	return func(e *jx.Encoder) {
		e.ArrStart()
		for i := range coupons {
			encodeCoupon(e, &coupons[i], admin)
		}
		e.ArrEnd()
	}
}
