package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/teacheasy/internal/domain/coupon"
)

func (h *Handler) listPublicCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.Coupons.ListPublic(r.Context())
	if err != nil {
		fail(w, r, "list coupons", err)
		return
	}
	respond(w, http.StatusOK, "coupons retrieved", encodeCoupons(coupons, false))
}

func (h *Handler) adminListCoupons(w http.ResponseWriter, r *http.Request) {
	f := coupon.ListFilter{Search: r.URL.Query().Get("search")}
	if raw := r.URL.Query().Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			fail(w, r, "list coupons", badRequest("active must be a boolean"))
			return
		}
		f.Active = &active
	}
	var err error
	if f.Page, err = queryInt(r, "page"); err != nil {
		fail(w, r, "list coupons", err)
		return
	}
	if f.PageSize, err = queryInt(r, "page_size"); err != nil {
		fail(w, r, "list coupons", err)
		return
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}

	coupons, total, err := h.Coupons.List(r.Context(), f)
	if err != nil {
		fail(w, r, "list coupons", err)
		return
	}
	respond(w, http.StatusOK, "coupons retrieved", paged(f.Page, f.PageSize, total, encodeCoupons(coupons, true)))
}

func (h *Handler) adminGetCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.Coupons.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, "get coupon", err)
		return
	}
	respond(w, http.StatusOK, "coupon retrieved", func(e *jx.Encoder) {
		encodeCoupon(e, c, true)
	})
}

type couponRequest struct {
	Code                 string          `json:"code" validate:"required,max=50"`
	Description          string          `json:"description" validate:"max=500"`
	Type                 string          `json:"type" validate:"required,oneof=percentage fixed_amount free_shipping"`
	Value                decimal.Decimal `json:"value"`
	MinOrderAmount       decimal.Decimal `json:"min_order_amount"`
	MaxDiscount          decimal.Decimal `json:"max_discount"`
	StartDate            time.Time       `json:"start_date" validate:"required"`
	EndDate              time.Time       `json:"end_date" validate:"required"`
	UsageLimit           *int            `json:"usage_limit"`
	UsageLimitPerUser    *int            `json:"usage_limit_per_user"`
	ApplicableProducts   []string        `json:"applicable_products"`
	ExcludedProducts     []string        `json:"excluded_products"`
	ApplicableCategories []string        `json:"applicable_categories"`
	ExcludedCategories   []string        `json:"excluded_categories"`
	ApplicableUsers      []string        `json:"applicable_users"`
	ExcludedUsers        []string        `json:"excluded_users"`
	ApplicableRoles      []string        `json:"applicable_roles"`
	IsActive             *bool           `json:"is_active"`
	IsPublic             bool            `json:"is_public"`
	IsAutoApply          bool            `json:"is_auto_apply"`
	IsStackable          bool            `json:"is_stackable"`
	FirstOrderOnly       bool            `json:"first_order_only"`
}

func (req *couponRequest) coupon(id string) *coupon.Coupon {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return &coupon.Coupon{
		ID:                   id,
		Code:                 req.Code,
		Description:          req.Description,
		Type:                 coupon.Type(req.Type),
		Value:                req.Value,
		MinOrderAmount:       req.MinOrderAmount,
		MaxDiscount:          req.MaxDiscount,
		StartDate:            req.StartDate,
		EndDate:              req.EndDate,
		UsageLimit:           req.UsageLimit,
		UsageLimitPerUser:    req.UsageLimitPerUser,
		ApplicableProducts:   req.ApplicableProducts,
		ExcludedProducts:     req.ExcludedProducts,
		ApplicableCategories: req.ApplicableCategories,
		ExcludedCategories:   req.ExcludedCategories,
		ApplicableUsers:      req.ApplicableUsers,
		ExcludedUsers:        req.ExcludedUsers,
		ApplicableRoles:      req.ApplicableRoles,
		IsActive:             active,
		IsPublic:             req.IsPublic,
		IsAutoApply:          req.IsAutoApply,
		IsStackable:          req.IsStackable,
		FirstOrderOnly:       req.FirstOrderOnly,
	}
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	h.saveCoupon(w, r, "", http.StatusCreated, "coupon created")
}

func (h *Handler) updateCoupon(w http.ResponseWriter, r *http.Request) {
	h.saveCoupon(w, r, chi.URLParam(r, "id"), http.StatusOK, "coupon updated")
}

func (h *Handler) saveCoupon(w http.ResponseWriter, r *http.Request, id string, status int, message string) {
	var req couponRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "save coupon", err)
		return
	}
	c := req.coupon(id)
	var err error
	if id == "" {
		err = h.Coupons.Create(r.Context(), c)
	} else {
		err = h.Coupons.Update(r.Context(), c)
	}
	if err != nil {
		fail(w, r, "save coupon", err)
		return
	}
	respond(w, status, message, func(e *jx.Encoder) {
		encodeCoupon(e, c, true)
	})
}

func (h *Handler) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	deactivated, err := h.Coupons.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, "delete coupon", err)
		return
	}
	if deactivated {
		respond(w, http.StatusOK, "coupon has been used and was deactivated instead", nil)
		return
	}
	respond(w, http.StatusOK, "coupon deleted", nil)
}
