package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/teacheasy/internal/domain/cart"
	"github.com/xenking/teacheasy/internal/domain/coupon"
)

// customer describes the caller for coupon eligibility.
func (h *Handler) customer(r *http.Request) (coupon.Customer, error) {
	u := currentUser(r)
	n, err := h.Orders.CountForUser(r.Context(), u.ID)
	if err != nil {
		return coupon.Customer{}, err
	}
	return coupon.Customer{UserID: u.ID, Role: string(u.Role), OrderCount: n}, nil
}

// writeCart responds with the cart and any auto-apply coupons it qualifies
// for. Suggestions are best effort.
func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request, status int, message string, c *cart.Cart) {
	var suggestions []coupon.Discount
	if !c.IsEmpty() {
		cust, err := h.customer(r)
		if err == nil {
			suggestions, err = h.Coupons.AutoApplicable(r.Context(), cust, c.CouponItems())
		}
		if err != nil {
			zctx.From(r.Context()).Warn("Auto-apply coupons", zap.Error(err))
		}
		suggestions = withoutApplied(suggestions, c)
	}
	respond(w, status, message, h.encodeCart(c, suggestions))
}

func withoutApplied(ds []coupon.Discount, c *cart.Cart) []coupon.Discount {
	out := ds[:0]
	for _, d := range ds {
		applied := false
		for _, ac := range c.Coupons {
			if ac.Code == d.Code {
				applied = true
				break
			}
		}
		if !applied {
			out = append(out, d)
		}
	}
	return out
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.Carts.Get(r.Context(), currentUser(r).ID)
	if err != nil {
		fail(w, r, "get cart", err)
		return
	}
	h.writeCart(w, r, http.StatusOK, "cart retrieved", c)
}

type cartItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "add to cart", err)
		return
	}
	c, err := h.Carts.AddItem(r.Context(), currentUser(r).ID, req.ProductID, req.Quantity)
	if err != nil {
		fail(w, r, "add to cart", err)
		return
	}
	h.writeCart(w, r, http.StatusOK, "item added to cart", c)
}

type quantityRequest struct {
	Quantity int `json:"quantity" validate:"gte=1"`
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "update cart", err)
		return
	}
	c, err := h.Carts.UpdateQuantity(r.Context(), currentUser(r).ID, chi.URLParam(r, "productID"), req.Quantity)
	if err != nil {
		fail(w, r, "update cart", err)
		return
	}
	h.writeCart(w, r, http.StatusOK, "cart updated", c)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.Carts.RemoveItem(r.Context(), currentUser(r).ID, chi.URLParam(r, "productID"))
	if err != nil {
		fail(w, r, "remove from cart", err)
		return
	}
	h.writeCart(w, r, http.StatusOK, "item removed from cart", c)
}

type couponCodeRequest struct {
	Code string `json:"code" validate:"required,max=50"`
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponCodeRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "apply coupon", err)
		return
	}
	cust, err := h.customer(r)
	if err != nil {
		fail(w, r, "apply coupon", err)
		return
	}
	c, err := h.Carts.ApplyCoupon(r.Context(), cust, req.Code)
	if err != nil {
		fail(w, r, "apply coupon", err)
		return
	}
	h.writeCart(w, r, http.StatusOK, "coupon applied", c)
}

func (h *Handler) removeCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.Carts.RemoveCoupon(r.Context(), currentUser(r).ID, chi.URLParam(r, "code"))
	if err != nil {
		fail(w, r, "remove coupon", err)
		return
	}
	h.writeCart(w, r, http.StatusOK, "coupon removed", c)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.Carts.Clear(r.Context(), currentUser(r).ID); err != nil {
		fail(w, r, "clear cart", err)
		return
	}
	respond(w, http.StatusOK, "cart cleared", nil)
}

func (h *Handler) getWishlist(w http.ResponseWriter, r *http.Request) {
	products, err := h.Wishlist.List(r.Context(), currentUser(r).ID)
	if err != nil {
		fail(w, r, "get wishlist", err)
		return
	}
	respond(w, http.StatusOK, "wishlist retrieved", h.encodeProducts(products))
}

type wishlistRequest struct {
	ProductID string `json:"product_id" validate:"required"`
}

func (h *Handler) addToWishlist(w http.ResponseWriter, r *http.Request) {
	var req wishlistRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "add to wishlist", err)
		return
	}
	if err := h.Wishlist.Add(r.Context(), currentUser(r).ID, req.ProductID); err != nil {
		fail(w, r, "add to wishlist", err)
		return
	}
	respond(w, http.StatusOK, "added to wishlist", nil)
}

func (h *Handler) removeFromWishlist(w http.ResponseWriter, r *http.Request) {
	if err := h.Wishlist.Remove(r.Context(), currentUser(r).ID, chi.URLParam(r, "productID")); err != nil {
		fail(w, r, "remove from wishlist", err)
		return
	}
	respond(w, http.StatusOK, "removed from wishlist", nil)
}

func (h *Handler) moveToCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.Wishlist.MoveToCart(r.Context(), currentUser(r).ID, chi.URLParam(r, "productID"))
	if err != nil {
		fail(w, r, "move to cart", err)
		return
	}
	h.writeCart(w, r, http.StatusOK, "moved to cart", c)
}
