package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/teacheasy/internal/domain/address"
)

type addressRequest struct {
	Label      string `json:"label" validate:"max=50"`
	FullName   string `json:"full_name" validate:"required,max=100"`
	Phone      string `json:"phone" validate:"required,min=6,max=20"`
	Email      string `json:"email" validate:"omitempty,email"`
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2" validate:"max=200"`
	Division   string `json:"division" validate:"required"`
	District   string `json:"district" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required,max=10"`
	IsDefault  bool   `json:"is_default"`
}

func (req *addressRequest) address(userID, id string) *address.Address {
	return &address.Address{
		ID:         id,
		UserID:     userID,
		Label:      req.Label,
		FullName:   req.FullName,
		Phone:      req.Phone,
		Email:      req.Email,
		Line1:      req.Line1,
		Line2:      req.Line2,
		Division:   req.Division,
		District:   req.District,
		City:       req.City,
		PostalCode: req.PostalCode,
		IsDefault:  req.IsDefault,
	}
}

func (h *Handler) listAddresses(w http.ResponseWriter, r *http.Request) {
	addrs, err := h.Addresses.List(r.Context(), currentUser(r).ID)
	if err != nil {
		fail(w, r, "list addresses", err)
		return
	}
	respond(w, http.StatusOK, "addresses retrieved", func(e *jx.Encoder) {
		e.ArrStart()
		for i := range addrs {
			encodeAddress(e, &addrs[i])
		}
		e.ArrEnd()
	})
}

func (h *Handler) getAddress(w http.ResponseWriter, r *http.Request) {
	a, err := h.Addresses.Get(r.Context(), currentUser(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, "get address", err)
		return
	}
	respond(w, http.StatusOK, "address retrieved", func(e *jx.Encoder) {
		encodeAddress(e, a)
	})
}

func (h *Handler) createAddress(w http.ResponseWriter, r *http.Request) {
	h.saveAddress(w, r, "", http.StatusCreated, "address created")
}

func (h *Handler) updateAddress(w http.ResponseWriter, r *http.Request) {
	h.saveAddress(w, r, chi.URLParam(r, "id"), http.StatusOK, "address updated")
}

func (h *Handler) saveAddress(w http.ResponseWriter, r *http.Request, id string, status int, message string) {
	var req addressRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "save address", err)
		return
	}
	a := req.address(currentUser(r).ID, id)
	if err := h.Addresses.Save(r.Context(), a); err != nil {
		fail(w, r, "save address", err)
		return
	}
	respond(w, status, message, func(e *jx.Encoder) {
		encodeAddress(e, a)
	})
}

func (h *Handler) setDefaultAddress(w http.ResponseWriter, r *http.Request) {
	if err := h.Addresses.SetDefault(r.Context(), currentUser(r).ID, chi.URLParam(r, "id")); err != nil {
		fail(w, r, "set default address", err)
		return
	}
	respond(w, http.StatusOK, "default address updated", nil)
}

func (h *Handler) deleteAddress(w http.ResponseWriter, r *http.Request) {
	if err := h.Addresses.Delete(r.Context(), currentUser(r).ID, chi.URLParam(r, "id")); err != nil {
		fail(w, r, "delete address", err)
		return
	}
	respond(w, http.StatusOK, "address deleted", nil)
}
