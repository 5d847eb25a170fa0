package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/teacheasy/internal/domain/address"
	"github.com/xenking/teacheasy/internal/domain/auth"
	"github.com/xenking/teacheasy/internal/domain/cart"
	"github.com/xenking/teacheasy/internal/domain/category"
	"github.com/xenking/teacheasy/internal/domain/checkout"
	"github.com/xenking/teacheasy/internal/domain/coupon"
	"github.com/xenking/teacheasy/internal/domain/order"
	"github.com/xenking/teacheasy/internal/domain/payment"
	"github.com/xenking/teacheasy/internal/domain/product"
	"github.com/xenking/teacheasy/internal/domain/wishlist"
	"github.com/xenking/teacheasy/pkg/validation"
)

const maxBodyBytes = 1 << 20

// encodeFunc writes the "data" member of an envelope.
type encodeFunc func(e *jx.Encoder)

// writeEnvelope writes {"success", "message", "errors"?, "data"?}.
func writeEnvelope(w http.ResponseWriter, status int, success bool, message string, fields validation.Errors, data encodeFunc) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(success)
	e.FieldStart("message")
	e.Str(message)
	if len(fields) > 0 {
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)

		e.FieldStart("errors")
		e.ObjStart()
		for _, name := range names {
			e.FieldStart(name)
			e.Str(fields[name])
		}
		e.ObjEnd()
	}
	if data != nil {
		e.FieldStart("data")
		data(&e)
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func respond(w http.ResponseWriter, status int, message string, data encodeFunc) {
	writeEnvelope(w, status, true, message, nil, data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	writeEnvelope(w, status, false, message, nil, nil)
}

// badRequestError marks malformed input that never reached the domain.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

// decode reads a JSON request body into dst and runs its validate tags.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is required")
		}
		return badRequest("invalid request body: %s", err.Error())
	}
	return validation.Struct(dst)
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("%s must be an integer", name)
	}
	return v, nil
}

type errorMapping struct {
	target error
	status int
}

// errorStatuses maps domain sentinels to HTTP statuses. The sentinel's own
// message is sent to the client so wrapping context never leaks.
var errorStatuses = []errorMapping{
	{product.ErrNotFound, http.StatusNotFound},
	{category.ErrNotFound, http.StatusNotFound},
	{address.ErrNotFound, http.StatusNotFound},
	{order.ErrNotFound, http.StatusNotFound},
	{payment.ErrNotFound, http.StatusNotFound},
	{coupon.ErrNotFound, http.StatusNotFound},
	{cart.ErrItemNotFound, http.StatusNotFound},
	{cart.ErrCouponNotApplied, http.StatusNotFound},
	{wishlist.ErrNotInWishlist, http.StatusNotFound},

	{product.ErrDuplicateSlug, http.StatusConflict},
	{category.ErrDuplicateSlug, http.StatusConflict},
	{category.ErrCategoryInUse, http.StatusConflict},
	{coupon.ErrDuplicateCode, http.StatusConflict},
	{order.ErrConflict, http.StatusConflict},
	{payment.ErrConflict, http.StatusConflict},
	{cart.ErrCouponAlreadyApplied, http.StatusConflict},
	{order.ErrReturnAlreadyRequested, http.StatusConflict},

	{coupon.ErrInvalidCoupon, http.StatusUnprocessableEntity},
	{coupon.ErrCouponInactive, http.StatusUnprocessableEntity},
	{coupon.ErrCouponNotStarted, http.StatusUnprocessableEntity},
	{coupon.ErrCouponExpired, http.StatusUnprocessableEntity},
	{coupon.ErrUsageLimitReached, http.StatusUnprocessableEntity},
	{coupon.ErrFirstOrderOnly, http.StatusUnprocessableEntity},
	{coupon.ErrNoEligibleItems, http.StatusUnprocessableEntity},
	{cart.ErrCartFull, http.StatusUnprocessableEntity},
	{cart.ErrInvalidQuantity, http.StatusUnprocessableEntity},
	{cart.ErrCouponNotStackable, http.StatusUnprocessableEntity},
	{cart.ErrEmptyCart, http.StatusUnprocessableEntity},
	{product.ErrOutOfStock, http.StatusUnprocessableEntity},
	{product.ErrUnknownCategory, http.StatusUnprocessableEntity},
	{order.ErrCannotCancel, http.StatusUnprocessableEntity},
	{order.ErrCannotReturn, http.StatusUnprocessableEntity},
	{order.ErrInvalidStatus, http.StatusBadRequest},
	{payment.ErrNotRefundable, http.StatusUnprocessableEntity},
	{payment.ErrInvalidRefundAmount, http.StatusUnprocessableEntity},
	{payment.ErrRefundExceedsRefundable, http.StatusUnprocessableEntity},
	{payment.ErrInvalidMethod, http.StatusBadRequest},
	{payment.ErrInvalidStatus, http.StatusBadRequest},
	{checkout.ErrStepOutOfOrder, http.StatusUnprocessableEntity},
	{checkout.ErrNotReady, http.StatusUnprocessableEntity},
	{auth.ErrInvalidToken, http.StatusUnauthorized},
}

// fail maps err onto an error envelope. Unknown errors are logged and
// reported as "failed to <op>".
func fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if fields, ok := validation.As(err); ok {
		writeEnvelope(w, http.StatusBadRequest, false, "validation failed", fields, nil)
		return
	}

	var (
		badReq     *badRequestError
		couponErr  *checkout.CouponError
		minOrder   *coupon.MinOrderError
		ineligible *coupon.IneligibleError
		orderTrans *order.InvalidTransitionError
		payTrans   *payment.InvalidTransitionError
		qtyErr     *order.InvalidQuantityError
	)
	switch {
	case errors.As(err, &badReq):
		respondError(w, http.StatusBadRequest, badReq.msg)
		return
	case errors.As(err, &couponErr):
		respondError(w, http.StatusUnprocessableEntity, couponErr.Error())
		return
	case errors.As(err, &minOrder):
		respondError(w, http.StatusUnprocessableEntity, minOrder.Error())
		return
	case errors.As(err, &ineligible):
		respondError(w, http.StatusUnprocessableEntity, ineligible.Error())
		return
	case errors.As(err, &orderTrans):
		respondError(w, http.StatusUnprocessableEntity, orderTrans.Error())
		return
	case errors.As(err, &payTrans):
		respondError(w, http.StatusUnprocessableEntity, payTrans.Error())
		return
	case errors.As(err, &qtyErr):
		respondError(w, http.StatusUnprocessableEntity, qtyErr.Error())
		return
	}

	for _, m := range errorStatuses {
		if errors.Is(err, m.target) {
			respondError(w, m.status, m.target.Error())
			return
		}
	}

	zctx.From(r.Context()).Error("Request failed",
		zap.String("op", op),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	respondError(w, http.StatusInternalServerError, "failed to "+op)
}
