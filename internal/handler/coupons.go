package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/lectoria/course-coupons/internal/domain/coupon"
	"github.com/lectoria/course-coupons/internal/domain/lesson"
)

// maxBodySize caps apply request bodies; the expected payload is two integers.
const maxBodySize = 1 << 16

// listCoupons serves GET /api/coupons: the public catalog with price tiers.
func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.catalog.List(r.Context())
	if err != nil {
		internalError(w, r, err, "list coupons")
		return
	}

	writeData(w, func(e *jx.Encoder) {
		e.ArrStart()
		for _, c := range coupons {
			e.ObjStart()
			e.FieldStart("id")
			e.Int64(c.ID)
			e.FieldStart("name")
			e.Str(c.Name)
			e.FieldStart("type")
			e.Str(c.Type)
			e.FieldStart("limits")
			e.ArrStart()
			for _, t := range c.Tiers {
				e.ObjStart()
				e.FieldStart("limit")
				e.Int(t.Limit)
				e.FieldStart("price")
				e.Num(jx.Num(t.Price.StringFixed(2)))
				e.ObjEnd()
			}
			e.ArrEnd()
			e.ObjEnd()
		}
		e.ArrEnd()
	})
}

// userCoupons serves GET /api/user/coupons: reconciles the user's open
// coupon orders, then lists their balances.
func (h *Handler) userCoupons(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		fieldError(w, http.StatusUnauthorized, "token", "unauthorized")
		return
	}

	balances, err := h.redemptions.UserCoupons(r.Context(), userID)
	if err != nil {
		internalError(w, r, err, "list user coupons")
		return
	}

	writeData(w, func(e *jx.Encoder) {
		e.ArrStart()
		for _, b := range balances {
			e.ObjStart()
			e.FieldStart("id")
			e.Int64(b.CouponID)
			e.FieldStart("name")
			e.Str(b.Name)
			e.FieldStart("type")
			e.Str(b.Type)
			e.FieldStart("count")
			e.Int(b.Count)
			e.ObjEnd()
		}
		e.ArrEnd()
	})
}

// applyCoupon serves POST /api/coupons/apply: spends one unit of coupon
// balance to grant the authenticated user access to a lesson.
func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		fieldError(w, http.StatusUnauthorized, "token", "unauthorized")
		return
	}

	req, fieldErrs := decodeApplyRequest(r.Body)
	if len(fieldErrs) > 0 {
		writeFieldErrors(w, http.StatusOK, fieldErrs)
		return
	}

	err := h.redemptions.Redeem(r.Context(), userID, req.couponID, req.lessonID)
	switch {
	case err == nil:
		writeSuccess(w)
	case errors.Is(err, lesson.ErrNotFound):
		fieldError(w, http.StatusOK, "lesson_id", lesson.ErrNotFound.Error())
	case errors.Is(err, lesson.ErrNoCourse):
		fieldError(w, http.StatusOK, "course", lesson.ErrNoCourse.Error())
	case errors.Is(err, coupon.ErrNoBalance):
		fieldError(w, http.StatusOK, "coupon_id", coupon.ErrNoBalance.Error())
	case errors.Is(err, coupon.ErrAlreadyGranted):
		fieldError(w, http.StatusOK, "lesson_id", coupon.ErrAlreadyGranted.Error())
	default:
		internalError(w, r, err, "apply coupon")
	}
}

type applyRequest struct {
	couponID int64
	lessonID int64
}

// decodeApplyRequest parses {"coupon_id":int,"lesson_id":int}, collecting
// per-field validation errors the way the envelope API reports them.
func decodeApplyRequest(body io.Reader) (applyRequest, map[string][]string) {
	data, err := io.ReadAll(io.LimitReader(body, maxBodySize))
	if err != nil {
		return applyRequest{}, map[string][]string{"body": {"cannot read request body"}}
	}

	var (
		req       applyRequest
		seen      = make(map[string]bool, 2)
		fieldErrs = make(map[string][]string)
	)
	intField := func(name string, dst *int64, raw jx.Raw) {
		seen[name] = true
		n, err := jx.DecodeBytes(raw).Int64()
		if err != nil {
			fieldErrs[name] = append(fieldErrs[name], name+" must be an integer")
			return
		}
		*dst = n
	}

	d := jx.DecodeBytes(data)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		switch string(key) {
		case "coupon_id":
			intField("coupon_id", &req.couponID, raw)
		case "lesson_id":
			intField("lesson_id", &req.lessonID, raw)
		}
		return nil
	}); err != nil {
		return applyRequest{}, map[string][]string{"body": {"request body must be a JSON object"}}
	}

	for _, name := range []string{"coupon_id", "lesson_id"} {
		if !seen[name] {
			fieldErrs[name] = append(fieldErrs[name], name+" is required")
		}
	}
	return req, fieldErrs
}
