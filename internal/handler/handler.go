// Package handler implements the JSON API surface. Responses follow the
// platform's envelope convention: {"success":true,...} on success and
// {"errors":{field:[message,...]}} for validation and domain failures, which
// keep HTTP 200 for client compatibility.
package handler

import (
	"context"
	"net/http"

	"github.com/lectoria/course-coupons/internal/domain/coupon"
	"github.com/lectoria/course-coupons/internal/domain/redemption"
)

// TokenRepository resolves bearer-token hashes to user identities.
type TokenRepository interface {
	UserByHash(ctx context.Context, hash string) (int64, error)
}

// Handler serves the coupon API, delegating business logic to the redemption
// service and the coupon catalog.
type Handler struct {
	catalog     coupon.CatalogRepository
	redemptions *redemption.Service
	tokens      TokenRepository
	pepper      []byte
}

// NewHandler constructs a Handler with the required dependencies. The pepper
// keys the HMAC used to hash incoming bearer tokens.
func NewHandler(
	catalog coupon.CatalogRepository,
	redemptions *redemption.Service,
	tokens TokenRepository,
	pepper []byte,
) *Handler {
	return &Handler{
		catalog:     catalog,
		redemptions: redemptions,
		tokens:      tokens,
		pepper:      pepper,
	}
}

// Register mounts the API routes on the given mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/coupons", h.listCoupons)
	mux.HandleFunc("GET /api/user/coupons", h.authenticated(h.userCoupons))
	mux.HandleFunc("POST /api/coupons/apply", h.authenticated(h.applyCoupon))
}
