// Package payment defines the coupon purchase order model and the external
// payment provider capability consumed during reconciliation.
package payment

import "context"

// Status is the payment state of a coupon order.
type Status string

const (
	StatusOpen    Status = "open"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
	StatusExpired Status = "expired"
)

// KindCoupon tags gateway checks that concern coupon purchases.
const KindCoupon = "coupon"

// Order is a coupon purchase order created by the (external) purchase flow.
// Only the payment provider integration transitions its status.
type Order struct {
	ID     int64
	UserID int64
	Token  string
	Status Status
}

// OrderRepository provides access to coupon purchase orders.
type OrderRepository interface {
	// OpenOrders returns the user's orders still in the open payment state.
	OpenOrders(ctx context.Context, userID int64) ([]Order, error)
}

// Gateway is the opaque payment provider capability. A successful check
// settles the referenced order out of band; the caller never flips status
// itself.
type Gateway interface {
	CheckPayment(ctx context.Context, token, kind string) error
}
