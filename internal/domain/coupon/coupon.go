package coupon

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for the balance ledger.
var (
	// ErrNoBalance is returned when a user holds no balance row for a coupon,
	// or the remaining count is zero.
	ErrNoBalance = errors.New("insufficient coupon balance")
	// ErrAlreadyGranted is returned when the target lesson was already
	// granted to the user; the redemption transaction rolls back whole.
	ErrAlreadyGranted = errors.New("lesson already granted")
)

// PriceTier is one step of a coupon's price schedule: buying up to Limit
// uses costs Price.
type PriceTier struct {
	Limit int
	Price decimal.Decimal
}

// Coupon is an immutable catalog entry. Tiers are ordered by ascending Limit.
type Coupon struct {
	ID    int64
	Name  string
	Type  string
	Tiers []PriceTier
}

// Balance is a user's remaining redemption count for one coupon, joined with
// the catalog fields the user-coupons listing needs.
type Balance struct {
	CouponID int64
	Name     string
	Type     string
	Count    int
}

// CatalogRepository provides read-only access to coupon definitions.
type CatalogRepository interface {
	// List returns every coupon with its price tiers ordered by ascending limit.
	List(ctx context.Context) ([]Coupon, error)
}

// LedgerRepository owns per-user coupon balances. Decrements happen only
// inside Redeem, never through a standalone write.
type LedgerRepository interface {
	// Balances returns all of the user's coupon balances joined with catalog data.
	Balances(ctx context.Context, userID int64) ([]Balance, error)
	// Balance returns the remaining count for one coupon.
	// Returns ErrNoBalance when the user holds no row for the coupon.
	Balance(ctx context.Context, userID, couponID int64) (int, error)
	// Redeem atomically grants lesson access, records a usage row, and
	// decrements the balance by one. Returns ErrAlreadyGranted when the user
	// already holds the lesson, ErrNoBalance when the conditional decrement
	// finds no remaining count. On any error nothing is written.
	Redeem(ctx context.Context, userID, couponID, lessonID, courseID int64) error
}
