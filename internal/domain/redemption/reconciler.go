package redemption

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lectoria/course-coupons/internal/domain/payment"
)

// checkConcurrency bounds parallel gateway calls per reconciliation.
const checkConcurrency = 4

// ErrEmptyToken marks an open order that carries no payment token and
// therefore cannot be verified. The order is left open.
var ErrEmptyToken = errors.New("payment token is empty")

// OrderResult is the per-order outcome of a reconciliation pass. Err is nil
// when the gateway check went through.
type OrderResult struct {
	OrderID int64
	Err     error
}

// OrderReconciler confirms pending coupon purchases before balances are
// trusted. Implemented by *Reconciler.
type OrderReconciler interface {
	Reconcile(ctx context.Context, userID int64) ([]OrderResult, error)
}

// Reconciler asks the payment gateway to settle a user's open coupon orders.
// Reconciliation is best-effort per order: one failing check never stops the
// rest of the batch, and no balance is mutated here; a successful check
// settles the order inside the provider integration.
type Reconciler struct {
	orders  payment.OrderRepository
	gateway payment.Gateway
	timeout time.Duration
}

// NewReconciler creates a Reconciler. Each gateway call runs under its own
// deadline so one stalled check cannot hold the request indefinitely.
func NewReconciler(orders payment.OrderRepository, gateway payment.Gateway, timeout time.Duration) *Reconciler {
	return &Reconciler{
		orders:  orders,
		gateway: gateway,
		timeout: timeout,
	}
}

// Reconcile fetches the user's open coupon orders and checks each against
// the payment gateway. Unverifiable and failed orders are logged at error
// level and reported in the result slice, which is index-aligned with the
// fetched orders. Only the initial fetch can fail the pass as a whole.
func (r *Reconciler) Reconcile(ctx context.Context, userID int64) ([]OrderResult, error) {
	open, err := r.orders.OpenOrders(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "fetch open orders")
	}
	if len(open) == 0 {
		return nil, nil
	}

	lg := zctx.From(ctx)
	results := make([]OrderResult, len(open))

	g := &errgroup.Group{}
	g.SetLimit(checkConcurrency)
	for i, o := range open {
		g.Go(func() error {
			res := OrderResult{OrderID: o.ID}
			if o.Token == "" {
				res.Err = ErrEmptyToken
				lg.Error("cannot verify coupon order",
					zap.Int64("order_id", o.ID),
					zap.Int64("user_id", o.UserID),
					zap.Error(ErrEmptyToken),
				)
				results[i] = res
				return nil
			}

			callCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()

			if err := r.gateway.CheckPayment(callCtx, o.Token, payment.KindCoupon); err != nil {
				res.Err = err
				lg.Error("payment check failed",
					zap.Int64("order_id", o.ID),
					zap.Int64("user_id", o.UserID),
					zap.Error(err),
				)
			}
			results[i] = res
			return nil
		})
	}
	// Workers always return nil; failures live in the result slice.
	_ = g.Wait()

	return results, nil
}
