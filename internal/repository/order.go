package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lectoria/course-coupons/internal/domain/payment"
)

const openOrdersSQL = `SELECT id, user_id, payment_token, payment_status
	FROM coupon_orders
	WHERE user_id = $1 AND payment_status = $2
	ORDER BY id`

var _ payment.OrderRepository = (*OrderRepository)(nil)

// OrderRepository implements payment.OrderRepository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// OpenOrders returns the user's coupon orders still in the open payment state.
func (r *OrderRepository) OpenOrders(ctx context.Context, userID int64) ([]payment.Order, error) {
	rows, err := r.pool.Query(ctx, openOrdersSQL, userID, payment.StatusOpen)
	if err != nil {
		return nil, fmt.Errorf("listing open orders for user %d: %w", userID, err)
	}

	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (payment.Order, error) {
		var o payment.Order
		err := row.Scan(&o.ID, &o.UserID, &o.Token, &o.Status)
		return o, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing open orders for user %d: %w", userID, err)
	}
	return orders, nil
}
