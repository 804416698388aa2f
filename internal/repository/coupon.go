package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/lectoria/course-coupons/internal/domain/coupon"
)

const (
	listCatalogSQL = `SELECT c.id, c.name, c.type, p."limit", p.price
		FROM coupons c
		LEFT JOIN coupon_prices p ON p.coupon_id = c.id
		ORDER BY c.id, p."limit"`

	listBalancesSQL = `SELECT uc.coupon_id, c.name, c.type, uc.count
		FROM user_coupons uc
		JOIN coupons c ON c.id = uc.coupon_id
		WHERE uc.user_id = $1
		ORDER BY uc.coupon_id`

	getBalanceSQL = `SELECT count FROM user_coupons
		WHERE user_id = $1 AND coupon_id = $2`

	grantAccessSQL = `INSERT INTO user_lessons (user_id, lesson_id, course_id, progress, finish)
		VALUES ($1, $2, $3, '{}', FALSE)
		ON CONFLICT (user_id, lesson_id) DO NOTHING`

	recordUsageSQL = `INSERT INTO coupon_lesson_usages (user_id, lesson_id, coupon_id)
		VALUES ($1, $2, $3)`

	spendBalanceSQL = `UPDATE user_coupons SET count = count - 1
		WHERE user_id = $1 AND coupon_id = $2 AND count >= 1`
)

var (
	_ coupon.CatalogRepository = (*CouponRepository)(nil)
	_ coupon.LedgerRepository  = (*CouponRepository)(nil)
)

// CouponRepository implements the coupon catalog and balance ledger backed
// by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// List returns every coupon with its price tiers ordered by ascending limit.
// Coupons without tiers are returned with an empty tier list.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listCatalogSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	defer rows.Close()

	var (
		coupons []coupon.Coupon
		current *coupon.Coupon
	)
	for rows.Next() {
		var (
			id        int64
			name, typ string
			tierLimit *int
			tierPrice *decimal.Decimal
		)
		if err := rows.Scan(&id, &name, &typ, &tierLimit, &tierPrice); err != nil {
			return nil, fmt.Errorf("scanning coupon row: %w", err)
		}

		if current == nil || current.ID != id {
			coupons = append(coupons, coupon.Coupon{ID: id, Name: name, Type: typ})
			current = &coupons[len(coupons)-1]
		}
		if tierLimit != nil && tierPrice != nil {
			current.Tiers = append(current.Tiers, coupon.PriceTier{
				Limit: *tierLimit,
				Price: *tierPrice,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return coupons, nil
}

// Balances returns all of the user's coupon balances joined with catalog data.
func (r *CouponRepository) Balances(ctx context.Context, userID int64) ([]coupon.Balance, error) {
	rows, err := r.pool.Query(ctx, listBalancesSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing balances for user %d: %w", userID, err)
	}

	balances, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (coupon.Balance, error) {
		var b coupon.Balance
		err := row.Scan(&b.CouponID, &b.Name, &b.Type, &b.Count)
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing balances for user %d: %w", userID, err)
	}
	return balances, nil
}

// Balance returns the remaining count for one (user, coupon) pair.
// Returns coupon.ErrNoBalance when no row exists.
func (r *CouponRepository) Balance(ctx context.Context, userID, couponID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, getBalanceSQL, userID, couponID).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, coupon.ErrNoBalance
		}
		return 0, fmt.Errorf("reading balance for user %d coupon %d: %w", userID, couponID, err)
	}
	return count, nil
}

// Redeem grants lesson access, records the usage fact, and spends one unit
// of balance in a single transaction. The access insert relies on the
// (user_id, lesson_id) primary key to reject double grants, and the
// decrement is conditional on count >= 1, so two concurrent redemptions of a
// single remaining use commit at most once. Any failure rolls back whole.
func (r *CouponRepository) Redeem(ctx context.Context, userID, couponID, lessonID, courseID int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning redeem tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	granted, err := tx.Exec(ctx, grantAccessSQL, userID, lessonID, courseID)
	if err != nil {
		return fmt.Errorf("granting lesson %d to user %d: %w", lessonID, userID, err)
	}
	if granted.RowsAffected() == 0 {
		return coupon.ErrAlreadyGranted
	}

	if _, err := tx.Exec(ctx, recordUsageSQL, userID, lessonID, couponID); err != nil {
		return fmt.Errorf("recording usage of coupon %d: %w", couponID, err)
	}

	spent, err := tx.Exec(ctx, spendBalanceSQL, userID, couponID)
	if err != nil {
		return fmt.Errorf("spending coupon %d for user %d: %w", couponID, userID, err)
	}
	if spent.RowsAffected() == 0 {
		return coupon.ErrNoBalance
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing redeem tx: %w", err)
	}
	return nil
}
