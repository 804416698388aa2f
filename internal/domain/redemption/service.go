// Package redemption implements the coupon redemption workflow: confirming
// pending coupon purchases with the payment gateway, then spending one unit
// of coupon balance to grant a user access to a lesson.
package redemption

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/lectoria/course-coupons/internal/domain/coupon"
	"github.com/lectoria/course-coupons/internal/domain/lesson"
)

// Service orchestrates lesson redemption. A single pass runs strictly in
// order: reconcile, balance check, lesson and course checks, then the
// transactional grant-and-spend.
type Service struct {
	reconciler OrderReconciler
	ledger     coupon.LedgerRepository
	lessons    lesson.Repository
}

// NewService creates a redemption Service with the required dependencies.
func NewService(reconciler OrderReconciler, ledger coupon.LedgerRepository, lessons lesson.Repository) *Service {
	return &Service{
		reconciler: reconciler,
		ledger:     ledger,
		lessons:    lessons,
	}
}

// UserCoupons reconciles the user's open coupon orders, then returns their
// balances. Balances are never served ahead of reconciliation.
func (s *Service) UserCoupons(ctx context.Context, userID int64) ([]coupon.Balance, error) {
	if _, err := s.reconciler.Reconcile(ctx, userID); err != nil {
		return nil, errors.Wrap(err, "reconcile coupon orders")
	}

	balances, err := s.ledger.Balances(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list balances")
	}
	return balances, nil
}

// Redeem spends one unit of the user's coupon balance on the given lesson.
//
// Domain failures are reported as coupon.ErrNoBalance, coupon.ErrAlreadyGranted,
// lesson.ErrNotFound, or lesson.ErrNoCourse; any other error is
// infrastructure. No write is committed once any step fails.
func (s *Service) Redeem(ctx context.Context, userID, couponID, lessonID int64) error {
	if _, err := s.reconciler.Reconcile(ctx, userID); err != nil {
		return errors.Wrap(err, "reconcile coupon orders")
	}

	// Early balance read keeps the common no-balance case off the lesson
	// lookups; the decrement inside Redeem re-checks under the transaction.
	count, err := s.ledger.Balance(ctx, userID, couponID)
	if err != nil {
		return err
	}
	if count <= 0 {
		return coupon.ErrNoBalance
	}

	if _, err := s.lessons.Find(ctx, lessonID); err != nil {
		return err
	}

	courseID, err := s.lessons.CourseID(ctx, lessonID)
	if err != nil {
		return err
	}

	return s.ledger.Redeem(ctx, userID, couponID, lessonID, courseID)
}
