package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lectoria/course-coupons/internal/domain/lesson"
)

const (
	getLessonSQL = `SELECT id, title FROM lessons WHERE id = $1`

	getCourseLinkSQL = `SELECT course_id FROM lesson_courses WHERE lesson_id = $1`
)

var _ lesson.Repository = (*LessonRepository)(nil)

// LessonRepository implements lesson.Repository backed by PostgreSQL.
type LessonRepository struct {
	pool *pgxpool.Pool
}

// NewLessonRepository returns a LessonRepository that uses the given pool.
func NewLessonRepository(pool *pgxpool.Pool) *LessonRepository {
	return &LessonRepository{pool: pool}
}

// Find returns the lesson with the given ID or lesson.ErrNotFound.
func (r *LessonRepository) Find(ctx context.Context, id int64) (*lesson.Lesson, error) {
	var l lesson.Lesson
	err := r.pool.QueryRow(ctx, getLessonSQL, id).Scan(&l.ID, &l.Title)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, lesson.ErrNotFound
		}
		return nil, fmt.Errorf("finding lesson %d: %w", id, err)
	}
	return &l, nil
}

// CourseID resolves the lesson's course link.
// Returns lesson.ErrNoCourse for orphaned lessons.
func (r *LessonRepository) CourseID(ctx context.Context, lessonID int64) (int64, error) {
	var courseID int64
	err := r.pool.QueryRow(ctx, getCourseLinkSQL, lessonID).Scan(&courseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, lesson.ErrNoCourse
		}
		return 0, fmt.Errorf("resolving course for lesson %d: %w", lessonID, err)
	}
	return courseID, nil
}
