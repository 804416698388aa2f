package lesson

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when no lesson exists for the given ID.
	ErrNotFound = errors.New("lesson does not exist")
	// ErrNoCourse is returned when a lesson has no course link. Such orphaned
	// lessons cannot be redeemed.
	ErrNoCourse = errors.New("lesson has no course")
)

// Lesson is a unit of course content a user can be granted access to.
type Lesson struct {
	ID    int64
	Title string
}

// Repository provides lesson lookups and course-link resolution.
type Repository interface {
	// Find returns the lesson with the given ID or ErrNotFound.
	Find(ctx context.Context, id int64) (*Lesson, error)
	// CourseID resolves the course a lesson belongs to.
	// Returns ErrNoCourse when the lesson has no course link.
	CourseID(ctx context.Context, lessonID int64) (int64, error)
}
