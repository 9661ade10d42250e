package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/course-market-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments and their progress.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindOrCreate atomically resolves the single enrollment for a (student,
// course) pair. The insert relies on the unique constraint and DO NOTHING,
// so concurrent calls converge on one row; the follow-up select returns it
// regardless of which caller won the insert.
func (r *EnrollmentRepository) FindOrCreate(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	const insert = `INSERT INTO enrollments (id, student_id, course_id, paid, created_at)
        VALUES ($1, $2, $3, FALSE, $4)
        ON CONFLICT (student_id, course_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, insert, uuid.NewString(), studentID, courseID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("insert enrollment: %w", err)
	}

	const query = `SELECT id, student_id, course_id, paid, created_at FROM enrollments WHERE student_id = $1 AND course_id = $2`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, courseID); err != nil {
		return nil, fmt.Errorf("load enrollment: %w", err)
	}
	if err := r.loadProgress(ctx, &enrollment); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindByID returns an enrollment with its progress set.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, course_id, paid, created_at FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	if err := r.loadProgress(ctx, &enrollment); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListByStudent returns a student's enrollments with progress.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	const query = `SELECT id, student_id, course_id, paid, created_at FROM enrollments WHERE student_id = $1 ORDER BY created_at DESC`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	for i := range enrollments {
		if err := r.loadProgress(ctx, &enrollments[i]); err != nil {
			return nil, err
		}
	}
	return enrollments, nil
}

// SetPaid marks the enrollment as paid. Repeating the write is harmless, so
// webhook redelivery never needs a guard here.
func (r *EnrollmentRepository) SetPaid(ctx context.Context, id string) error {
	const query = `UPDATE enrollments SET paid = TRUE WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("mark enrollment paid: %w", err)
	}
	return nil
}

// AddProgress records a completed lesson. The primary key on
// (enrollment_id, lesson_id) plus DO NOTHING gives set semantics: repeated
// completion is a no-op, not an error.
func (r *EnrollmentRepository) AddProgress(ctx context.Context, enrollmentID, lessonID string) error {
	const query = `INSERT INTO enrollment_progress (enrollment_id, lesson_id, completed_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (enrollment_id, lesson_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, enrollmentID, lessonID, time.Now().UTC()); err != nil {
		return fmt.Errorf("record lesson completion: %w", err)
	}
	return nil
}

func (r *EnrollmentRepository) loadProgress(ctx context.Context, enrollment *models.Enrollment) error {
	const query = `SELECT COALESCE(array_agg(lesson_id ORDER BY completed_at), '{}') FROM enrollment_progress WHERE enrollment_id = $1`
	var progress pq.StringArray
	if err := r.db.GetContext(ctx, &progress, query, enrollment.ID); err != nil {
		return fmt.Errorf("load enrollment progress: %w", err)
	}
	enrollment.Progress = []string(progress)
	return nil
}
