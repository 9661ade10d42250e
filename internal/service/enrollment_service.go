package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/course-market-api/internal/models"
	appErrors "github.com/noah-isme/course-market-api/pkg/errors"
)

type enrollmentRepository interface {
	FindOrCreate(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error)
	AddProgress(ctx context.Context, enrollmentID, lessonID string) error
}

type enrollmentCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type enrollmentLessonRepository interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
}

// EnrollmentService manages student registrations and lesson progress.
type EnrollmentService struct {
	repo    enrollmentRepository
	courses enrollmentCourseRepository
	lessons enrollmentLessonRepository
	logger  *zap.Logger
	// strictProgress additionally requires the completed lesson to belong
	// to the enrollment's course.
	strictProgress bool
}

// NewEnrollmentService constructs an EnrollmentService instance.
func NewEnrollmentService(repo enrollmentRepository, courses enrollmentCourseRepository, lessons enrollmentLessonRepository, strictProgress bool, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, courses: courses, lessons: lessons, strictProgress: strictProgress, logger: logger}
}

// Enroll registers the acting student in a course. Enrolling twice returns
// the existing enrollment unchanged.
func (s *EnrollmentService) Enroll(ctx context.Context, courseID string, actor *models.JWTClaims) (*models.Enrollment, error) {
	if err := RequireRole(actor, models.RoleStudent); err != nil {
		return nil, err
	}

	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	enrollment, err := s.repo.FindOrCreate(ctx, actor.UserID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll")
	}
	return enrollment, nil
}

// Get returns a single enrollment visible to its owner or an admin.
func (s *EnrollmentService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if err := RequireOwner(actor, enrollment.StudentID); err != nil {
		return nil, err
	}
	return enrollment, nil
}

// ListForStudent returns the actor's enrollments.
func (s *EnrollmentService) ListForStudent(ctx context.Context, actor *models.JWTClaims) ([]models.Enrollment, error) {
	if err := RequireAuthenticated(actor); err != nil {
		return nil, err
	}

	enrollments, err := s.repo.ListByStudent(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}

// MarkLessonComplete records a lesson as completed for an enrollment.
// Completing the same lesson again leaves the progress set unchanged.
func (s *EnrollmentService) MarkLessonComplete(ctx context.Context, enrollmentID, lessonID string, actor *models.JWTClaims) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	if err := RequireOwner(actor, enrollment.StudentID); err != nil {
		return nil, err
	}

	lesson, err := s.lessons.FindByID(ctx, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}

	if s.strictProgress && lesson.CourseID != enrollment.CourseID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "lesson does not belong to the enrolled course")
	}

	if err := s.repo.AddProgress(ctx, enrollmentID, lessonID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record progress")
	}

	updated, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload enrollment")
	}
	return updated, nil
}
