package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-market-api/internal/models"
	appErrors "github.com/noah-isme/course-market-api/pkg/errors"
)

type lessonRepository interface {
	Create(ctx context.Context, lesson *models.Lesson) error
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	Update(ctx context.Context, lesson *models.Lesson) error
	Delete(ctx context.Context, id string) error
	ListByCourse(ctx context.Context, courseID string) ([]models.Lesson, error)
}

type lessonCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// LessonService manages course content. Mutations are gated on ownership of
// the parent course.
type LessonService struct {
	repo      lessonRepository
	courses   lessonCourseRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLessonService constructs a LessonService instance.
func NewLessonService(repo lessonRepository, courses lessonCourseRepository, validate *validator.Validate, logger *zap.Logger) *LessonService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &LessonService{repo: repo, courses: courses, validator: validate, logger: logger}
}

// Create adds a lesson to a course owned by the actor.
func (s *LessonService) Create(ctx context.Context, courseID string, req models.CreateLessonRequest, actor *models.JWTClaims) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	if err := s.requireCourseOwner(ctx, courseID, actor); err != nil {
		return nil, err
	}

	lesson := &models.Lesson{
		CourseID: courseID,
		Title:    req.Title,
		Content:  req.Content,
		Position: req.Position,
	}
	if err := s.repo.Create(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lesson")
	}
	return lesson, nil
}

// ListByCourse returns the lessons of a course in presentation order.
func (s *LessonService) ListByCourse(ctx context.Context, courseID string) ([]models.Lesson, error) {
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	lessons, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	return lessons, nil
}

// Update modifies a lesson after checking parent-course ownership.
func (s *LessonService) Update(ctx context.Context, id string, req models.UpdateLessonRequest, actor *models.JWTClaims) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}

	lesson, err := s.loadOwned(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		lesson.Title = *req.Title
	}
	if req.Content != nil {
		lesson.Content = *req.Content
	}
	if req.Position != nil {
		lesson.Position = *req.Position
	}

	if err := s.repo.Update(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lesson")
	}
	return lesson, nil
}

// Delete removes a lesson after checking parent-course ownership.
func (s *LessonService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if _, err := s.loadOwned(ctx, id, actor); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete lesson")
	}
	return nil
}

func (s *LessonService) loadOwned(ctx context.Context, id string, actor *models.JWTClaims) (*models.Lesson, error) {
	lesson, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	if err := s.requireCourseOwner(ctx, lesson.CourseID, actor); err != nil {
		return nil, err
	}
	return lesson, nil
}

func (s *LessonService) requireCourseOwner(ctx context.Context, courseID string, actor *models.JWTClaims) error {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return RequireOwner(actor, course.InstructorID)
}
