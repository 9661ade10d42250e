package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-market-api/internal/models"
	appErrors "github.com/noah-isme/course-market-api/pkg/errors"
)

type courseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
}

type catalogCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CourseListResult pairs a page of courses with pagination metadata.
type CourseListResult struct {
	Courses    []models.Course   `json:"courses"`
	Pagination models.Pagination `json:"pagination"`
}

// CourseService manages the course catalog.
type CourseService struct {
	repo      courseRepository
	cache     catalogCache
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs a CourseService instance.
func NewCourseService(repo courseRepository, cache catalogCache, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CourseService{repo: repo, cache: cache, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

// Create adds a new course owned by the acting instructor.
func (s *CourseService) Create(ctx context.Context, req models.CreateCourseRequest, actor *models.JWTClaims) (*models.Course, error) {
	if err := RequireRole(actor, models.RoleInstructor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course := &models.Course{
		InstructorID: actor.UserID,
		Title:        req.Title,
		Description:  req.Description,
		Price:        req.Price,
		Level:        req.Level,
		Status:       models.CourseStatusDraft,
	}

	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	s.invalidateCatalog(ctx)
	return course, nil
}

// Get returns a single course, served from cache when possible.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	key := fmt.Sprintf("catalog:course:%s", id)
	if s.cache != nil {
		var cached models.Course
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("course cache read failed", zap.Error(err))
		}
	}

	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, course, s.cacheTTL); err != nil {
			s.logger.Warn("course cache write failed", zap.Error(err))
		}
	}
	return course, nil
}

// List returns a filtered catalog page. Unauthenticated and student callers
// only see published courses; instructors additionally see their own drafts
// via the instructor filter.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter, actor *models.JWTClaims) (*CourseListResult, error) {
	ownCatalog := actor != nil && (actor.Role == models.RoleAdmin ||
		(actor.Role == models.RoleInstructor && filter.InstructorID == actor.UserID))
	if !ownCatalog {
		filter.Status = models.CourseStatusPublished
	}

	key := fmt.Sprintf("catalog:list:%s:%s:%s:%d:%d:%s:%s",
		filter.InstructorID, filter.Status, filter.Search, filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)
	if s.cache != nil && !ownCatalog {
		var cached CourseListResult
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("catalog cache read failed", zap.Error(err))
		}
	}

	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}

	result := &CourseListResult{
		Courses: courses,
		Pagination: models.Pagination{
			Page:       normalizePage(filter.Page),
			PageSize:   normalizePageSize(filter.PageSize),
			TotalCount: total,
		},
	}

	if s.cache != nil && !ownCatalog {
		if err := s.cache.Set(ctx, key, result, s.cacheTTL); err != nil {
			s.logger.Warn("catalog cache write failed", zap.Error(err))
		}
	}
	return result, nil
}

// Update modifies a course. Only the owning instructor or an admin may do so.
func (s *CourseService) Update(ctx context.Context, id string, req models.UpdateCourseRequest, actor *models.JWTClaims) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course, err := s.loadOwned(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		course.Title = *req.Title
	}
	if req.Description != nil {
		course.Description = *req.Description
	}
	if req.Price != nil {
		course.Price = *req.Price
	}
	if req.Level != nil {
		course.Level = *req.Level
	}
	if req.Status != nil {
		course.Status = models.CourseStatus(*req.Status)
	}

	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}

	s.invalidateCatalog(ctx)
	return course, nil
}

// Delete removes a course. Only the owning instructor or an admin may do so.
func (s *CourseService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if _, err := s.loadOwned(ctx, id, actor); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}

	s.invalidateCatalog(ctx)
	return nil
}

func (s *CourseService) loadOwned(ctx context.Context, id string, actor *models.JWTClaims) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := RequireOwner(actor, course.InstructorID); err != nil {
		return nil, err
	}
	return course, nil
}

func (s *CourseService) invalidateCatalog(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "catalog:*"); err != nil {
		s.logger.Warn("catalog cache invalidation failed", zap.Error(err))
	}
}

func normalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func normalizePageSize(size int) int {
	if size <= 0 || size > 100 {
		return 20
	}
	return size
}
