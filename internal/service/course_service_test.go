package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-market-api/internal/models"
	appErrors "github.com/noah-isme/course-market-api/pkg/errors"
)

type stubCourseStore struct {
	courses map[string]models.Course
	deleted []string
}

func (m *stubCourseStore) Create(ctx context.Context, course *models.Course) error {
	if m.courses == nil {
		m.courses = make(map[string]models.Course)
	}
	if course.ID == "" {
		course.ID = "course-new"
	}
	m.courses[course.ID] = *course
	return nil
}

func (m *stubCourseStore) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *stubCourseStore) Update(ctx context.Context, course *models.Course) error {
	m.courses[course.ID] = *course
	return nil
}

func (m *stubCourseStore) Delete(ctx context.Context, id string) error {
	delete(m.courses, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *stubCourseStore) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	var list []models.Course
	for _, c := range m.courses {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		list = append(list, c)
	}
	return list, len(list), nil
}

type stubCache struct {
	values      map[string][]byte
	invalidated int
}

func (m *stubCache) Get(ctx context.Context, key string, dest interface{}) error {
	return appErrors.ErrCacheMiss
}

func (m *stubCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.values == nil {
		m.values = make(map[string][]byte)
	}
	m.values[key] = nil
	return nil
}

func (m *stubCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.invalidated++
	m.values = nil
	return nil
}

func instructorClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleInstructor}
}

func TestCourseServiceCreateOwnedByActor(t *testing.T) {
	repo := &stubCourseStore{}
	svc := NewCourseService(repo, &stubCache{}, time.Minute, validator.New(), zap.NewNop())

	course, err := svc.Create(context.Background(), models.CreateCourseRequest{Title: "Go Deep", Price: 49.99}, instructorClaims("i1"))
	require.NoError(t, err)
	assert.Equal(t, "i1", course.InstructorID)
	assert.Equal(t, models.CourseStatusDraft, course.Status)
}

func TestCourseServiceCreateForbiddenForStudents(t *testing.T) {
	svc := NewCourseService(&stubCourseStore{}, &stubCache{}, time.Minute, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), models.CreateCourseRequest{Title: "Go Deep"}, studentClaims("s1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceUpdateOwnerOnly(t *testing.T) {
	repo := &stubCourseStore{courses: map[string]models.Course{
		"c1": {ID: "c1", InstructorID: "i1", Title: "Old", Status: models.CourseStatusDraft},
	}}
	svc := NewCourseService(repo, &stubCache{}, time.Minute, validator.New(), zap.NewNop())

	title := "New Title"
	_, err := svc.Update(context.Background(), "c1", models.UpdateCourseRequest{Title: &title}, instructorClaims("i2"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	updated, err := svc.Update(context.Background(), "c1", models.UpdateCourseRequest{Title: &title}, instructorClaims("i1"))
	require.NoError(t, err)
	assert.Equal(t, "New Title", updated.Title)
}

func TestCourseServiceMutationsInvalidateCache(t *testing.T) {
	repo := &stubCourseStore{courses: map[string]models.Course{
		"c1": {ID: "c1", InstructorID: "i1", Status: models.CourseStatusDraft},
	}}
	cache := &stubCache{}
	svc := NewCourseService(repo, cache, time.Minute, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), models.CreateCourseRequest{Title: "Another"}, instructorClaims("i1"))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), "c1", instructorClaims("i1")))
	assert.Equal(t, 2, cache.invalidated)
}

func TestCourseServiceListHidesDraftsFromPublic(t *testing.T) {
	repo := &stubCourseStore{courses: map[string]models.Course{
		"c1": {ID: "c1", InstructorID: "i1", Status: models.CourseStatusDraft},
		"c2": {ID: "c2", InstructorID: "i1", Status: models.CourseStatusPublished},
	}}
	svc := NewCourseService(repo, &stubCache{}, time.Minute, validator.New(), zap.NewNop())

	result, err := svc.List(context.Background(), models.CourseFilter{}, nil)
	require.NoError(t, err)
	require.Len(t, result.Courses, 1)
	assert.Equal(t, "c2", result.Courses[0].ID)
}

func TestCourseServiceGetUnknown(t *testing.T) {
	svc := NewCourseService(&stubCourseStore{}, &stubCache{}, time.Minute, validator.New(), zap.NewNop())

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
