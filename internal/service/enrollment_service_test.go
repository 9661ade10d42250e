package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-market-api/internal/models"
	appErrors "github.com/noah-isme/course-market-api/pkg/errors"
)

type stubEnrollmentStore struct {
	enrollments map[string]models.Enrollment
	progress    map[string]map[string]bool
	created     int
}

func (m *stubEnrollmentStore) FindOrCreate(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	for _, e := range m.enrollments {
		if e.StudentID == studentID && e.CourseID == courseID {
			found := e
			found.Progress = m.progressOf(e.ID)
			return &found, nil
		}
	}
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	e := models.Enrollment{ID: "enr-new", StudentID: studentID, CourseID: courseID}
	m.enrollments[e.ID] = e
	m.created++
	e.Progress = []string{}
	return &e, nil
}

func (m *stubEnrollmentStore) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		e.Progress = m.progressOf(id)
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *stubEnrollmentStore) ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	var list []models.Enrollment
	for _, e := range m.enrollments {
		if e.StudentID == studentID {
			e.Progress = m.progressOf(e.ID)
			list = append(list, e)
		}
	}
	return list, nil
}

func (m *stubEnrollmentStore) AddProgress(ctx context.Context, enrollmentID, lessonID string) error {
	if m.progress == nil {
		m.progress = make(map[string]map[string]bool)
	}
	if m.progress[enrollmentID] == nil {
		m.progress[enrollmentID] = make(map[string]bool)
	}
	m.progress[enrollmentID][lessonID] = true
	return nil
}

func (m *stubEnrollmentStore) progressOf(id string) []string {
	set := m.progress[id]
	list := make([]string, 0, len(set))
	for lesson := range set {
		list = append(list, lesson)
	}
	return list
}

type stubCourseReader struct {
	courses map[string]models.Course
}

func (m *stubCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

type stubLessonReader struct {
	lessons map[string]models.Lesson
}

func (m *stubLessonReader) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	if l, ok := m.lessons[id]; ok {
		return &l, nil
	}
	return nil, sql.ErrNoRows
}

func studentClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleStudent}
}

func TestEnrollmentServiceEnrollIsIdempotent(t *testing.T) {
	repo := &stubEnrollmentStore{}
	courses := &stubCourseReader{courses: map[string]models.Course{"c1": {ID: "c1"}}}
	svc := NewEnrollmentService(repo, courses, &stubLessonReader{}, false, zap.NewNop())

	first, err := svc.Enroll(context.Background(), "c1", studentClaims("s1"))
	require.NoError(t, err)
	second, err := svc.Enroll(context.Background(), "c1", studentClaims("s1"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, repo.created)
}

func TestEnrollmentServiceEnrollUnknownCourse(t *testing.T) {
	svc := NewEnrollmentService(&stubEnrollmentStore{}, &stubCourseReader{}, &stubLessonReader{}, false, zap.NewNop())

	_, err := svc.Enroll(context.Background(), "missing", studentClaims("s1"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestEnrollmentServiceEnrollRequiresStudentRole(t *testing.T) {
	courses := &stubCourseReader{courses: map[string]models.Course{"c1": {ID: "c1"}}}
	svc := NewEnrollmentService(&stubEnrollmentStore{}, courses, &stubLessonReader{}, false, zap.NewNop())

	_, err := svc.Enroll(context.Background(), "c1", &models.JWTClaims{UserID: "i1", Role: models.RoleInstructor})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceMarkLessonCompleteIsSetSemantics(t *testing.T) {
	repo := &stubEnrollmentStore{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", CourseID: "c1"},
	}}
	lessons := &stubLessonReader{lessons: map[string]models.Lesson{"l1": {ID: "l1", CourseID: "c1"}}}
	svc := NewEnrollmentService(repo, &stubCourseReader{}, lessons, false, zap.NewNop())

	first, err := svc.MarkLessonComplete(context.Background(), "e1", "l1", studentClaims("s1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"l1"}, first.Progress)

	second, err := svc.MarkLessonComplete(context.Background(), "e1", "l1", studentClaims("s1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"l1"}, second.Progress)
}

func TestEnrollmentServiceMarkLessonCompleteForbiddenForOtherStudent(t *testing.T) {
	repo := &stubEnrollmentStore{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", CourseID: "c1"},
	}}
	lessons := &stubLessonReader{lessons: map[string]models.Lesson{"l1": {ID: "l1", CourseID: "c1"}}}
	svc := NewEnrollmentService(repo, &stubCourseReader{}, lessons, false, zap.NewNop())

	_, err := svc.MarkLessonComplete(context.Background(), "e1", "l1", studentClaims("s2"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.progress["e1"])
}

func TestEnrollmentServiceStrictProgressRejectsForeignLesson(t *testing.T) {
	repo := &stubEnrollmentStore{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", CourseID: "c1"},
	}}
	lessons := &stubLessonReader{lessons: map[string]models.Lesson{"l9": {ID: "l9", CourseID: "other"}}}
	svc := NewEnrollmentService(repo, &stubCourseReader{}, lessons, true, zap.NewNop())

	_, err := svc.MarkLessonComplete(context.Background(), "e1", "l9", studentClaims("s1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
