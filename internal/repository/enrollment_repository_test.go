package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryFindOrCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WithArgs(sqlmock.AnyArg(), "stu-1", "course-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rows := sqlmock.NewRows([]string{"id", "student_id", "course_id", "paid", "created_at"}).
		AddRow("enr-1", "stu-1", "course-1", false, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, course_id, paid, created_at FROM enrollments WHERE student_id = $1 AND course_id = $2")).
		WithArgs("stu-1", "course-1").
		WillReturnRows(rows)

	progress := sqlmock.NewRows([]string{"coalesce"}).AddRow(pq.StringArray{"les-1"})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(array_agg(lesson_id ORDER BY completed_at), '{}') FROM enrollment_progress WHERE enrollment_id = $1")).
		WithArgs("enr-1").
		WillReturnRows(progress)

	enrollment, err := repo.FindOrCreate(context.Background(), "stu-1", "course-1")
	require.NoError(t, err)
	require.Equal(t, "enr-1", enrollment.ID)
	require.Equal(t, []string{"les-1"}, enrollment.Progress)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindOrCreateConflictReturnsExisting(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	// The conflicting insert affects zero rows; the select still resolves
	// the surviving row.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WithArgs(sqlmock.AnyArg(), "stu-1", "course-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	rows := sqlmock.NewRows([]string{"id", "student_id", "course_id", "paid", "created_at"}).
		AddRow("enr-existing", "stu-1", "course-1", true, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, course_id, paid, created_at FROM enrollments WHERE student_id = $1 AND course_id = $2")).
		WithArgs("stu-1", "course-1").
		WillReturnRows(rows)

	progress := sqlmock.NewRows([]string{"coalesce"}).AddRow(pq.StringArray{})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(array_agg(lesson_id ORDER BY completed_at), '{}') FROM enrollment_progress WHERE enrollment_id = $1")).
		WithArgs("enr-existing").
		WillReturnRows(progress)

	enrollment, err := repo.FindOrCreate(context.Background(), "stu-1", "course-1")
	require.NoError(t, err)
	require.Equal(t, "enr-existing", enrollment.ID)
	require.True(t, enrollment.Paid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositorySetPaid(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET paid = TRUE WHERE id = $1")).
		WithArgs("enr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetPaid(context.Background(), "enr-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryAddProgress(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollment_progress")).
		WithArgs("enr-1", "les-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AddProgress(context.Background(), "enr-1", "les-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
