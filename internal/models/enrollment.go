package models

import "time"

// Enrollment captures a student's registration in a course. Exactly one row
// exists per (student, course) pair, enforced by a unique constraint rather
// than an application-level check so concurrent enrolls converge on one row.
type Enrollment struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Paid      bool      `db:"paid" json:"paid"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	// Progress is the set of completed lesson ids, stored in the
	// enrollment_progress table and loaded alongside the row.
	Progress []string `db:"-" json:"progress"`
}

// HasLesson reports whether the lesson is already recorded as completed.
func (e *Enrollment) HasLesson(lessonID string) bool {
	for _, id := range e.Progress {
		if id == lessonID {
			return true
		}
	}
	return false
}

// CompleteLessonRequest marks a lesson as finished for an enrollment.
type CompleteLessonRequest struct {
	LessonID string `json:"lesson_id" validate:"required"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	CourseID  string
	Page      int
	PageSize  int
}
