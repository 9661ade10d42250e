package models

import "time"

// Lesson is a unit of course content referenced by enrollment progress.
type Lesson struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Title     string    `db:"title" json:"title"`
	Content   string    `db:"content" json:"content"`
	Position  int       `db:"position" json:"position"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CreateLessonRequest is the payload for adding a lesson to a course.
type CreateLessonRequest struct {
	Title    string `json:"title" validate:"required,min=1"`
	Content  string `json:"content"`
	Position int    `json:"position" validate:"gte=0"`
}

// UpdateLessonRequest is the payload for updating a lesson.
type UpdateLessonRequest struct {
	Title    *string `json:"title" validate:"omitempty,min=1"`
	Content  *string `json:"content"`
	Position *int    `json:"position" validate:"omitempty,gte=0"`
}
