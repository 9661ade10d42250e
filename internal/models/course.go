package models

import "time"

// CourseStatus is the publication lifecycle of a course.
type CourseStatus string

// Possible course statuses.
const (
	CourseStatusDraft     CourseStatus = "draft"
	CourseStatusReview    CourseStatus = "review"
	CourseStatusPublished CourseStatus = "published"
)

// Course is an instructor-owned offering in the catalog.
type Course struct {
	ID           string       `db:"id" json:"id"`
	InstructorID string       `db:"instructor_id" json:"instructor_id"`
	Title        string       `db:"title" json:"title"`
	Description  string       `db:"description" json:"description"`
	Price        float64      `db:"price" json:"price"`
	Level        string       `db:"level" json:"level"`
	Status       CourseStatus `db:"status" json:"status"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// Free reports whether the course can be enrolled without payment.
func (c *Course) Free() bool {
	return c.Price <= 0
}

// CourseFilter captures supported filters for listing courses.
type CourseFilter struct {
	InstructorID string
	Status       CourseStatus
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// CreateCourseRequest is the payload for creating a course.
type CreateCourseRequest struct {
	Title       string  `json:"title" validate:"required,min=3"`
	Description string  `json:"description" validate:"omitempty"`
	Price       float64 `json:"price" validate:"gte=0"`
	Level       string  `json:"level" validate:"omitempty,oneof=beginner intermediate advanced"`
}

// UpdateCourseRequest is the payload for updating a course. Pointer fields
// distinguish omitted values from zero values.
type UpdateCourseRequest struct {
	Title       *string  `json:"title" validate:"omitempty,min=3"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price" validate:"omitempty,gte=0"`
	Level       *string  `json:"level" validate:"omitempty,oneof=beginner intermediate advanced"`
	Status      *string  `json:"status" validate:"omitempty,oneof=draft review published"`
}
