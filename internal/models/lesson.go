package models

import "time"

// LessonStatus enumerates the lifecycle states of a lesson.
type LessonStatus string

const (
	LessonScheduled LessonStatus = "SCHEDULED"
	LessonCompleted LessonStatus = "COMPLETED"
	LessonCancelled LessonStatus = "CANCELLED"
)

// Lesson represents a scheduled teaching session. StartAt/EndAt are absolute
// UTC instants forming the half-open interval [StartAt, EndAt).
type Lesson struct {
	ID        string       `db:"id" json:"id"`
	Title     string       `db:"title" json:"title"`
	TeacherID string       `db:"teacher_id" json:"teacher_id"`
	RoomID    *string      `db:"room_id" json:"room_id,omitempty"`
	StartAt   time.Time    `db:"start_at" json:"start_at"`
	EndAt     time.Time    `db:"end_at" json:"end_at"`
	Status    LessonStatus `db:"status" json:"status"`
	Notes     *string      `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

// LessonFilter describes query params for listing lessons.
type LessonFilter struct {
	TeacherID string
	RoomID    string
	Status    string
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
