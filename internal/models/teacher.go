package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Teacher represents a tutor record including the availability rules the
// scheduling engine consumes.
type Teacher struct {
	ID                     string         `db:"id" json:"id"`
	Email                  string         `db:"email" json:"email"`
	FullName               string         `db:"full_name" json:"full_name"`
	Phone                  *string        `db:"phone" json:"phone,omitempty"`
	Subjects               *string        `db:"subjects" json:"subjects,omitempty"`
	Active                 bool           `db:"active" json:"active"`
	WeeklyAvailability     WeeklySlotList `db:"weekly_availability" json:"weekly_availability"`
	AvailabilityExceptions ExceptionList  `db:"availability_exceptions" json:"availability_exceptions"`
	CreatedAt              time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time      `db:"updated_at" json:"updated_at"`
}

// TeacherFilter captures filtering options for listing teachers.
type TeacherFilter struct {
	Search    string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// WeeklySlot is a recurring day-of-week window when a teacher ordinarily
// teaches. Times are "HH:MM" wall clock in UTC; slots never span midnight.
// Slots for the same day may overlap, the evaluator takes any match.
type WeeklySlot struct {
	DayOfWeek int    `json:"day_of_week" validate:"min=0,max=6"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

// ExceptionKind distinguishes blocking overrides from opening ones.
type ExceptionKind string

const (
	// ExceptionUnavailable blocks time that the weekly schedule would allow.
	ExceptionUnavailable ExceptionKind = "UNAVAILABLE"
	// ExceptionAvailable opens time outside the weekly schedule.
	ExceptionAvailable ExceptionKind = "AVAILABLE"
)

// AvailabilityException overrides the weekly schedule for an inclusive date
// range. Either AllDay is set, or StartTime/EndTime scope the override to a
// sub-interval of each day in range.
type AvailabilityException struct {
	ID        string        `json:"id"`
	Kind      ExceptionKind `json:"kind" validate:"required,oneof=UNAVAILABLE AVAILABLE"`
	StartDate string        `json:"start_date" validate:"required"`
	EndDate   string        `json:"end_date" validate:"required"`
	AllDay    bool          `json:"all_day"`
	StartTime string        `json:"start_time,omitempty"`
	EndTime   string        `json:"end_time,omitempty"`
	Reason    string        `json:"reason,omitempty"`
}

// WeeklySlotList is stored as a JSONB document on the teacher row.
type WeeklySlotList []WeeklySlot

// Value implements driver.Valuer for JSONB storage.
func (l WeeklySlotList) Value() (driver.Value, error) {
	if l == nil {
		l = WeeklySlotList{}
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner for JSONB storage.
func (l *WeeklySlotList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// ExceptionList is stored as a JSONB document on the teacher row.
type ExceptionList []AvailabilityException

// Value implements driver.Valuer for JSONB storage.
func (l ExceptionList) Value() (driver.Value, error) {
	if l == nil {
		l = ExceptionList{}
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner for JSONB storage.
func (l *ExceptionList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

func scanJSON(src, dest interface{}) error {
	switch raw := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(raw, dest)
	case string:
		return json.Unmarshal([]byte(raw), dest)
	default:
		return fmt.Errorf("unsupported type %T for JSON column", src)
	}
}
