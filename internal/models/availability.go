package models

// AvailabilityResult is the availability verdict for a candidate interval.
// Reason is populated only for negative verdicts.
type AvailabilityResult struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// ConflictReport aggregates everything standing in the way of a candidate
// lesson. An empty report means the lesson may be created unconditionally.
type ConflictReport struct {
	Teacher      []Lesson `json:"teacher,omitempty"`
	Room         []Lesson `json:"room,omitempty"`
	Availability []string `json:"availability,omitempty"`
}

// Clean reports whether no conflicts were found.
func (r ConflictReport) Clean() bool {
	return len(r.Teacher) == 0 && len(r.Room) == 0 && len(r.Availability) == 0
}

// LessonConflictError is returned when a lesson write collides with existing
// bookings or availability rules and the caller did not force it.
type LessonConflictError struct {
	Message string         `json:"message"`
	Report  ConflictReport `json:"report"`
}

// Error implements the error interface for conflict errors.
func (e *LessonConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
