package schedule

import (
	"fmt"
	"time"

	"github.com/aksara-edu/bimbel-api/internal/models"
)

// DetectConflicts checks a candidate lesson against other lessons and a
// precomputed availability verdict, and aggregates everything blocking it.
// Cancelled lessons never count, and on updates the candidate is excluded
// from the collision set by its own id. Callers normally pre-filter existing
// lessons to the candidate's neighborhood; correctness does not depend on it.
func DetectConflicts(candidate models.Lesson, existing []models.Lesson, availability models.AvailabilityResult) (models.ConflictReport, error) {
	if !candidate.StartAt.Before(candidate.EndAt) {
		return models.ConflictReport{}, fmt.Errorf("%w: start=%s end=%s", ErrInvalidInterval,
			candidate.StartAt.Format(time.RFC3339), candidate.EndAt.Format(time.RFC3339))
	}

	var report models.ConflictReport
	for _, lesson := range existing {
		if lesson.Status == models.LessonCancelled {
			continue
		}
		if candidate.ID != "" && lesson.ID == candidate.ID {
			continue
		}
		if !Overlaps(lesson.StartAt, lesson.EndAt, candidate.StartAt, candidate.EndAt) {
			continue
		}
		if lesson.TeacherID == candidate.TeacherID {
			report.Teacher = append(report.Teacher, lesson)
		}
		if candidate.RoomID != nil && lesson.RoomID != nil && *lesson.RoomID == *candidate.RoomID {
			report.Room = append(report.Room, lesson)
		}
	}

	if !availability.Available {
		reason := availability.Reason
		if reason == "" {
			reason = "teacher is not available during this time"
		}
		report.Availability = []string{reason}
	}

	return report, nil
}

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect. Back-to-back intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}
