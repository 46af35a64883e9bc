package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aksara-edu/bimbel-api/internal/models"
	"github.com/aksara-edu/bimbel-api/internal/schedule"
	appErrors "github.com/aksara-edu/bimbel-api/pkg/errors"
)

type lessonRepository interface {
	List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, int, error)
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	ListWindow(ctx context.Context, from, to time.Time) ([]models.Lesson, error)
	Create(ctx context.Context, lesson *models.Lesson) error
	Update(ctx context.Context, lesson *models.Lesson) error
	Cancel(ctx context.Context, id string) error
}

// lessonTeacherDirectory resolves teachers together with their availability
// rules. Satisfied by TeacherService so lesson writes see cached records.
type lessonTeacherDirectory interface {
	Get(ctx context.Context, id string) (*models.Teacher, error)
}

// CreateLessonRequest represents payload for booking a lesson. Force skips
// the conflict gate; the conflicts are still computed and logged.
type CreateLessonRequest struct {
	Title     string    `json:"title" validate:"required,max=200"`
	TeacherID string    `json:"teacher_id" validate:"required"`
	RoomID    *string   `json:"room_id"`
	StartAt   time.Time `json:"start_at" validate:"required"`
	EndAt     time.Time `json:"end_at" validate:"required"`
	Notes     *string   `json:"notes" validate:"omitempty,max=1000"`
	Force     bool      `json:"force"`
}

// UpdateLessonRequest represents payload for rescheduling a lesson.
type UpdateLessonRequest struct {
	Title     string    `json:"title" validate:"required,max=200"`
	TeacherID string    `json:"teacher_id" validate:"required"`
	RoomID    *string   `json:"room_id"`
	StartAt   time.Time `json:"start_at" validate:"required"`
	EndAt     time.Time `json:"end_at" validate:"required"`
	Notes     *string   `json:"notes" validate:"omitempty,max=1000"`
	Force     bool      `json:"force"`
}

// LessonServiceConfig tunes lesson writes.
type LessonServiceConfig struct {
	// ConflictWindow is how far around the candidate interval existing
	// lessons are loaded for the overlap check.
	ConflictWindow time.Duration
	MaxDuration    time.Duration
}

// LessonService books lessons. Every write goes through the availability
// evaluator and the conflict detector; a non-clean report blocks the write
// unless the caller forces it.
//
// The window load and the insert are not atomic. Concurrent writes may both
// pass the check; the report is advisory and storage has the final word.
type LessonService struct {
	repo      lessonRepository
	teachers  lessonTeacherDirectory
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	config    LessonServiceConfig
}

// NewLessonService constructs a LessonService. Metrics may be nil.
func NewLessonService(repo lessonRepository, teachers lessonTeacherDirectory, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, config LessonServiceConfig) *LessonService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ConflictWindow <= 0 {
		config.ConflictWindow = 24 * time.Hour
	}
	return &LessonService{repo: repo, teachers: teachers, validator: validate, logger: logger, metrics: metrics, config: config}
}

// List returns lessons plus pagination data.
func (s *LessonService) List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, *models.Pagination, error) {
	lessons, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return lessons, pagination, nil
}

// Get returns a lesson by id.
func (s *LessonService) Get(ctx context.Context, id string) (*models.Lesson, error) {
	lesson, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	return lesson, nil
}

// Create books a new lesson after running the conflict checks.
func (s *LessonService) Create(ctx context.Context, req CreateLessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}

	candidate := models.Lesson{
		Title:     strings.TrimSpace(req.Title),
		TeacherID: req.TeacherID,
		RoomID:    normalizeOptional(req.RoomID),
		StartAt:   req.StartAt.UTC(),
		EndAt:     req.EndAt.UTC(),
		Status:    models.LessonScheduled,
		Notes:     req.Notes,
	}

	report, err := s.runChecks(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if !report.Clean() {
		s.metrics.RecordConflict(req.Force)
		if !req.Force {
			return nil, conflictError(report)
		}
		s.logger.Warn("lesson creation forced past conflicts",
			zap.String("teacher_id", candidate.TeacherID),
			zap.Time("start_at", candidate.StartAt),
			zap.Time("end_at", candidate.EndAt),
			zap.Int("teacher_conflicts", len(report.Teacher)),
			zap.Int("room_conflicts", len(report.Room)),
			zap.Strings("availability", report.Availability))
	}

	if err := s.repo.Create(ctx, &candidate); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lesson")
	}
	return &candidate, nil
}

// Update reschedules a lesson, re-running the conflict checks with the
// lesson's own id excluded from the collision set.
func (s *LessonService) Update(ctx context.Context, id string, req UpdateLessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}

	lesson, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if lesson.Status == models.LessonCancelled {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cancelled lesson cannot be modified")
	}

	candidate := *lesson
	candidate.Title = strings.TrimSpace(req.Title)
	candidate.TeacherID = req.TeacherID
	candidate.RoomID = normalizeOptional(req.RoomID)
	candidate.StartAt = req.StartAt.UTC()
	candidate.EndAt = req.EndAt.UTC()
	candidate.Notes = req.Notes

	report, err := s.runChecks(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if !report.Clean() {
		s.metrics.RecordConflict(req.Force)
		if !req.Force {
			return nil, conflictError(report)
		}
		s.logger.Warn("lesson update forced past conflicts",
			zap.String("lesson_id", id),
			zap.String("teacher_id", candidate.TeacherID),
			zap.Int("teacher_conflicts", len(report.Teacher)),
			zap.Int("room_conflicts", len(report.Room)),
			zap.Strings("availability", report.Availability))
	}

	if err := s.repo.Update(ctx, &candidate); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lesson")
	}
	return &candidate, nil
}

// Complete marks a scheduled lesson as held.
func (s *LessonService) Complete(ctx context.Context, id string) (*models.Lesson, error) {
	lesson, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if lesson.Status != models.LessonScheduled {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("lesson in status %s cannot be completed", lesson.Status))
	}

	lesson.Status = models.LessonCompleted
	if err := s.repo.Update(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete lesson")
	}
	return lesson, nil
}

// Cancel marks a lesson as cancelled. The record is kept; cancelled lessons
// no longer block new bookings. Cancelling twice is a no-op.
func (s *LessonService) Cancel(ctx context.Context, id string) error {
	lesson, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if lesson.Status == models.LessonCancelled {
		return nil
	}
	if err := s.repo.Cancel(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel lesson")
	}
	return nil
}

// runChecks validates the candidate interval, resolves the teacher, and runs
// the availability evaluator plus the conflict detector against the lessons
// in the surrounding window.
func (s *LessonService) runChecks(ctx context.Context, candidate models.Lesson) (models.ConflictReport, error) {
	if !candidate.StartAt.Before(candidate.EndAt) {
		return models.ConflictReport{}, appErrors.Clone(appErrors.ErrValidation, "start_at must be before end_at")
	}
	if s.config.MaxDuration > 0 && candidate.EndAt.Sub(candidate.StartAt) > s.config.MaxDuration {
		return models.ConflictReport{}, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("lesson duration exceeds the maximum of %s", s.config.MaxDuration))
	}

	teacher, err := s.teachers.Get(ctx, candidate.TeacherID)
	if err != nil {
		return models.ConflictReport{}, err
	}
	if !teacher.Active {
		return models.ConflictReport{}, appErrors.Clone(appErrors.ErrValidation, "teacher is inactive")
	}

	availability, err := schedule.CheckAvailability(teacher.WeeklyAvailability, teacher.AvailabilityExceptions, candidate.StartAt, candidate.EndAt)
	if err != nil {
		return models.ConflictReport{}, mapScheduleError(err)
	}

	from := candidate.StartAt.Add(-s.config.ConflictWindow)
	to := candidate.EndAt.Add(s.config.ConflictWindow)
	existing, err := s.repo.ListWindow(ctx, from, to)
	if err != nil {
		return models.ConflictReport{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load surrounding lessons")
	}

	report, err := schedule.DetectConflicts(candidate, existing, availability)
	if err != nil {
		return models.ConflictReport{}, mapScheduleError(err)
	}
	return report, nil
}

// conflictError wraps a conflict report so handlers render HTTP 409 with the
// full report in the error body.
func conflictError(report models.ConflictReport) error {
	domainErr := &models.LessonConflictError{
		Message: "lesson conflicts with existing bookings or teacher availability",
		Report:  report,
	}
	appErr := appErrors.Wrap(domainErr, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, domainErr.Message)
	appErr.Details = report
	return appErr
}
