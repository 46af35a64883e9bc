package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aksara-edu/bimbel-api/internal/models"
	"github.com/aksara-edu/bimbel-api/internal/schedule"
	appErrors "github.com/aksara-edu/bimbel-api/pkg/errors"
)

type teacherRepository interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	Update(ctx context.Context, teacher *models.Teacher) error
	UpdateAvailability(ctx context.Context, id string, slots models.WeeklySlotList, exceptions models.ExceptionList) error
	Deactivate(ctx context.Context, id string) error
}

type teacherCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CreateTeacherRequest represents payload for creating teachers.
type CreateTeacherRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	FullName string  `json:"full_name" validate:"required"`
	Phone    *string `json:"phone" validate:"omitempty,max=50"`
	Subjects *string `json:"subjects" validate:"omitempty,max=500"`
}

// UpdateTeacherRequest represents payload for updating teachers.
type UpdateTeacherRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	FullName string  `json:"full_name" validate:"required"`
	Phone    *string `json:"phone" validate:"omitempty,max=50"`
	Subjects *string `json:"subjects" validate:"omitempty,max=500"`
	Active   *bool   `json:"active"`
}

// UpdateAvailabilityRequest replaces a teacher's weekly schedule wholesale.
type UpdateAvailabilityRequest struct {
	WeeklyAvailability []models.WeeklySlot `json:"weekly_availability" validate:"dive"`
}

// AddExceptionRequest adds a dated override on top of the weekly schedule.
type AddExceptionRequest struct {
	Kind      models.ExceptionKind `json:"kind" validate:"required,oneof=UNAVAILABLE AVAILABLE"`
	StartDate string               `json:"start_date" validate:"required"`
	EndDate   string               `json:"end_date" validate:"required"`
	AllDay    bool                 `json:"all_day"`
	StartTime string               `json:"start_time"`
	EndTime   string               `json:"end_time"`
	Reason    string               `json:"reason" validate:"omitempty,max=500"`
}

// TeacherService orchestrates teacher operations, including the availability
// rules the scheduling engine evaluates. Reads go through a Redis cache;
// every mutation invalidates the cached record.
type TeacherService struct {
	repo      teacherRepository
	cache     teacherCache
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
}

// NewTeacherService constructs a TeacherService. The cache may be nil, in
// which case every read hits the database.
func NewTeacherService(repo teacherRepository, cache teacherCache, validate *validator.Validate, logger *zap.Logger, cacheTTL time.Duration) *TeacherService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{repo: repo, cache: cache, validator: validate, logger: logger, cacheTTL: cacheTTL}
}

func teacherCacheKey(id string) string {
	return "teacher:" + id
}

// List returns teachers plus pagination data.
func (s *TeacherService) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error) {
	teachers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
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
	return teachers, pagination, nil
}

// Get returns a teacher by id, serving from cache when possible.
func (s *TeacherService) Get(ctx context.Context, id string) (*models.Teacher, error) {
	key := teacherCacheKey(id)
	if s.cache != nil {
		var cached models.Teacher
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("teacher cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, teacher, s.cacheTTL); err != nil {
			s.logger.Warn("teacher cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return teacher, nil
}

// Create registers a new teacher record with an empty availability schedule.
func (s *TeacherService) Create(ctx context.Context, req CreateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}
	if err := s.ensureUniqueEmail(ctx, req.Email, ""); err != nil {
		return nil, err
	}

	teacher := &models.Teacher{
		Email:                  strings.TrimSpace(req.Email),
		FullName:               strings.TrimSpace(req.FullName),
		Active:                 true,
		WeeklyAvailability:     models.WeeklySlotList{},
		AvailabilityExceptions: models.ExceptionList{},
	}
	teacher.Phone = normalizeOptional(req.Phone)
	teacher.Subjects = normalizeOptional(req.Subjects)

	if err := s.repo.Create(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}
	return teacher, nil
}

// Update modifies an existing teacher's profile fields. Availability documents
// are managed through the dedicated availability operations.
func (s *TeacherService) Update(ctx context.Context, id string, req UpdateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	teacher, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.ensureUniqueEmail(ctx, req.Email, id); err != nil {
		return nil, err
	}

	teacher.Email = strings.TrimSpace(req.Email)
	teacher.FullName = strings.TrimSpace(req.FullName)
	teacher.Phone = normalizeOptional(req.Phone)
	teacher.Subjects = normalizeOptional(req.Subjects)
	if req.Active != nil {
		teacher.Active = *req.Active
	}

	if err := s.repo.Update(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher")
	}
	s.invalidate(ctx, id)
	return teacher, nil
}

// Deactivate marks a teacher inactive. Existing lessons are untouched.
func (s *TeacherService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.findByID(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate teacher")
	}
	s.invalidate(ctx, id)
	return nil
}

// ReplaceWeeklyAvailability swaps the teacher's recurring schedule for the
// provided one. The exception list is left as is.
func (s *TeacherService) ReplaceWeeklyAvailability(ctx context.Context, id string, req UpdateAvailabilityRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
	}
	if err := validateWeeklySlots(req.WeeklyAvailability); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	teacher, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}

	teacher.WeeklyAvailability = models.WeeklySlotList(req.WeeklyAvailability)
	if teacher.WeeklyAvailability == nil {
		teacher.WeeklyAvailability = models.WeeklySlotList{}
	}

	if err := s.repo.UpdateAvailability(ctx, id, teacher.WeeklyAvailability, teacher.AvailabilityExceptions); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update availability")
	}
	s.invalidate(ctx, id)
	return teacher, nil
}

// AddException appends a dated availability override and returns it.
func (s *TeacherService) AddException(ctx context.Context, id string, req AddExceptionRequest) (*models.AvailabilityException, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exception payload")
	}
	if err := validateException(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	teacher, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}

	exception := models.AvailabilityException{
		ID:        uuid.NewString(),
		Kind:      req.Kind,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		AllDay:    req.AllDay,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Reason:    strings.TrimSpace(req.Reason),
	}
	teacher.AvailabilityExceptions = append(teacher.AvailabilityExceptions, exception)

	if err := s.repo.UpdateAvailability(ctx, id, teacher.WeeklyAvailability, teacher.AvailabilityExceptions); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add exception")
	}
	s.invalidate(ctx, id)
	return &exception, nil
}

// RemoveException deletes an availability override by id.
func (s *TeacherService) RemoveException(ctx context.Context, id, exceptionID string) error {
	teacher, err := s.findByID(ctx, id)
	if err != nil {
		return err
	}

	kept := make(models.ExceptionList, 0, len(teacher.AvailabilityExceptions))
	for _, ex := range teacher.AvailabilityExceptions {
		if ex.ID != exceptionID {
			kept = append(kept, ex)
		}
	}
	if len(kept) == len(teacher.AvailabilityExceptions) {
		return appErrors.Clone(appErrors.ErrNotFound, "availability exception not found")
	}

	if err := s.repo.UpdateAvailability(ctx, id, teacher.WeeklyAvailability, kept); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove exception")
	}
	s.invalidate(ctx, id)
	return nil
}

// CheckAvailability runs the availability evaluator for a candidate interval
// without touching lessons. Used by the UI to probe before booking.
func (s *TeacherService) CheckAvailability(ctx context.Context, id string, start, end time.Time) (*models.AvailabilityResult, error) {
	teacher, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	result, err := schedule.CheckAvailability(teacher.WeeklyAvailability, teacher.AvailabilityExceptions, start, end)
	if err != nil {
		return nil, mapScheduleError(err)
	}
	return &result, nil
}

func (s *TeacherService) findByID(ctx context.Context, id string) (*models.Teacher, error) {
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

func (s *TeacherService) ensureUniqueEmail(ctx context.Context, email, excludeID string) error {
	exists, err := s.repo.ExistsByEmail(ctx, email, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "email already used")
	}
	return nil
}

func (s *TeacherService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, teacherCacheKey(id)); err != nil {
		s.logger.Warn("teacher cache invalidation failed", zap.String("teacher_id", id), zap.Error(err))
	}
}

func validateWeeklySlots(slots []models.WeeklySlot) error {
	for i, slot := range slots {
		if slot.DayOfWeek < 0 || slot.DayOfWeek > 6 {
			return fmt.Errorf("slot %d: day_of_week must be between 0 and 6", i)
		}
		start, err := schedule.ParseClock(slot.StartTime)
		if err != nil {
			return fmt.Errorf("slot %d: %w", i, err)
		}
		end, err := schedule.ParseClock(slot.EndTime)
		if err != nil {
			return fmt.Errorf("slot %d: %w", i, err)
		}
		if start >= end {
			return fmt.Errorf("slot %d: start_time must be before end_time", i)
		}
	}
	return nil
}

func validateException(req AddExceptionRequest) error {
	startDate, err := schedule.ParseDate(req.StartDate)
	if err != nil {
		return err
	}
	endDate, err := schedule.ParseDate(req.EndDate)
	if err != nil {
		return err
	}
	if startDate.After(endDate) {
		return errors.New("start_date must not be after end_date")
	}

	if req.AllDay {
		if req.StartTime != "" || req.EndTime != "" {
			return errors.New("all-day exception must not carry start_time or end_time")
		}
		return nil
	}

	start, err := schedule.ParseClock(req.StartTime)
	if err != nil {
		return err
	}
	end, err := schedule.ParseClock(req.EndTime)
	if err != nil {
		return err
	}
	if start >= end {
		return errors.New("start_time must be before end_time")
	}
	return nil
}

// mapScheduleError converts the evaluator's sentinel errors into validation
// failures; anything else is an internal error.
func mapScheduleError(err error) error {
	if errors.Is(err, schedule.ErrInvalidInterval) || errors.Is(err, schedule.ErrInvalidClock) || errors.Is(err, schedule.ErrInvalidDate) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "availability evaluation failed")
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
