package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aksara-edu/bimbel-api/internal/models"
	appErrors "github.com/aksara-edu/bimbel-api/pkg/errors"
)

type mockLessonRepo struct {
	items      map[string]*models.Lesson
	window     []models.Lesson
	windowFrom time.Time
	windowTo   time.Time
	created    []*models.Lesson
	updated    []*models.Lesson
	cancelled  []string
}

func (m *mockLessonRepo) List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, int, error) {
	var out []models.Lesson
	for _, lesson := range m.items {
		out = append(out, *lesson)
	}
	return out, len(out), nil
}

func (m *mockLessonRepo) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	if lesson, ok := m.items[id]; ok {
		cp := *lesson
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockLessonRepo) ListWindow(ctx context.Context, from, to time.Time) ([]models.Lesson, error) {
	m.windowFrom = from
	m.windowTo = to
	return m.window, nil
}

func (m *mockLessonRepo) Create(ctx context.Context, lesson *models.Lesson) error {
	if m.items == nil {
		m.items = make(map[string]*models.Lesson)
	}
	if lesson.ID == "" {
		lesson.ID = "generated"
	}
	cp := *lesson
	m.items[lesson.ID] = &cp
	m.created = append(m.created, &cp)
	return nil
}

func (m *mockLessonRepo) Update(ctx context.Context, lesson *models.Lesson) error {
	if m.items == nil {
		m.items = make(map[string]*models.Lesson)
	}
	cp := *lesson
	m.items[lesson.ID] = &cp
	m.updated = append(m.updated, &cp)
	return nil
}

func (m *mockLessonRepo) Cancel(ctx context.Context, id string) error {
	m.cancelled = append(m.cancelled, id)
	if lesson, ok := m.items[id]; ok {
		lesson.Status = models.LessonCancelled
	}
	return nil
}

type mockTeacherDirectory struct {
	teachers map[string]*models.Teacher
}

func (m *mockTeacherDirectory) Get(ctx context.Context, id string) (*models.Teacher, error) {
	if teacher, ok := m.teachers[id]; ok {
		cp := *teacher
		return &cp, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
}

// mondayAt returns an instant on Monday 2026-02-09 UTC.
func mondayAt(hour, minute int) time.Time {
	return time.Date(2026, time.February, 9, hour, minute, 0, 0, time.UTC)
}

func newLessonService(repo *mockLessonRepo, teachers *mockTeacherDirectory) *LessonService {
	return NewLessonService(repo, teachers, validator.New(), zap.NewNop(), nil, LessonServiceConfig{
		ConflictWindow: 24 * time.Hour,
		MaxDuration:    8 * time.Hour,
	})
}

func mondayTeachers() *mockTeacherDirectory {
	return &mockTeacherDirectory{teachers: map[string]*models.Teacher{
		"t1": {
			ID:       "t1",
			FullName: "Teacher One",
			Active:   true,
			WeeklyAvailability: models.WeeklySlotList{
				{DayOfWeek: 1, StartTime: "09:00", EndTime: "17:00"},
			},
		},
	}}
}

func TestLessonServiceCreateClean(t *testing.T) {
	repo := &mockLessonRepo{}
	service := newLessonService(repo, mondayTeachers())

	lesson, err := service.Create(context.Background(), CreateLessonRequest{
		Title:     "Algebra",
		TeacherID: "t1",
		StartAt:   mondayAt(10, 0),
		EndAt:     mondayAt(11, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, models.LessonScheduled, lesson.Status)
	assert.Len(t, repo.created, 1)
}

func TestLessonServiceCreateTeacherOverlapBlocked(t *testing.T) {
	room := "r1"
	repo := &mockLessonRepo{window: []models.Lesson{
		{ID: "l1", TeacherID: "t1", RoomID: &room, StartAt: mondayAt(10, 30), EndAt: mondayAt(11, 30), Status: models.LessonScheduled},
	}}
	service := newLessonService(repo, mondayTeachers())

	_, err := service.Create(context.Background(), CreateLessonRequest{
		Title:     "Algebra",
		TeacherID: "t1",
		StartAt:   mondayAt(10, 0),
		EndAt:     mondayAt(11, 0),
	})
	require.Error(t, err)
	assert.Empty(t, repo.created)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, 409, appErr.Status)

	var conflict *models.LessonConflictError
	require.True(t, errors.As(err, &conflict))
	require.Len(t, conflict.Report.Teacher, 1)
	assert.Equal(t, "l1", conflict.Report.Teacher[0].ID)
	assert.Empty(t, conflict.Report.Room)
}

func TestLessonServiceCreateForced(t *testing.T) {
	repo := &mockLessonRepo{window: []models.Lesson{
		{ID: "l1", TeacherID: "t1", StartAt: mondayAt(10, 30), EndAt: mondayAt(11, 30), Status: models.LessonScheduled},
	}}
	service := newLessonService(repo, mondayTeachers())

	lesson, err := service.Create(context.Background(), CreateLessonRequest{
		Title:     "Algebra",
		TeacherID: "t1",
		StartAt:   mondayAt(10, 0),
		EndAt:     mondayAt(11, 0),
		Force:     true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, lesson.ID)
	assert.Len(t, repo.created, 1)
}

func TestLessonServiceCreateRoomConflict(t *testing.T) {
	room := "r1"
	repo := &mockLessonRepo{window: []models.Lesson{
		{ID: "l1", TeacherID: "t2", RoomID: &room, StartAt: mondayAt(10, 0), EndAt: mondayAt(12, 0), Status: models.LessonScheduled},
	}}
	service := newLessonService(repo, mondayTeachers())

	_, err := service.Create(context.Background(), CreateLessonRequest{
		Title:     "Algebra",
		TeacherID: "t1",
		RoomID:    &room,
		StartAt:   mondayAt(10, 0),
		EndAt:     mondayAt(11, 0),
	})
	require.Error(t, err)

	var conflict *models.LessonConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Empty(t, conflict.Report.Teacher)
	require.Len(t, conflict.Report.Room, 1)
	assert.Equal(t, "l1", conflict.Report.Room[0].ID)
}

func TestLessonServiceCreateOutsideAvailability(t *testing.T) {
	repo := &mockLessonRepo{}
	service := newLessonService(repo, mondayTeachers())

	// Sunday: no weekly slot covers it.
	sunday := time.Date(2026, time.February, 8, 10, 0, 0, 0, time.UTC)
	_, err := service.Create(context.Background(), CreateLessonRequest{
		Title:     "Algebra",
		TeacherID: "t1",
		StartAt:   sunday,
		EndAt:     sunday.Add(time.Hour),
	})
	require.Error(t, err)

	var conflict *models.LessonConflictError
	require.True(t, errors.As(err, &conflict))
	assert.NotEmpty(t, conflict.Report.Availability)
	assert.Empty(t, repo.created)
}

func TestLessonServiceCreateCancelledLessonIgnored(t *testing.T) {
	repo := &mockLessonRepo{window: []models.Lesson{
		{ID: "l1", TeacherID: "t1", StartAt: mondayAt(10, 0), EndAt: mondayAt(11, 0), Status: models.LessonCancelled},
	}}
	service := newLessonService(repo, mondayTeachers())

	_, err := service.Create(context.Background(), CreateLessonRequest{
		Title:     "Algebra",
		TeacherID: "t1",
		StartAt:   mondayAt(10, 0),
		EndAt:     mondayAt(11, 0),
	})
	require.NoError(t, err)
}

func TestLessonServiceCreateInvalidInterval(t *testing.T) {
	repo := &mockLessonRepo{}
	service := newLessonService(repo, mondayTeachers())

	_, err := service.Create(context.Background(), CreateLessonRequest{
		Title:     "Algebra",
		TeacherID: "t1",
		StartAt:   mondayAt(11, 0),
		EndAt:     mondayAt(10, 0),
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Empty(t, repo.created)
}

func TestLessonServiceCreateExceedsMaxDuration(t *testing.T) {
	repo := &mockLessonRepo{}
	service := newLessonService(repo, mondayTeachers())

	_, err := service.Create(context.Background(), CreateLessonRequest{
		Title:     "Marathon",
		TeacherID: "t1",
		StartAt:   mondayAt(9, 0),
		EndAt:     mondayAt(9, 0).Add(9 * time.Hour),
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestLessonServiceCreateInactiveTeacher(t *testing.T) {
	teachers := mondayTeachers()
	teachers.teachers["t1"].Active = false
	service := newLessonService(&mockLessonRepo{}, teachers)

	_, err := service.Create(context.Background(), CreateLessonRequest{
		Title:     "Algebra",
		TeacherID: "t1",
		StartAt:   mondayAt(10, 0),
		EndAt:     mondayAt(11, 0),
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestLessonServiceCreateUnknownTeacher(t *testing.T) {
	service := newLessonService(&mockLessonRepo{}, &mockTeacherDirectory{})

	_, err := service.Create(context.Background(), CreateLessonRequest{
		Title:     "Algebra",
		TeacherID: "ghost",
		StartAt:   mondayAt(10, 0),
		EndAt:     mondayAt(11, 0),
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestLessonServiceCreateWindowBounds(t *testing.T) {
	repo := &mockLessonRepo{}
	service := newLessonService(repo, mondayTeachers())

	start := mondayAt(10, 0)
	end := mondayAt(11, 0)
	_, err := service.Create(context.Background(), CreateLessonRequest{
		Title:     "Algebra",
		TeacherID: "t1",
		StartAt:   start,
		EndAt:     end,
	})
	require.NoError(t, err)
	assert.Equal(t, start.Add(-24*time.Hour), repo.windowFrom)
	assert.Equal(t, end.Add(24*time.Hour), repo.windowTo)
}

func TestLessonServiceUpdateExcludesSelf(t *testing.T) {
	existing := &models.Lesson{
		ID: "l1", Title: "Algebra", TeacherID: "t1",
		StartAt: mondayAt(10, 0), EndAt: mondayAt(11, 0), Status: models.LessonScheduled,
	}
	repo := &mockLessonRepo{
		items:  map[string]*models.Lesson{"l1": existing},
		window: []models.Lesson{*existing},
	}
	service := newLessonService(repo, mondayTeachers())

	updated, err := service.Update(context.Background(), "l1", UpdateLessonRequest{
		Title:     "Algebra",
		TeacherID: "t1",
		StartAt:   mondayAt(10, 30),
		EndAt:     mondayAt(11, 30),
	})
	require.NoError(t, err)
	assert.Equal(t, mondayAt(10, 30), updated.StartAt)
	assert.Len(t, repo.updated, 1)
}

func TestLessonServiceUpdateConflictBlocked(t *testing.T) {
	existing := &models.Lesson{
		ID: "l1", Title: "Algebra", TeacherID: "t1",
		StartAt: mondayAt(10, 0), EndAt: mondayAt(11, 0), Status: models.LessonScheduled,
	}
	other := models.Lesson{
		ID: "l2", TeacherID: "t1",
		StartAt: mondayAt(13, 0), EndAt: mondayAt(14, 0), Status: models.LessonScheduled,
	}
	repo := &mockLessonRepo{
		items:  map[string]*models.Lesson{"l1": existing},
		window: []models.Lesson{*existing, other},
	}
	service := newLessonService(repo, mondayTeachers())

	_, err := service.Update(context.Background(), "l1", UpdateLessonRequest{
		Title:     "Algebra",
		TeacherID: "t1",
		StartAt:   mondayAt(13, 30),
		EndAt:     mondayAt(14, 30),
	})
	require.Error(t, err)

	var conflict *models.LessonConflictError
	require.True(t, errors.As(err, &conflict))
	require.Len(t, conflict.Report.Teacher, 1)
	assert.Equal(t, "l2", conflict.Report.Teacher[0].ID)
}

func TestLessonServiceUpdateCancelledLesson(t *testing.T) {
	repo := &mockLessonRepo{items: map[string]*models.Lesson{
		"l1": {ID: "l1", Title: "Algebra", TeacherID: "t1", StartAt: mondayAt(10, 0), EndAt: mondayAt(11, 0), Status: models.LessonCancelled},
	}}
	service := newLessonService(repo, mondayTeachers())

	_, err := service.Update(context.Background(), "l1", UpdateLessonRequest{
		Title:     "Algebra",
		TeacherID: "t1",
		StartAt:   mondayAt(10, 0),
		EndAt:     mondayAt(11, 0),
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestLessonServiceComplete(t *testing.T) {
	repo := &mockLessonRepo{items: map[string]*models.Lesson{
		"l1": {ID: "l1", Title: "Algebra", TeacherID: "t1", StartAt: mondayAt(10, 0), EndAt: mondayAt(11, 0), Status: models.LessonScheduled},
	}}
	service := newLessonService(repo, mondayTeachers())

	lesson, err := service.Complete(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, models.LessonCompleted, lesson.Status)

	_, err = service.Complete(context.Background(), "l1")
	require.Error(t, err)
}

func TestLessonServiceCancel(t *testing.T) {
	repo := &mockLessonRepo{items: map[string]*models.Lesson{
		"l1": {ID: "l1", Title: "Algebra", TeacherID: "t1", StartAt: mondayAt(10, 0), EndAt: mondayAt(11, 0), Status: models.LessonScheduled},
	}}
	service := newLessonService(repo, mondayTeachers())

	require.NoError(t, service.Cancel(context.Background(), "l1"))
	assert.Equal(t, []string{"l1"}, repo.cancelled)

	// Cancelling again is a no-op.
	require.NoError(t, service.Cancel(context.Background(), "l1"))
	assert.Equal(t, []string{"l1"}, repo.cancelled)
}

func TestLessonServiceCancelNotFound(t *testing.T) {
	service := newLessonService(&mockLessonRepo{}, mondayTeachers())

	err := service.Cancel(context.Background(), "missing")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
