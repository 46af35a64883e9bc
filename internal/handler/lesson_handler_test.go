package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aksara-edu/bimbel-api/internal/models"
	"github.com/aksara-edu/bimbel-api/internal/service"
	appErrors "github.com/aksara-edu/bimbel-api/pkg/errors"
)

type lessonRepoStub struct {
	items   map[string]*models.Lesson
	window  []models.Lesson
	created []*models.Lesson
}

func (s *lessonRepoStub) List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, int, error) {
	var out []models.Lesson
	for _, lesson := range s.items {
		out = append(out, *lesson)
	}
	return out, len(out), nil
}

func (s *lessonRepoStub) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	if lesson, ok := s.items[id]; ok {
		cp := *lesson
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (s *lessonRepoStub) ListWindow(ctx context.Context, from, to time.Time) ([]models.Lesson, error) {
	return s.window, nil
}

func (s *lessonRepoStub) Create(ctx context.Context, lesson *models.Lesson) error {
	if s.items == nil {
		s.items = make(map[string]*models.Lesson)
	}
	if lesson.ID == "" {
		lesson.ID = "generated"
	}
	cp := *lesson
	s.items[lesson.ID] = &cp
	s.created = append(s.created, &cp)
	return nil
}

func (s *lessonRepoStub) Update(ctx context.Context, lesson *models.Lesson) error {
	cp := *lesson
	s.items[lesson.ID] = &cp
	return nil
}

func (s *lessonRepoStub) Cancel(ctx context.Context, id string) error {
	if lesson, ok := s.items[id]; ok {
		lesson.Status = models.LessonCancelled
	}
	return nil
}

type teacherDirectoryStub struct {
	teachers map[string]*models.Teacher
}

func (s *teacherDirectoryStub) Get(ctx context.Context, id string) (*models.Teacher, error) {
	if teacher, ok := s.teachers[id]; ok {
		cp := *teacher
		return &cp, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
}

// monday is 2026-02-09 UTC; the stub teacher works 09:00-17:00 that day.
var monday = time.Date(2026, time.February, 9, 0, 0, 0, 0, time.UTC)

func newLessonHandlerFixture(repo *lessonRepoStub) *LessonHandler {
	teachers := &teacherDirectoryStub{teachers: map[string]*models.Teacher{
		"t1": {
			ID: "t1", FullName: "Teacher One", Active: true,
			WeeklyAvailability: models.WeeklySlotList{
				{DayOfWeek: 1, StartTime: "09:00", EndTime: "17:00"},
			},
		},
	}}
	svc := service.NewLessonService(repo, teachers, nil, zap.NewNop(), nil, service.LessonServiceConfig{
		ConflictWindow: 24 * time.Hour,
	})
	return NewLessonHandler(svc)
}

func postLesson(t *testing.T, handler *LessonHandler, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/lessons", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	return w
}

func TestLessonHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &lessonRepoStub{}
	handler := newLessonHandlerFixture(repo)

	w := postLesson(t, handler, service.CreateLessonRequest{
		Title:     "Algebra",
		TeacherID: "t1",
		StartAt:   monday.Add(10 * time.Hour),
		EndAt:     monday.Add(11 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, repo.created, 1)
}

func TestLessonHandlerCreateConflictReport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &lessonRepoStub{window: []models.Lesson{
		{ID: "l1", TeacherID: "t1", StartAt: monday.Add(10 * time.Hour), EndAt: monday.Add(12 * time.Hour), Status: models.LessonScheduled},
	}}
	handler := newLessonHandlerFixture(repo)

	w := postLesson(t, handler, service.CreateLessonRequest{
		Title:     "Algebra",
		TeacherID: "t1",
		StartAt:   monday.Add(10 * time.Hour),
		EndAt:     monday.Add(11 * time.Hour),
	})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, repo.created)

	var envelope struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, appErrors.ErrConflict.Code, envelope.Error.Code)

	details, ok := envelope.Error.Details.(map[string]interface{})
	require.True(t, ok)
	teacherConflicts, ok := details["teacher"].([]interface{})
	require.True(t, ok)
	assert.Len(t, teacherConflicts, 1)
}

func TestLessonHandlerCreateForced(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &lessonRepoStub{window: []models.Lesson{
		{ID: "l1", TeacherID: "t1", StartAt: monday.Add(10 * time.Hour), EndAt: monday.Add(12 * time.Hour), Status: models.LessonScheduled},
	}}
	handler := newLessonHandlerFixture(repo)

	w := postLesson(t, handler, service.CreateLessonRequest{
		Title:     "Algebra",
		TeacherID: "t1",
		StartAt:   monday.Add(10 * time.Hour),
		EndAt:     monday.Add(11 * time.Hour),
		Force:     true,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, repo.created, 1)
}

func TestLessonHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newLessonHandlerFixture(&lessonRepoStub{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/lessons", bytes.NewBufferString(`{"title":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLessonHandlerDeleteCancels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &lessonRepoStub{items: map[string]*models.Lesson{
		"l1": {ID: "l1", Title: "Algebra", TeacherID: "t1", StartAt: monday.Add(10 * time.Hour), EndAt: monday.Add(11 * time.Hour), Status: models.LessonScheduled},
	}}
	handler := newLessonHandlerFixture(repo)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodDelete, "/lessons/l1", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "l1"}}

	handler.Delete(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, models.LessonCancelled, repo.items["l1"].Status)
}

func TestLessonHandlerListBadFromParam(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newLessonHandlerFixture(&lessonRepoStub{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/lessons?from=yesterday", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
