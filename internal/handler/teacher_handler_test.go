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
)

type teacherRepoStub struct {
	items map[string]*models.Teacher
}

func (s *teacherRepoStub) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	var out []models.Teacher
	for _, teacher := range s.items {
		out = append(out, *teacher)
	}
	return out, len(out), nil
}

func (s *teacherRepoStub) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	if teacher, ok := s.items[id]; ok {
		cp := *teacher
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (s *teacherRepoStub) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	return false, nil
}

func (s *teacherRepoStub) Create(ctx context.Context, teacher *models.Teacher) error {
	if s.items == nil {
		s.items = make(map[string]*models.Teacher)
	}
	if teacher.ID == "" {
		teacher.ID = "generated"
	}
	cp := *teacher
	s.items[teacher.ID] = &cp
	return nil
}

func (s *teacherRepoStub) Update(ctx context.Context, teacher *models.Teacher) error {
	cp := *teacher
	s.items[teacher.ID] = &cp
	return nil
}

func (s *teacherRepoStub) UpdateAvailability(ctx context.Context, id string, slots models.WeeklySlotList, exceptions models.ExceptionList) error {
	if teacher, ok := s.items[id]; ok {
		teacher.WeeklyAvailability = slots
		teacher.AvailabilityExceptions = exceptions
	}
	return nil
}

func (s *teacherRepoStub) Deactivate(ctx context.Context, id string) error {
	if teacher, ok := s.items[id]; ok {
		teacher.Active = false
	}
	return nil
}

func newTeacherHandlerFixture(repo *teacherRepoStub) *TeacherHandler {
	svc := service.NewTeacherService(repo, nil, nil, zap.NewNop(), time.Minute)
	return NewTeacherHandler(svc)
}

func teacherStub() *teacherRepoStub {
	return &teacherRepoStub{items: map[string]*models.Teacher{
		"t1": {
			ID: "t1", Email: "teach@example.com", FullName: "Teacher One", Active: true,
			WeeklyAvailability: models.WeeklySlotList{
				{DayOfWeek: 1, StartTime: "09:00", EndTime: "17:00"},
			},
		},
	}}
}

func TestTeacherHandlerCheckAvailability(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTeacherHandlerFixture(teacherStub())

	// Monday 2026-02-09 inside the weekly slot.
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/teachers/t1/availability/check?start=2026-02-09T10:00:00Z&end=2026-02-09T11:00:00Z", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "t1"}}

	handler.CheckAvailability(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.AvailabilityResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.True(t, envelope.Data.Available)
}

func TestTeacherHandlerCheckAvailabilityUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTeacherHandlerFixture(teacherStub())

	// Sunday: no weekly slot.
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/teachers/t1/availability/check?start=2026-02-08T10:00:00Z&end=2026-02-08T11:00:00Z", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "t1"}}

	handler.CheckAvailability(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.AvailabilityResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.False(t, envelope.Data.Available)
	assert.NotEmpty(t, envelope.Data.Reason)
}

func TestTeacherHandlerCheckAvailabilityBadQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTeacherHandlerFixture(teacherStub())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/teachers/t1/availability/check?start=tomorrow&end=2026-02-09T11:00:00Z", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "t1"}}

	handler.CheckAvailability(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTeacherHandlerReplaceAvailability(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := teacherStub()
	handler := newTeacherHandlerFixture(repo)

	payload, _ := json.Marshal(service.UpdateAvailabilityRequest{
		WeeklyAvailability: []models.WeeklySlot{
			{DayOfWeek: 3, StartTime: "08:00", EndTime: "12:00"},
		},
	})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPut, "/teachers/t1/availability", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "t1"}}

	handler.ReplaceAvailability(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, repo.items["t1"].WeeklyAvailability, 1)
	assert.Equal(t, 3, repo.items["t1"].WeeklyAvailability[0].DayOfWeek)
}

func TestTeacherHandlerReplaceAvailabilityBadSlot(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTeacherHandlerFixture(teacherStub())

	payload, _ := json.Marshal(service.UpdateAvailabilityRequest{
		WeeklyAvailability: []models.WeeklySlot{
			{DayOfWeek: 1, StartTime: "17:00", EndTime: "09:00"},
		},
	})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPut, "/teachers/t1/availability", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "t1"}}

	handler.ReplaceAvailability(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTeacherHandlerAddException(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := teacherStub()
	handler := newTeacherHandlerFixture(repo)

	payload, _ := json.Marshal(service.AddExceptionRequest{
		Kind:      models.ExceptionUnavailable,
		StartDate: "2026-02-10",
		EndDate:   "2026-02-12",
		AllDay:    true,
		Reason:    "Vacation",
	})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/teachers/t1/availability/exceptions", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "t1"}}

	handler.AddException(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, repo.items["t1"].AvailabilityExceptions, 1)
	assert.NotEmpty(t, repo.items["t1"].AvailabilityExceptions[0].ID)
}

func TestTeacherHandlerRemoveExceptionNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTeacherHandlerFixture(teacherStub())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodDelete, "/teachers/t1/availability/exceptions/ghost", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "t1"}, {Key: "exceptionId", Value: "ghost"}}

	handler.RemoveException(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}
