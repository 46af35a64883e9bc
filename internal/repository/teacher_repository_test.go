package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aksara-edu/bimbel-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func teacherRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "full_name", "phone", "subjects", "active", "weekly_availability", "availability_exceptions", "created_at", "updated_at"})
}

func TestTeacherRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	rows := teacherRows().
		AddRow("t1", "a@example.com", "Teacher A", nil, nil, true, []byte(`[]`), []byte(`[]`), time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, full_name, phone, subjects, active, weekly_availability, availability_exceptions, created_at, updated_at FROM teachers WHERE 1=1 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM teachers WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.TeacherFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryFindByIDDecodesAvailability(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	weekly := []byte(`[{"day_of_week":1,"start_time":"09:00","end_time":"17:00"}]`)
	exceptions := []byte(`[{"id":"e1","kind":"UNAVAILABLE","start_date":"2026-02-10","end_date":"2026-02-14","all_day":true,"reason":"Vacation"}]`)
	rows := teacherRows().
		AddRow("t1", "a@example.com", "Teacher A", nil, nil, true, weekly, exceptions, time.Now(), time.Now())
	mock.ExpectQuery("SELECT .+ FROM teachers WHERE id =").
		WithArgs("t1").
		WillReturnRows(rows)

	teacher, err := repo.FindByID(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, teacher.WeeklyAvailability, 1)
	assert.Equal(t, "09:00", teacher.WeeklyAvailability[0].StartTime)
	require.Len(t, teacher.AvailabilityExceptions, 1)
	assert.Equal(t, models.ExceptionUnavailable, teacher.AvailabilityExceptions[0].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryUpdateAvailability(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectExec("UPDATE teachers SET weekly_availability =").
		WithArgs("t1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	slots := models.WeeklySlotList{{DayOfWeek: 1, StartTime: "09:00", EndTime: "17:00"}}
	err := repo.UpdateAvailability(context.Background(), "t1", slots, models.ExceptionList{})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryCreateAndDeactivate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectExec("INSERT INTO teachers").
		WithArgs(sqlmock.AnyArg(), "a@example.com", "Teacher A", sqlmock.AnyArg(), sqlmock.AnyArg(), true, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), &models.Teacher{Email: "a@example.com", FullName: "Teacher A", Active: true})
	require.NoError(t, err)

	mock.ExpectExec("UPDATE teachers SET active = FALSE").
		WithArgs("t1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Deactivate(context.Background(), "t1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
