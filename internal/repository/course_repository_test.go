package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-enrollment-sync/internal/models"
)

func TestCourseRepositoryFindByRemoteID(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE remote_id = $1")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "remote_id", "title", "slug", "description", "status", "created_at", "updated_at", "synced_at"}).
			AddRow("id-1", "c1", "Go Basics", "go-basics", "", "active", now, now, now))

	course, err := repo.FindByRemoteID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Go Basics", course.Title)
	assert.NotNil(t, course.SyncedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryCreateAndUpdate(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec("INSERT INTO courses").
		WithArgs(sqlmock.AnyArg(), "c1", "Go Basics", "go-basics", "", models.CourseStatusActive, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE courses SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	course := &models.Course{RemoteID: "c1", Title: "Go Basics", Slug: "go-basics"}
	require.NoError(t, repo.Create(context.Background(), course))
	course.Title = "Go Basics II"
	require.NoError(t, repo.Update(context.Background(), course))
	assert.NoError(t, mock.ExpectationsWereMet())
}
