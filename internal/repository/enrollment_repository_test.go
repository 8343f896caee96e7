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

func TestEnrollmentRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").
		WithArgs(sqlmock.AnyArg(), "s1", "c1", sqlmock.AnyArg(), models.EnrollmentStatusActive, models.PaymentMethodPix, 199.9, "", nil, nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	enrollment := &models.Enrollment{StudentID: "s1", CourseID: "c1", PaymentMethod: models.PaymentMethodPix, Amount: 199.9}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	assert.NotEmpty(t, enrollment.ID)
	assert.False(t, enrollment.StartDate.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryAttachReferences(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	remoteID := "re-1"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET")).
		WithArgs("e1", &remoteID, nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AttachReferences(context.Background(), "e1", &remoteID, nil, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListDefaults(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "student_id", "course_id", "start_date", "status", "payment_method", "amount", "observations",
		"remote_enrollment_id", "charge_id", "charge_gateway", "created_at", "updated_at", "student_name", "student_email", "course_title"}).
		AddRow("e1", "s1", "c1", now, "active", "isento", 0.0, "", nil, nil, nil, now, now, "Ana", "ana@example.com", "Go")
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY e.created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("s1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments e")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.EnrollmentFilter{StudentID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, "Go", list[0].CourseTitle)
	assert.NoError(t, mock.ExpectationsWereMet())
}
