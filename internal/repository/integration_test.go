//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/noah-isme/lms-enrollment-sync/internal/models"
	"github.com/noah-isme/lms-enrollment-sync/pkg/config"
	"github.com/noah-isme/lms-enrollment-sync/pkg/database"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("lms_sync_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	host, err := container.Host(s.ctx)
	s.Require().NoError(err)
	port, err := container.MappedPort(s.ctx, "5432/tcp")
	s.Require().NoError(err)

	cfg := config.DatabaseConfig{
		Host:     host,
		Port:     port.Int(),
		User:     "test",
		Password: "test",
		Name:     "lms_sync_test",
		SSLMode:  "disable",
	}
	s.Require().NoError(database.Migrate(cfg, nil))

	db, err := database.NewPostgres(cfg)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM enrollments")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM students")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM courses")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM sync_runs")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) createStudent(email, number string) *models.Student {
	remote := "u-" + number
	student := &models.Student{
		RemoteID:         &remote,
		FullName:         "Student " + number,
		Email:            email,
		EnrollmentNumber: number,
	}
	s.Require().NoError(NewStudentRepository(s.db).Create(s.ctx, student))
	return student
}

func (s *PostgresIntegrationSuite) createCourse(remoteID, slug string) *models.Course {
	course := &models.Course{RemoteID: remoteID, Title: "Course " + remoteID, Slug: slug}
	s.Require().NoError(NewCourseRepository(s.db).Create(s.ctx, course))
	return course
}

func (s *PostgresIntegrationSuite) TestStudentRoundTrip() {
	repo := NewStudentRepository(s.db)
	created := s.createStudent("  Ana@Example.com ", "2024001")

	found, err := repo.FindByEmail(s.ctx, "ANA@example.com")
	s.Require().NoError(err)
	s.Equal(created.ID, found.ID)
	s.Equal("ana@example.com", found.Email)
	s.Equal(models.StudentStatusActive, found.Status)

	found.FullName = "Ana Maria"
	s.Require().NoError(repo.Update(s.ctx, found))

	reloaded, err := repo.FindByID(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal("Ana Maria", reloaded.FullName)

	students, total, err := repo.List(s.ctx, models.StudentFilter{Search: "maria"})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Len(students, 1)
}

func (s *PostgresIntegrationSuite) TestStudentUniqueEmail() {
	s.createStudent("dup@example.com", "2024001")

	err := NewStudentRepository(s.db).Create(s.ctx, &models.Student{
		FullName:         "Other",
		Email:            "DUP@example.com",
		EnrollmentNumber: "2024002",
	})
	s.Require().Error(err)
	s.True(IsUniqueViolation(err))
	s.Equal("students_email_key", ConstraintName(err))
}

func (s *PostgresIntegrationSuite) TestCourseRoundTrip() {
	repo := NewCourseRepository(s.db)
	created := s.createCourse("c-1", "go-basics")

	found, err := repo.FindByRemoteID(s.ctx, "c-1")
	s.Require().NoError(err)
	s.Equal(created.ID, found.ID)

	found.Title = "Go Basics II"
	s.Require().NoError(repo.Update(s.ctx, found))

	total, err := repo.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, total)
}

func (s *PostgresIntegrationSuite) TestEnrollmentReferences() {
	student := s.createStudent("bia@example.com", "2024010")
	course := s.createCourse("c-2", "sql-101")
	repo := NewEnrollmentRepository(s.db)

	enrollment := &models.Enrollment{
		StudentID:     student.ID,
		CourseID:      course.ID,
		PaymentMethod: models.PaymentMethodPix,
		Amount:        199.9,
	}
	s.Require().NoError(repo.Create(s.ctx, enrollment))

	remoteID := "e-77"
	s.Require().NoError(repo.AttachReferences(s.ctx, enrollment.ID, &remoteID, nil, nil))

	detail, err := repo.FindDetailByID(s.ctx, enrollment.ID)
	s.Require().NoError(err)
	s.Require().NotNil(detail.RemoteEnrollmentID)
	s.Equal("e-77", *detail.RemoteEnrollmentID)
	s.Nil(detail.ChargeID)
	s.Equal("bia@example.com", detail.StudentEmail)
	s.Equal(course.Title, detail.CourseTitle)
	s.InDelta(199.9, detail.Amount, 0.001)

	items, total, err := repo.List(s.ctx, models.EnrollmentFilter{StudentID: student.ID})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Len(items, 1)
}

func (s *PostgresIntegrationSuite) TestSyncRunRoundTrip() {
	repo := NewSyncRunRepository(s.db)
	started := time.Now().UTC().Truncate(time.Second)
	run := &models.SyncRun{
		EntityType: models.EntityCourses,
		PageSize:   50,
		Imported:   1,
		Failed:     1,
		Total:      2,
		Logs:       []string{"[OK] course c1 imported", "[ERROR] course c2: duplicate"},
		Status:     models.SyncRunPartial,
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
	}
	s.Require().NoError(repo.Create(s.ctx, run))

	found, err := repo.FindByID(s.ctx, run.ID)
	s.Require().NoError(err)
	s.Equal(run.Logs, found.Logs)
	s.Equal(models.SyncRunPartial, found.Status)

	runs, total, err := repo.List(s.ctx, models.SyncRunFilter{EntityType: models.EntityCourses})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Len(runs, 1)
}
