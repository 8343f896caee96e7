package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-enrollment-sync/internal/models"
)

const studentColumns = `id, remote_id, full_name, email, phone, document, status, enrollment_number, created_at, updated_at, synced_at`

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByEmail looks a student up by natural key. Absent students yield sql.ErrNoRows.
func (r *StudentRepository) FindByEmail(ctx context.Context, email string) (*models.Student, error) {
	query := "SELECT " + studentColumns + " FROM students WHERE LOWER(email) = $1"
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, models.NormalizeEmail(email)); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByRemoteID looks a student up by LMS user id. Absent students yield sql.ErrNoRows.
func (r *StudentRepository) FindByRemoteID(ctx context.Context, remoteID string) (*models.Student, error) {
	query := "SELECT " + studentColumns + " FROM students WHERE remote_id = $1"
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, remoteID); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByID fetches a student by surrogate id.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := "SELECT " + studentColumns + " FROM students WHERE id = $1"
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// Count returns the number of stored students.
func (r *StudentRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM students"); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return total, nil
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	var conditions []string
	var args []interface{}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(full_name) LIKE $%d OR LOWER(email) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM students%s ORDER BY full_name ASC LIMIT %d OFFSET %d", studentColumns, clause, size, offset)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM students"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	if student.Status == "" {
		student.Status = models.StudentStatusActive
	}
	student.Email = models.NormalizeEmail(student.Email)
	const query = `INSERT INTO students (id, remote_id, full_name, email, phone, document, status, enrollment_number, created_at, updated_at, synced_at)
        VALUES (:id, :remote_id, :full_name, :email, :phone, :document, :status, :enrollment_number, :created_at, :updated_at, :synced_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update rewrites the LMS-mirrored fields of a student. Local-only fields are untouched.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	student.Email = models.NormalizeEmail(student.Email)
	const query = `UPDATE students SET remote_id = :remote_id, email = :email, full_name = :full_name, phone = :phone, document = :document, updated_at = :updated_at, synced_at = :synced_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, student)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("update student %s: no rows affected", student.ID)
	}
	return nil
}
