package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-enrollment-sync/internal/models"
	appErrors "github.com/noah-isme/lms-enrollment-sync/pkg/errors"
)

type studentDirectory interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// ListStudentsQuery holds the accepted filters for local student listings.
type ListStudentsQuery struct {
	Search   string `validate:"omitempty,max=120"`
	Status   string `validate:"omitempty,oneof=active inactive"`
	Page     int    `validate:"omitempty,min=1"`
	PageSize int    `validate:"omitempty,min=1,max=100"`
}

// StudentService exposes the local student mirror.
type StudentService struct {
	repo      studentDirectory
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentDirectory, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, validator: validate, logger: logger}
}

// List returns mirrored students and pagination metadata.
func (s *StudentService) List(ctx context.Context, query ListStudentsQuery) ([]models.Student, *models.Pagination, error) {
	query.Search = strings.TrimSpace(query.Search)
	query.Status = strings.ToLower(strings.TrimSpace(query.Status))
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student filter")
	}
	page, size := models.NormalizePage(query.Page, query.PageSize)
	filter := models.StudentFilter{
		Search:   query.Search,
		Status:   models.StudentStatus(query.Status),
		Page:     page,
		PageSize: size,
	}
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logger.Error("list students", zap.Error(err))
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	if students == nil {
		students = []models.Student{}
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one mirrored student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}
