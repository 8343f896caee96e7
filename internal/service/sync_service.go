package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-enrollment-sync/internal/degraded"
	"github.com/noah-isme/lms-enrollment-sync/internal/models"
	"github.com/noah-isme/lms-enrollment-sync/internal/publisher"
	"github.com/noah-isme/lms-enrollment-sync/internal/repository"
	"github.com/noah-isme/lms-enrollment-sync/pkg/config"
	appErrors "github.com/noah-isme/lms-enrollment-sync/pkg/errors"
)

type remoteRecordSource interface {
	ListStudents(ctx context.Context, page, pageSize int) (*models.RemotePage[models.RemoteStudent], error)
	ListCourses(ctx context.Context, page, pageSize int) (*models.RemotePage[models.RemoteCourse], error)
}

type studentStore interface {
	FindByEmail(ctx context.Context, email string) (*models.Student, error)
	FindByRemoteID(ctx context.Context, remoteID string) (*models.Student, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
}

type courseStore interface {
	FindByRemoteID(ctx context.Context, remoteID string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
}

type syncRunWriter interface {
	Create(ctx context.Context, run *models.SyncRun) error
}

type eventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload interface{}) error
}

type catalogCache interface {
	InvalidateCache(ctx context.Context)
}

// SyncOptions controls a single Synchronize call.
type SyncOptions struct {
	FullSync bool `json:"full_sync"`
	PageSize int  `json:"page_size"`
	// Offline is the explicit connectivity flag. When set the LMS is not called.
	Offline bool `json:"-"`
}

type recordOutcome int

const (
	recordCreated recordOutcome = iota
	recordUpdated
	recordFailed
)

// SyncService reconciles LMS students and courses into the local store.
type SyncService struct {
	source    remoteRecordSource
	students  studentStore
	courses   courseStore
	runs      syncRunWriter
	events    eventPublisher
	metrics   *MetricsService
	catalog   catalogCache
	cfg       config.SyncConfig
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewSyncService constructs the reconciler. runs, events and metrics are optional.
func NewSyncService(source remoteRecordSource, students studentStore, courses courseStore, runs syncRunWriter, events eventPublisher, metrics *MetricsService, cfg config.SyncConfig, validate *validator.Validate, logger *zap.Logger) *SyncService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{
		source:    source,
		students:  students,
		courses:   courses,
		runs:      runs,
		events:    events,
		metrics:   metrics,
		cfg:       cfg,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// UseCatalogCache makes every successful run drop the cached LMS listings.
func (s *SyncService) UseCatalogCache(catalog catalogCache) {
	s.catalog = catalog
}

// DefaultPageSize returns the configured page size used when callers send none.
func (s *SyncService) DefaultPageSize() int {
	if s.cfg.DefaultPageSize > 0 {
		return s.cfg.DefaultPageSize
	}
	return 50
}

// Synchronize pulls one entity type from the LMS and upserts it locally.
// Per-record failures are counted in the result; the error return is reserved
// for transport failures, cancellation, offline mode and invalid options, and
// in those cases the partial result is still returned.
func (s *SyncService) Synchronize(ctx context.Context, entity models.EntityType, opts SyncOptions) (*models.SyncResult, error) {
	if _, err := models.ParseEntityType(string(entity)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unknown entity type")
	}
	if opts.PageSize <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "page_size must be positive")
	}
	if s.cfg.MaxPageSize > 0 && opts.PageSize > s.cfg.MaxPageSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("page_size must not exceed %d", s.cfg.MaxPageSize))
	}

	result := &models.SyncResult{
		EntityType: entity,
		FullSync:   opts.FullSync,
		Logs:       []string{},
		StartedAt:  s.now(),
	}

	var err error
	switch {
	case opts.Offline:
		result.Logs = append(result.Logs, fmt.Sprintf("%s LMS offline: %s not synchronized, simulated data is never imported", models.SyncLogError, entity))
		err = appErrors.Clone(appErrors.ErrTransportUnavailable, "lms offline, synchronization skipped")
	case entity == models.EntityStudents:
		err = syncPages(ctx, s, opts, result, s.source.ListStudents, s.applyStudent)
	default:
		err = syncPages(ctx, s, opts, result, s.source.ListCourses, s.applyCourse)
	}
	result.FinishedAt = s.now()

	s.finish(ctx, result, opts, err)
	return result, err
}

func syncPages[T any](
	ctx context.Context,
	s *SyncService,
	opts SyncOptions,
	result *models.SyncResult,
	fetch func(context.Context, int, int) (*models.RemotePage[T], error),
	apply func(context.Context, T) (recordOutcome, string),
) error {
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return cancelled(result, page, err)
		}

		remoteCtx, cancel := s.remoteContext(ctx)
		batch, err := fetch(remoteCtx, page, opts.PageSize)
		cancel()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return cancelled(result, page, ctxErr)
			}
			result.Logs = append(result.Logs, fmt.Sprintf("%s page %d: %v", models.SyncLogError, page, err))
			return fmt.Errorf("fetch %s page %d: %w", result.EntityType, page, err)
		}

		// A started page is applied in full; cancellation is honoured between pages.
		recordCtx := context.WithoutCancel(ctx)
		for _, record := range batch.Data {
			result.Total++
			outcome, line := apply(recordCtx, record)
			switch outcome {
			case recordCreated:
				result.Imported++
			case recordUpdated:
				result.Updated++
			default:
				result.Failed++
			}
			result.Logs = append(result.Logs, line)
		}

		if !opts.FullSync || len(batch.Data) == 0 {
			break
		}
		if batch.Pages > 0 && page >= batch.Pages {
			break
		}
		if batch.Pages == 0 && len(batch.Data) < opts.PageSize {
			break
		}
	}

	if result.Total == 0 {
		result.Logs = append(result.Logs, fmt.Sprintf("%s LMS returned no %s", models.SyncLogInfo, result.EntityType))
	}
	return nil
}

func cancelled(result *models.SyncResult, page int, cause error) error {
	result.Cancelled = true
	result.Logs = append(result.Logs, fmt.Sprintf("%s synchronization cancelled before page %d", models.SyncLogInfo, page))
	return appErrors.WrapAs(appErrors.ErrSyncCancelled, cause, "")
}

func (s *SyncService) applyStudent(ctx context.Context, remote models.RemoteStudent) (recordOutcome, string) {
	label := fmt.Sprintf("student %s", remote.ID)
	if remote.Simulated || degraded.IsSimulatedID(remote.ID) {
		return recordFailed, failLine(label, errors.New("simulated record refused"))
	}
	if err := s.validator.Struct(remote); err != nil {
		return recordFailed, failLine(label, fmt.Errorf("invalid record: %w", err))
	}
	email := models.NormalizeEmail(remote.Email)
	label = fmt.Sprintf("student %s <%s>", remote.ID, email)

	existing, err := s.findStudent(ctx, email)
	switch {
	case err == nil:
		if err := s.updateStudent(ctx, existing, remote); err != nil {
			return recordFailed, failLine(label, err)
		}
		return recordUpdated, okLine(label, "updated")
	case !errors.Is(err, sql.ErrNoRows):
		return recordFailed, failLine(label, err)
	}

	student := s.newStudent(remote, email)
	err = s.createStudent(ctx, student)
	if err == nil {
		return recordCreated, okLine(label, "created")
	}
	if !repository.IsUniqueViolation(err) {
		return recordFailed, failLine(label, err)
	}

	existing, lookupErr := s.findStudent(ctx, email)
	if lookupErr == nil {
		if err := s.updateStudent(ctx, existing, remote); err != nil {
			return recordFailed, failLine(label, err)
		}
		return recordUpdated, okLine(label, "updated after concurrent insert")
	}

	// The LMS user is already linked under another email: the address changed remotely.
	linked, linkErr := s.findStudentByRemoteID(ctx, remote.ID)
	if linkErr != nil {
		return recordFailed, failLine(label, appErrors.WrapAs(appErrors.ErrRecordRejected, err, ""))
	}
	if err := s.updateStudent(ctx, linked, remote); err != nil {
		return recordFailed, failLine(label, err)
	}
	return recordUpdated, okLine(label, "updated, email changed")
}

func (s *SyncService) applyCourse(ctx context.Context, remote models.RemoteCourse) (recordOutcome, string) {
	label := fmt.Sprintf("course %s", remote.ID)
	if remote.Simulated || degraded.IsSimulatedID(remote.ID) {
		return recordFailed, failLine(label, errors.New("simulated record refused"))
	}
	if err := s.validator.Struct(remote); err != nil {
		return recordFailed, failLine(label, fmt.Errorf("invalid record: %w", err))
	}
	label = fmt.Sprintf("course %s %q", remote.ID, remote.Title)

	existing, err := s.findCourse(ctx, remote.ID)
	switch {
	case err == nil:
		if err := s.updateCourse(ctx, existing, remote); err != nil {
			return recordFailed, failLine(label, err)
		}
		return recordUpdated, okLine(label, "updated")
	case !errors.Is(err, sql.ErrNoRows):
		return recordFailed, failLine(label, err)
	}

	course := &models.Course{RemoteID: remote.ID}
	applyRemoteCourse(course, remote, s.now())
	err = s.storeCall(ctx, func(c context.Context) error { return s.courses.Create(c, course) })
	if err == nil {
		return recordCreated, okLine(label, "created")
	}
	if !repository.IsUniqueViolation(err) {
		return recordFailed, failLine(label, err)
	}

	// The natural key is absent yet the insert collided, so another unique
	// column (the slug) rejected it.
	existing, lookupErr := s.findCourse(ctx, remote.ID)
	if lookupErr != nil {
		return recordFailed, failLine(label, appErrors.WrapAs(appErrors.ErrRecordRejected, err, ""))
	}
	if err := s.updateCourse(ctx, existing, remote); err != nil {
		return recordFailed, failLine(label, err)
	}
	return recordUpdated, okLine(label, "updated after concurrent insert")
}

func (s *SyncService) findStudent(ctx context.Context, email string) (*models.Student, error) {
	var student *models.Student
	err := s.storeCall(ctx, func(c context.Context) error {
		var err error
		student, err = s.students.FindByEmail(c, email)
		return err
	})
	return student, err
}

func (s *SyncService) findStudentByRemoteID(ctx context.Context, remoteID string) (*models.Student, error) {
	var student *models.Student
	err := s.storeCall(ctx, func(c context.Context) error {
		var err error
		student, err = s.students.FindByRemoteID(c, remoteID)
		return err
	})
	return student, err
}

func (s *SyncService) findCourse(ctx context.Context, remoteID string) (*models.Course, error) {
	var course *models.Course
	err := s.storeCall(ctx, func(c context.Context) error {
		var err error
		course, err = s.courses.FindByRemoteID(c, remoteID)
		return err
	})
	return course, err
}

func (s *SyncService) newStudent(remote models.RemoteStudent, email string) *models.Student {
	remoteID := remote.ID
	syncedAt := s.now()
	name := strings.TrimSpace(remote.FullName)
	if name == "" {
		name = email
	}
	return &models.Student{
		RemoteID: &remoteID,
		FullName: name,
		Email:    email,
		Phone:    remote.Phone,
		Document: remote.Document,
		Status:   models.StudentStatusActive,
		SyncedAt: &syncedAt,
	}
}

// createStudent assigns the next enrollment number and inserts. A collision on
// the enrollment number alone is retried once with a fresh count.
func (s *SyncService) createStudent(ctx context.Context, student *models.Student) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var count int
		if err = s.storeCall(ctx, func(c context.Context) error {
			var countErr error
			count, countErr = s.students.Count(c)
			return countErr
		}); err != nil {
			return err
		}
		student.EnrollmentNumber = enrollmentNumber(s.now(), count+attempt+1)
		err = s.storeCall(ctx, func(c context.Context) error { return s.students.Create(c, student) })
		if err == nil || !strings.Contains(repository.ConstraintName(err), "enrollment_number") {
			return err
		}
		student.ID = ""
	}
	return err
}

func (s *SyncService) updateStudent(ctx context.Context, existing *models.Student, remote models.RemoteStudent) error {
	remoteID := remote.ID
	syncedAt := s.now()
	existing.RemoteID = &remoteID
	existing.Email = models.NormalizeEmail(remote.Email)
	if name := strings.TrimSpace(remote.FullName); name != "" {
		existing.FullName = name
	}
	if remote.Phone != "" {
		existing.Phone = remote.Phone
	}
	if remote.Document != "" {
		existing.Document = remote.Document
	}
	existing.SyncedAt = &syncedAt
	return s.storeCall(ctx, func(c context.Context) error { return s.students.Update(c, existing) })
}

func (s *SyncService) updateCourse(ctx context.Context, existing *models.Course, remote models.RemoteCourse) error {
	applyRemoteCourse(existing, remote, s.now())
	return s.storeCall(ctx, func(c context.Context) error { return s.courses.Update(c, existing) })
}

func applyRemoteCourse(course *models.Course, remote models.RemoteCourse, syncedAt time.Time) {
	course.Title = strings.TrimSpace(remote.Title)
	course.Slug = remote.Slug
	if course.Slug == "" {
		course.Slug = slugify(course.Title)
	}
	course.Description = remote.Description
	course.Status = models.CourseStatusInactive
	if remote.Published {
		course.Status = models.CourseStatusActive
	}
	course.SyncedAt = &syncedAt
}

func (s *SyncService) finish(ctx context.Context, result *models.SyncResult, opts SyncOptions, err error) {
	status := models.StatusFor(result, err)
	duration := result.FinishedAt.Sub(result.StartedAt)
	bg := context.WithoutCancel(ctx)

	if s.runs != nil {
		run := &models.SyncRun{
			EntityType: result.EntityType,
			FullSync:   result.FullSync,
			PageSize:   opts.PageSize,
			Imported:   result.Imported,
			Updated:    result.Updated,
			Failed:     result.Failed,
			Total:      result.Total,
			Logs:       append([]string(nil), result.Logs...),
			Status:     status,
			StartedAt:  result.StartedAt,
			FinishedAt: result.FinishedAt,
		}
		if err != nil {
			run.Error = err.Error()
		}
		if persistErr := s.storeCall(bg, func(c context.Context) error { return s.runs.Create(c, run) }); persistErr != nil {
			s.logger.Warn("failed to persist sync run", zap.String("entity", string(result.EntityType)), zap.Error(persistErr))
		} else {
			result.RunID = run.ID
		}
	}

	s.metrics.RecordSync(result, status, duration)

	if err == nil && s.catalog != nil {
		s.catalog.InvalidateCache(bg)
	}

	if s.events != nil && !opts.Offline {
		if pubErr := s.events.Publish(bg, publisher.EventSyncCompleted, syncCompletedEvent{
			RunID:    result.RunID,
			Entity:   result.EntityType,
			Status:   status,
			Imported: result.Imported,
			Updated:  result.Updated,
			Failed:   result.Failed,
			Total:    result.Total,
		}); pubErr != nil {
			s.logger.Warn("failed to publish sync event", zap.Error(pubErr))
		}
	}

	fields := []zap.Field{
		zap.String("entity", string(result.EntityType)),
		zap.Bool("full_sync", result.FullSync),
		zap.Int("imported", result.Imported),
		zap.Int("updated", result.Updated),
		zap.Int("failed", result.Failed),
		zap.Int("total", result.Total),
		zap.String("status", string(status)),
		zap.Duration("duration", duration),
	}
	if err != nil {
		s.logger.Warn("synchronization ended with error", append(fields, zap.Error(err))...)
		return
	}
	s.logger.Info("synchronization finished", fields...)
}

type syncCompletedEvent struct {
	RunID    string               `json:"run_id,omitempty"`
	Entity   models.EntityType    `json:"entity"`
	Status   models.SyncRunStatus `json:"status"`
	Imported int                  `json:"imported"`
	Updated  int                  `json:"updated"`
	Failed   int                  `json:"failed"`
	Total    int                  `json:"total"`
}

func (s *SyncService) remoteContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RemoteTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.RemoteTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *SyncService) storeCall(ctx context.Context, fn func(context.Context) error) error {
	if s.cfg.StoreTimeout <= 0 {
		return fn(ctx)
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return fn(storeCtx)
}

func okLine(label, action string) string {
	return fmt.Sprintf("%s %s %s", models.SyncLogOK, label, action)
}

func failLine(label string, err error) string {
	return fmt.Sprintf("%s %s: %v", models.SyncLogError, label, err)
}

func enrollmentNumber(now time.Time, seq int) string {
	return fmt.Sprintf("%04d%06d", now.Year(), seq)
}

func slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
