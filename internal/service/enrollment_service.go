package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-enrollment-sync/internal/degraded"
	"github.com/noah-isme/lms-enrollment-sync/internal/models"
	"github.com/noah-isme/lms-enrollment-sync/internal/publisher"
	"github.com/noah-isme/lms-enrollment-sync/pkg/config"
	appErrors "github.com/noah-isme/lms-enrollment-sync/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	AttachReferences(ctx context.Context, id string, remoteEnrollmentID, chargeID, chargeGateway *string) error
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type remoteEnrollmentMirror interface {
	GetEnrollment(ctx context.Context, studentRemoteID, courseRemoteID string) (*models.RemoteEnrollment, error)
	CreateEnrollment(ctx context.Context, studentRemoteID, courseRemoteID string, opts models.RemoteEnrollmentOptions) (*models.RemoteEnrollment, error)
}

type chargeIssuer interface {
	CreateCharge(ctx context.Context, req models.ChargeRequest) (*models.ChargeRef, error)
}

// EnrollmentConfig carries the business options of a new enrollment.
type EnrollmentConfig struct {
	StartDate     models.Date             `json:"start_date" swaggertype:"string" example:"2026-02-01"`
	Status        models.EnrollmentStatus `json:"status" validate:"omitempty,oneof=active inactive locked graduated"`
	Observations  string                  `json:"observations" validate:"max=500"`
	WithPayment   bool                    `json:"with_payment"`
	PaymentMethod models.PaymentMethod    `json:"payment_method" validate:"omitempty,oneof=boleto pix cartao isento"`
	Amount        float64                 `json:"amount" validate:"gte=0"`
}

// EnrollRequest describes enrollment creation request.
type EnrollRequest struct {
	StudentID string           `json:"student_id" validate:"required"`
	CourseID  string           `json:"course_id" validate:"required"`
	Config    EnrollmentConfig `json:"config"`
	// Offline is the explicit connectivity flag; the mirror step is simulated when set.
	Offline bool `json:"-"`
}

type mirrorAnswer struct {
	enrollment *models.RemoteEnrollment
	existed    bool
}

// EnrollmentService orchestrates the enrollment saga.
type EnrollmentService struct {
	repo      enrollmentRepository
	students  studentReader
	courses   courseReader
	mirror    remoteEnrollmentMirror
	payments  chargeIssuer
	events    eventPublisher
	policy    *degraded.Policy
	metrics   *MetricsService
	cfg       config.EnrollmentConfig
	payment   config.PaymentConfig
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewEnrollmentService constructs EnrollmentService. payments, events and metrics are optional.
func NewEnrollmentService(repo enrollmentRepository, students studentReader, courses courseReader, mirror remoteEnrollmentMirror, payments chargeIssuer, events eventPublisher, policy *degraded.Policy, metrics *MetricsService, cfg config.EnrollmentConfig, payment config.PaymentConfig, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == nil {
		policy = degraded.NewPolicy(logger, metrics)
	}
	return &EnrollmentService{
		repo:      repo,
		students:  students,
		courses:   courses,
		mirror:    mirror,
		payments:  payments,
		events:    events,
		policy:    policy,
		metrics:   metrics,
		cfg:       cfg,
		payment:   payment,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	var (
		enrollments []models.EnrollmentDetail
		total       int
	)
	err := s.storeCall(ctx, func(c context.Context) error {
		var err error
		enrollments, total, err = s.repo.List(c, filter)
		return err
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single enrollment.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	var detail *models.EnrollmentDetail
	err := s.storeCall(ctx, func(c context.Context) error {
		var err error
		detail, err = s.repo.FindDetailByID(c, id)
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// Enroll runs the enrollment saga: persist locally, mirror to the LMS, then
// provision the payment. Only the local insert is fatal; later steps record
// warnings on the outcome and never undo the enrollment.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*models.EnrollmentOutcome, error) {
	req.Config.PaymentMethod = req.Config.PaymentMethod.Normalize()
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if req.Config.WithPayment && req.Config.PaymentMethod != models.PaymentMethodExempt && req.Config.Amount <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be positive when payment is requested")
	}

	var (
		student *models.Student
		course  *models.Course
	)
	err := s.storeCall(ctx, func(c context.Context) error {
		var err error
		student, err = s.students.FindByID(c, req.StudentID)
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	err = s.storeCall(ctx, func(c context.Context) error {
		var err error
		course, err = s.courses.FindByID(c, req.CourseID)
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	outcome := &models.EnrollmentOutcome{Steps: []models.StepResult{}, Warnings: []string{}}

	enrollment, err := s.persistLocal(ctx, req, student, course)
	if err != nil {
		s.record(outcome, models.StepPersistLocal, models.StepFailed, err.Error())
		outcome.FatalError = appErrors.ErrSagaAborted.Code
		s.logger.Error("enrollment aborted", zap.String("student_id", student.ID), zap.String("course_id", course.ID), zap.Error(err))
		return outcome, appErrors.WrapAs(appErrors.ErrSagaAborted, err, "")
	}
	outcome.Enrollment = enrollment
	s.record(outcome, models.StepPersistLocal, models.StepDone, "")

	s.mirrorRemote(ctx, req, student, course, outcome)
	s.provisionPayment(ctx, req, student, course, outcome)
	s.attachReferences(ctx, outcome)

	s.publishCreated(ctx, outcome)

	fields := []zap.Field{
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", student.ID),
		zap.String("course_id", course.ID),
		zap.Int("warnings", len(outcome.Warnings)),
	}
	if outcome.HasCaveats() {
		s.logger.Warn("enrollment created with caveats", append(fields, zap.Strings("details", outcome.Warnings))...)
	} else {
		s.logger.Info("enrollment created", fields...)
	}
	return outcome, nil
}

func (s *EnrollmentService) persistLocal(ctx context.Context, req EnrollRequest, student *models.Student, course *models.Course) (*models.Enrollment, error) {
	method := req.Config.PaymentMethod
	switch {
	case method != "":
	case req.Config.WithPayment:
		method = models.PaymentMethod(s.payment.DefaultMethod).Normalize()
	default:
		method = models.PaymentMethodExempt
	}
	enrollment := &models.Enrollment{
		StudentID:     student.ID,
		CourseID:      course.ID,
		StartDate:     req.Config.StartDate.Time(),
		Status:        req.Config.Status,
		PaymentMethod: method,
		Amount:        req.Config.Amount,
		Observations:  req.Config.Observations,
	}
	if err := s.storeCall(ctx, func(c context.Context) error { return s.repo.Create(c, enrollment) }); err != nil {
		return nil, err
	}
	return enrollment, nil
}

func (s *EnrollmentService) mirrorRemote(ctx context.Context, req EnrollRequest, student *models.Student, course *models.Course, outcome *models.EnrollmentOutcome) {
	switch {
	case !student.HasRemote():
		s.record(outcome, models.StepMirrorRemote, models.StepSkipped, "student has no LMS id")
		return
	case !course.HasRemote():
		s.record(outcome, models.StepMirrorRemote, models.StepSkipped, "course has no LMS id")
		return
	case s.mirror == nil:
		s.record(outcome, models.StepMirrorRemote, models.StepSkipped, "LMS client not configured")
		return
	}

	studentRemoteID := *student.RemoteID
	courseRemoteID := course.RemoteID
	stepCtx, cancel := s.stepContext(ctx)
	defer cancel()

	live := func(c context.Context) (mirrorAnswer, error) {
		existing, err := s.mirror.GetEnrollment(c, studentRemoteID, courseRemoteID)
		if err != nil {
			return mirrorAnswer{}, err
		}
		if existing != nil {
			return mirrorAnswer{enrollment: existing, existed: true}, nil
		}
		created, err := s.mirror.CreateEnrollment(c, studentRemoteID, courseRemoteID, models.RemoteEnrollmentOptions{
			StartDate:  outcome.Enrollment.StartDate,
			Reference:  outcome.Enrollment.ID,
			SendNotice: true,
		})
		if err != nil {
			return mirrorAnswer{}, err
		}
		return mirrorAnswer{enrollment: created}, nil
	}
	simulated := func() mirrorAnswer {
		e := degraded.SimulatedEnrollment(studentRemoteID, courseRemoteID)
		return mirrorAnswer{enrollment: &e}
	}

	res, err := degraded.Resolve(stepCtx, s.policy, "mirror_enrollment", req.Offline, live, simulated)
	switch {
	case err != nil:
		s.warn(outcome, models.StepMirrorRemote, err)
	case res.Simulated:
		outcome.RemoteMirror = res.Value.enrollment
		s.record(outcome, models.StepMirrorRemote, models.StepSimulated, res.Reason)
		outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("%s: LMS unavailable (%s), enrollment not mirrored; simulated mirror returned", models.StepMirrorRemote, res.Reason))
	case res.Value.existed:
		outcome.RemoteMirror = res.Value.enrollment
		s.record(outcome, models.StepMirrorRemote, models.StepAlreadyMirrored, res.Value.enrollment.ID)
	default:
		outcome.RemoteMirror = res.Value.enrollment
		s.record(outcome, models.StepMirrorRemote, models.StepDone, res.Value.enrollment.ID)
	}
}

func (s *EnrollmentService) provisionPayment(ctx context.Context, req EnrollRequest, student *models.Student, course *models.Course, outcome *models.EnrollmentOutcome) {
	method := outcome.Enrollment.PaymentMethod
	switch {
	case !req.Config.WithPayment:
		s.record(outcome, models.StepProvisionPayment, models.StepSkipped, "payment not requested")
		return
	case method == models.PaymentMethodExempt:
		s.record(outcome, models.StepProvisionPayment, models.StepSkipped, "exempt enrollment")
		return
	case s.payments == nil:
		s.warn(outcome, models.StepProvisionPayment, appErrors.Clone(appErrors.ErrPaymentFailed, "no payment gateway configured"))
		return
	}

	stepCtx, cancel := s.stepContext(ctx)
	defer cancel()

	charge, err := s.payments.CreateCharge(stepCtx, models.ChargeRequest{
		Customer: models.Customer{
			Name:     student.FullName,
			Email:    student.Email,
			Phone:    student.Phone,
			Document: student.Document,
		},
		Amount:      outcome.Enrollment.Amount,
		DueDate:     s.dueDate(outcome.Enrollment.StartDate),
		Description: fmt.Sprintf("Matrícula - %s", course.Title),
		Method:      method,
		Reference:   outcome.Enrollment.ID,
	})
	if err != nil {
		s.warn(outcome, models.StepProvisionPayment, err)
		return
	}
	outcome.Charge = charge
	s.record(outcome, models.StepProvisionPayment, models.StepDone, charge.ID)
}

// attachReferences stores live remote ids on the enrollment row. Simulated
// mirrors are never written to the store.
func (s *EnrollmentService) attachReferences(ctx context.Context, outcome *models.EnrollmentOutcome) {
	var remoteID, chargeID, gateway *string
	if m := outcome.RemoteMirror; m != nil && !m.Simulated && m.ID != "" {
		id := m.ID
		remoteID = &id
	}
	if c := outcome.Charge; c != nil {
		id, gw := c.ID, c.Gateway
		chargeID, gateway = &id, &gw
	}
	if remoteID == nil && chargeID == nil {
		s.record(outcome, models.StepAttachReferences, models.StepSkipped, "nothing to attach")
		return
	}
	if err := s.storeCall(ctx, func(c context.Context) error {
		return s.repo.AttachReferences(c, outcome.Enrollment.ID, remoteID, chargeID, gateway)
	}); err != nil {
		s.warn(outcome, models.StepAttachReferences, err)
		return
	}
	outcome.Enrollment.RemoteEnrollmentID = remoteID
	outcome.Enrollment.ChargeID = chargeID
	outcome.Enrollment.ChargeGateway = gateway
	s.record(outcome, models.StepAttachReferences, models.StepDone, "")
}

func (s *EnrollmentService) publishCreated(ctx context.Context, outcome *models.EnrollmentOutcome) {
	if s.events == nil {
		return
	}
	payload := map[string]interface{}{
		"enrollment_id": outcome.Enrollment.ID,
		"student_id":    outcome.Enrollment.StudentID,
		"course_id":     outcome.Enrollment.CourseID,
		"status":        outcome.Enrollment.Status,
		"warnings":      outcome.Warnings,
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), publisher.EventEnrollmentCreated, payload); err != nil {
		s.logger.Warn("failed to publish enrollment event", zap.String("enrollment_id", outcome.Enrollment.ID), zap.Error(err))
	}
}

func (s *EnrollmentService) record(outcome *models.EnrollmentOutcome, step models.SagaStep, state models.StepState, detail string) {
	outcome.Steps = append(outcome.Steps, models.StepResult{Step: step, State: state, Detail: detail})
	s.metrics.RecordSagaStep(step, state)
}

func (s *EnrollmentService) warn(outcome *models.EnrollmentOutcome, step models.SagaStep, err error) {
	stepErr := appErrors.WrapAs(appErrors.ErrSagaStepFailed, err, fmt.Sprintf("%s failed", step))
	s.record(outcome, step, models.StepFailed, err.Error())
	outcome.Warnings = append(outcome.Warnings, stepErr.Error())
}

func (s *EnrollmentService) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.StepTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.StepTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *EnrollmentService) storeCall(ctx context.Context, fn func(context.Context) error) error {
	if s.cfg.StoreTimeout <= 0 {
		return fn(ctx)
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return fn(storeCtx)
}

// dueDate bills on the start date when it is still ahead, otherwise a few days from today.
func (s *EnrollmentService) dueDate(start time.Time) time.Time {
	today := s.now().Truncate(24 * time.Hour)
	if start.After(today) {
		return start
	}
	days := s.payment.DueDays
	if days <= 0 {
		days = 3
	}
	return today.AddDate(0, 0, days)
}
