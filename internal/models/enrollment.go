package models

import (
	"strings"
	"time"
)

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusInactive  EnrollmentStatus = "inactive"
	EnrollmentStatusLocked    EnrollmentStatus = "locked"
	EnrollmentStatusGraduated EnrollmentStatus = "graduated"
)

// PaymentMethod identifies how an enrollment is paid for.
type PaymentMethod string

// Supported payment methods. PaymentMethodExempt never produces a charge.
const (
	PaymentMethodBoleto PaymentMethod = "boleto"
	PaymentMethodPix    PaymentMethod = "pix"
	PaymentMethodCard   PaymentMethod = "cartao"
	PaymentMethodExempt PaymentMethod = "isento"
)

// Normalize lowercases and trims the method.
func (m PaymentMethod) Normalize() PaymentMethod {
	return PaymentMethod(strings.ToLower(strings.TrimSpace(string(m))))
}

// Enrollment captures a student's registration to a course.
type Enrollment struct {
	ID                 string           `db:"id" json:"id"`
	StudentID          string           `db:"student_id" json:"student_id"`
	CourseID           string           `db:"course_id" json:"course_id"`
	StartDate          time.Time        `db:"start_date" json:"start_date"`
	Status             EnrollmentStatus `db:"status" json:"status"`
	PaymentMethod      PaymentMethod    `db:"payment_method" json:"payment_method"`
	Amount             float64          `db:"amount" json:"amount"`
	Observations       string           `db:"observations" json:"observations"`
	RemoteEnrollmentID *string          `db:"remote_enrollment_id" json:"remote_enrollment_id,omitempty"`
	ChargeID           *string          `db:"charge_id" json:"charge_id,omitempty"`
	ChargeGateway      *string          `db:"charge_gateway" json:"charge_gateway,omitempty"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with student and course info.
type EnrollmentDetail struct {
	Enrollment
	StudentName  string `db:"student_name" json:"student_name"`
	StudentEmail string `db:"student_email" json:"student_email"`
	CourseTitle  string `db:"course_title" json:"course_title"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	CourseID  string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// SagaStep names a step of the enrollment saga.
type SagaStep string

// Enrollment saga steps, in execution order.
const (
	StepPersistLocal     SagaStep = "persist_local"
	StepMirrorRemote     SagaStep = "mirror_remote"
	StepProvisionPayment SagaStep = "provision_payment"
	StepAttachReferences SagaStep = "attach_references"
)

// StepState is the result of one saga step.
type StepState string

// Step results.
const (
	StepDone            StepState = "done"
	StepSkipped         StepState = "skipped"
	StepFailed          StepState = "failed"
	StepAlreadyMirrored StepState = "already_mirrored"
	StepSimulated       StepState = "simulated"
)

// StepResult records how a single saga step ended.
type StepResult struct {
	Step   SagaStep  `json:"step"`
	State  StepState `json:"state"`
	Detail string    `json:"detail,omitempty"`
}

// EnrollmentOutcome is the structured report of an Enroll call.
type EnrollmentOutcome struct {
	Enrollment   *Enrollment       `json:"enrollment,omitempty"`
	RemoteMirror *RemoteEnrollment `json:"remote_mirror,omitempty"`
	Charge       *ChargeRef        `json:"charge,omitempty"`
	Steps        []StepResult      `json:"steps"`
	Warnings     []string          `json:"warnings"`
	FatalError   string            `json:"fatal_error,omitempty"`
}

// Succeeded reports whether the local enrollment was persisted.
func (o *EnrollmentOutcome) Succeeded() bool {
	return o != nil && o.FatalError == "" && o.Enrollment != nil
}

// HasCaveats reports a successful enrollment whose optional steps produced warnings.
func (o *EnrollmentOutcome) HasCaveats() bool {
	return o.Succeeded() && len(o.Warnings) > 0
}

// Step returns the recorded result for step, if any.
func (o *EnrollmentOutcome) Step(step SagaStep) (StepResult, bool) {
	if o == nil {
		return StepResult{}, false
	}
	for _, s := range o.Steps {
		if s.Step == step {
			return s, true
		}
	}
	return StepResult{}, false
}
