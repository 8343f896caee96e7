package models

import "time"

// RemoteStudent is an LMS user as seen by this service. The LMS owns it; it is only read.
type RemoteStudent struct {
	ID        string     `json:"id" validate:"required"`
	FullName  string     `json:"full_name"`
	Email     string     `json:"email" validate:"required,email"`
	Phone     string     `json:"phone,omitempty"`
	Document  string     `json:"document,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Simulated bool       `json:"simulated"`
}

// RemoteCourse is an LMS course as seen by this service.
type RemoteCourse struct {
	ID          string     `json:"id" validate:"required"`
	Title       string     `json:"title" validate:"required"`
	Slug        string     `json:"slug,omitempty"`
	Description string     `json:"description,omitempty"`
	Published   bool       `json:"published"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	Simulated   bool       `json:"simulated"`
}

// RemotePage is one page of a paginated LMS listing.
type RemotePage[T any] struct {
	Data  []T `json:"data"`
	Pages int `json:"pages"`
}

// RemoteEnrollment is the LMS-side mirror of a local enrollment, keyed by
// (StudentRemoteID, CourseRemoteID).
type RemoteEnrollment struct {
	ID              string     `json:"id"`
	StudentRemoteID string     `json:"student_remote_id"`
	CourseRemoteID  string     `json:"course_remote_id"`
	Status          string     `json:"status"`
	StartDate       *time.Time `json:"start_date,omitempty"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
	Simulated       bool       `json:"simulated"`
}

// RemoteEnrollmentOptions carries the optional fields of an LMS enrollment creation.
type RemoteEnrollmentOptions struct {
	StartDate  time.Time
	ExpiresAt  *time.Time
	Reference  string
	SendNotice bool
}
