package models

import (
	"strings"
	"time"
)

// StudentStatus is the local-only lifecycle flag of a student.
type StudentStatus string

// Possible student statuses.
const (
	StudentStatusActive   StudentStatus = "active"
	StudentStatusInactive StudentStatus = "inactive"
)

// Student is the local mirror of an LMS user plus local-only fields.
type Student struct {
	ID               string        `db:"id" json:"id"`
	RemoteID         *string       `db:"remote_id" json:"remote_id,omitempty"`
	FullName         string        `db:"full_name" json:"full_name"`
	Email            string        `db:"email" json:"email"`
	Phone            string        `db:"phone" json:"phone"`
	Document         string        `db:"document" json:"document"`
	Status           StudentStatus `db:"status" json:"status"`
	EnrollmentNumber string        `db:"enrollment_number" json:"enrollment_number"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
	SyncedAt         *time.Time    `db:"synced_at" json:"synced_at,omitempty"`
}

// HasRemote reports whether the student is linked to an LMS user.
func (s *Student) HasRemote() bool {
	return s != nil && s.RemoteID != nil && strings.TrimSpace(*s.RemoteID) != ""
}

// NormalizeEmail returns the natural key form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search   string
	Status   StudentStatus
	Page     int
	PageSize int
}
