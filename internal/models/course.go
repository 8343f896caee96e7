package models

import (
	"strings"
	"time"
)

// CourseStatus mirrors the publication state of an LMS course.
type CourseStatus string

// Possible course statuses.
const (
	CourseStatusActive   CourseStatus = "active"
	CourseStatusInactive CourseStatus = "inactive"
)

// Course is the local mirror of an LMS course.
type Course struct {
	ID          string       `db:"id" json:"id"`
	RemoteID    string       `db:"remote_id" json:"remote_id"`
	Title       string       `db:"title" json:"title"`
	Slug        string       `db:"slug" json:"slug"`
	Description string       `db:"description" json:"description"`
	Status      CourseStatus `db:"status" json:"status"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
	SyncedAt    *time.Time   `db:"synced_at" json:"synced_at,omitempty"`
}

// HasRemote reports whether the course is linked to an LMS course.
func (c *Course) HasRemote() bool {
	return c != nil && strings.TrimSpace(c.RemoteID) != ""
}
