package models

import (
	"fmt"
	"strings"
	"time"
)

// EntityType names an LMS-owned entity the reconciler can synchronize.
type EntityType string

// Synchronizable entities.
const (
	EntityStudents EntityType = "students"
	EntityCourses  EntityType = "courses"
)

// ParseEntityType validates a user supplied entity name.
func ParseEntityType(raw string) (EntityType, error) {
	switch EntityType(strings.ToLower(strings.TrimSpace(raw))) {
	case EntityStudents:
		return EntityStudents, nil
	case EntityCourses:
		return EntityCourses, nil
	default:
		return "", fmt.Errorf("unknown entity type %q", raw)
	}
}

// Log line prefixes used in SyncResult.Logs.
const (
	SyncLogOK    = "[OK]"
	SyncLogError = "[ERROR]"
	SyncLogInfo  = "[INFO]"
)

// SyncResult summarises one Synchronize invocation. It is never mutated after being returned.
type SyncResult struct {
	RunID      string     `json:"run_id,omitempty"`
	EntityType EntityType `json:"entity_type"`
	FullSync   bool       `json:"full_sync"`
	Imported   int        `json:"imported"`
	Updated    int        `json:"updated"`
	Failed     int        `json:"failed"`
	Total      int        `json:"total"`
	Logs       []string   `json:"logs"`
	Cancelled  bool       `json:"cancelled"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}

// Partial reports a sync where some records failed and others went through.
func (r *SyncResult) Partial() bool {
	return r != nil && r.Failed > 0 && r.Imported+r.Updated > 0
}

// SyncRunStatus is the persisted verdict of a sync run.
type SyncRunStatus string

// Sync run verdicts.
const (
	SyncRunSuccess   SyncRunStatus = "success"
	SyncRunPartial   SyncRunStatus = "partial"
	SyncRunFailed    SyncRunStatus = "failed"
	SyncRunCancelled SyncRunStatus = "cancelled"
)

// SyncRun is the persisted audit record of a SyncResult.
type SyncRun struct {
	ID         string        `db:"id" json:"id"`
	EntityType EntityType    `db:"entity_type" json:"entity_type"`
	FullSync   bool          `db:"full_sync" json:"full_sync"`
	PageSize   int           `db:"page_size" json:"page_size"`
	Imported   int           `db:"imported" json:"imported"`
	Updated    int           `db:"updated" json:"updated"`
	Failed     int           `db:"failed" json:"failed"`
	Total      int           `db:"total" json:"total"`
	Logs       []string      `db:"-" json:"logs"`
	Status     SyncRunStatus `db:"status" json:"status"`
	Error      string        `db:"error" json:"error,omitempty"`
	StartedAt  time.Time     `db:"started_at" json:"started_at"`
	FinishedAt time.Time     `db:"finished_at" json:"finished_at"`
}

// StatusFor derives the run verdict from a result and the fatal error, if any.
func StatusFor(result *SyncResult, err error) SyncRunStatus {
	switch {
	case result != nil && result.Cancelled:
		return SyncRunCancelled
	case err != nil:
		return SyncRunFailed
	case result != nil && result.Failed > 0 && result.Imported+result.Updated == 0:
		return SyncRunFailed
	case result != nil && result.Failed > 0:
		return SyncRunPartial
	default:
		return SyncRunSuccess
	}
}

// SyncRunFilter narrows sync run listings.
type SyncRunFilter struct {
	EntityType EntityType
	Status     SyncRunStatus
	Page       int
	PageSize   int
}
