package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/lms-enrollment-sync/internal/models"
)

// SyncRunRepository persists the audit trail of synchronization runs.
type SyncRunRepository struct {
	db *sqlx.DB
}

// NewSyncRunRepository constructs the repository.
func NewSyncRunRepository(db *sqlx.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

type syncRunRow struct {
	models.SyncRun
	Logs pq.StringArray `db:"logs"`
}

func (row syncRunRow) toModel() models.SyncRun {
	run := row.SyncRun
	run.Logs = []string(row.Logs)
	if run.Logs == nil {
		run.Logs = []string{}
	}
	return run
}

const syncRunColumns = `id, entity_type, full_sync, page_size, imported, updated, failed, total, logs, status, error, started_at, finished_at`

// Create stores a finished run.
func (r *SyncRunRepository) Create(ctx context.Context, run *models.SyncRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	const query = `INSERT INTO sync_runs (` + syncRunColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	if _, err := r.db.ExecContext(ctx, query,
		run.ID, run.EntityType, run.FullSync, run.PageSize,
		run.Imported, run.Updated, run.Failed, run.Total,
		pq.Array(run.Logs), run.Status, run.Error, run.StartedAt, run.FinishedAt,
	); err != nil {
		return fmt.Errorf("create sync run: %w", err)
	}
	return nil
}

// FindByID returns a stored run including its log lines.
func (r *SyncRunRepository) FindByID(ctx context.Context, id string) (*models.SyncRun, error) {
	query := "SELECT " + syncRunColumns + " FROM sync_runs WHERE id = $1"
	var row syncRunRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	run := row.toModel()
	return &run, nil
}

// List returns the most recent runs first.
func (r *SyncRunRepository) List(ctx context.Context, filter models.SyncRunFilter) ([]models.SyncRun, int, error) {
	var conditions []string
	var args []interface{}
	if filter.EntityType != "" {
		conditions = append(conditions, fmt.Sprintf("entity_type = $%d", len(args)+1))
		args = append(args, filter.EntityType)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM sync_runs%s ORDER BY started_at DESC LIMIT %d OFFSET %d", syncRunColumns, clause, size, offset)
	var rows []syncRunRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sync runs: %w", err)
	}
	runs := make([]models.SyncRun, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, row.toModel())
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM sync_runs"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count sync runs: %w", err)
	}
	return runs, total, nil
}
