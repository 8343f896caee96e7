package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-enrollment-sync/internal/models"
	appErrors "github.com/noah-isme/lms-enrollment-sync/pkg/errors"
	"github.com/noah-isme/lms-enrollment-sync/pkg/export"
)

type syncRunRepository interface {
	FindByID(ctx context.Context, id string) (*models.SyncRun, error)
	List(ctx context.Context, filter models.SyncRunFilter) ([]models.SyncRun, int, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ReportFormat is an export file format.
type ReportFormat string

// Supported export formats.
const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// RenderedReport is an export ready to be streamed to the caller.
type RenderedReport struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ReportService exposes the sync run audit trail and its exports.
type ReportService struct {
	runs   syncRunRepository
	csv    csvRenderer
	pdf    pdfRenderer
	logger *zap.Logger
}

// NewReportService constructs a ReportService.
func NewReportService(runs syncRunRepository, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ReportService{runs: runs, csv: csv, pdf: pdf, logger: logger}
}

// ListRuns returns recent sync runs with pagination metadata.
func (s *ReportService) ListRuns(ctx context.Context, filter models.SyncRunFilter) ([]models.SyncRun, *models.Pagination, error) {
	runs, total, err := s.runs.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sync runs")
	}
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	return runs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// GetRun returns a single run with its log lines.
func (s *ReportService) GetRun(ctx context.Context, id string) (*models.SyncRun, error) {
	run, err := s.runs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "sync run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sync run")
	}
	return run, nil
}

// ExportRun renders a run and its per-record log as CSV or PDF.
func (s *ReportService) ExportRun(ctx context.Context, id string, format ReportFormat) (*RenderedReport, error) {
	format = ReportFormat(strings.ToLower(string(format)))
	if format != ReportFormatCSV && format != ReportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}

	data := runDataset(run)
	var (
		body        []byte
		contentType string
	)
	switch format {
	case ReportFormatPDF:
		body, err = s.pdf.Render(data)
		contentType = "application/pdf"
	default:
		body, err = s.csv.Render(data)
		contentType = "text/csv; charset=utf-8"
	}
	if err != nil {
		s.logger.Error("failed to render sync run export", zap.String("run_id", id), zap.String("format", string(format)), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	return &RenderedReport{
		Filename:    fmt.Sprintf("sync-%s-%s.%s", run.EntityType, run.StartedAt.Format("20060102-150405"), format),
		ContentType: contentType,
		Body:        body,
	}, nil
}

func runDataset(run *models.SyncRun) export.Dataset {
	summary := []export.Field{
		{Label: "Run", Value: run.ID},
		{Label: "Entity", Value: string(run.EntityType)},
		{Label: "Mode", Value: syncMode(run.FullSync)},
		{Label: "Status", Value: string(run.Status)},
		{Label: "Imported", Value: strconv.Itoa(run.Imported)},
		{Label: "Updated", Value: strconv.Itoa(run.Updated)},
		{Label: "Failed", Value: strconv.Itoa(run.Failed)},
		{Label: "Total", Value: strconv.Itoa(run.Total)},
		{Label: "Started", Value: run.StartedAt.UTC().Format(time.RFC3339)},
		{Label: "Finished", Value: run.FinishedAt.UTC().Format(time.RFC3339)},
	}
	if run.Error != "" {
		summary = append(summary, export.Field{Label: "Error", Value: run.Error})
	}

	rows := make([][]string, 0, len(run.Logs))
	for i, line := range run.Logs {
		level, detail := splitLogLine(line)
		rows = append(rows, []string{strconv.Itoa(i + 1), level, detail})
	}
	return export.Dataset{
		Title:   fmt.Sprintf("Sync run - %s", run.EntityType),
		Summary: summary,
		Headers: []string{"#", "Result", "Detail"},
		Widths:  []float64{1, 2, 12},
		Rows:    rows,
	}
}

func splitLogLine(line string) (string, string) {
	for _, prefix := range []string{models.SyncLogOK, models.SyncLogError, models.SyncLogInfo} {
		if strings.HasPrefix(line, prefix) {
			return strings.Trim(prefix, "[]"), strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	return "", line
}

func syncMode(full bool) string {
	if full {
		return "full"
	}
	return "incremental"
}
