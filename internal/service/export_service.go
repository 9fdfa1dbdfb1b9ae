package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slotwise/timetable-merge-api/internal/dto"
	"github.com/slotwise/timetable-merge-api/internal/models"
	"github.com/slotwise/timetable-merge-api/internal/timetable"
	appErrors "github.com/slotwise/timetable-merge-api/pkg/errors"
	"github.com/slotwise/timetable-merge-api/pkg/export"
	"github.com/slotwise/timetable-merge-api/pkg/jobs"
	"github.com/slotwise/timetable-merge-api/pkg/storage"
)

type runReader interface {
	FindByID(ctx context.Context, id string) (*models.ResolutionRun, error)
	ListAssignments(ctx context.Context, runID string) ([]models.RunAssignment, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type exportMetrics interface {
	ObserveExportJob(status models.ExportStatus)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix  string
	ResultTTL  time.Duration
	JobTTL     time.Duration
	Workers    int
	MaxRetries int
}

// ExportService renders stored runs to downloadable documents. Rendering is
// asynchronous; job state lives in memory and expires with the files.
type ExportService struct {
	runs      runReader
	storage   fileStorage
	csv       csvRenderer
	pdf       pdfRenderer
	signer    *storage.SignedURLSigner
	metrics   exportMetrics
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportConfig

	store *exportJobStore
	queue *jobs.Queue
}

// NewExportService constructs an ExportService and its worker queue.
func NewExportService(runs runReader, files fileStorage, signer *storage.SignedURLSigner, metrics exportMetrics, validate *validator.Validate, logger *zap.Logger, cfg ExportConfig) *ExportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = cfg.ResultTTL
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}

	s := &ExportService{
		runs:      runs,
		storage:   files,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		signer:    signer,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		store:     newExportJobStore(cfg.JobTTL),
	}
	s.queue = jobs.NewQueue("exports", s.process, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the export workers.
func (s *ExportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the export workers.
func (s *ExportService) Stop() {
	s.queue.Stop()
}

// Enqueue validates the request and schedules an export job.
func (s *ExportService) Enqueue(ctx context.Context, req dto.ExportRequest) (*dto.ExportJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}

	if _, err := s.runs.FindByID(ctx, req.RunID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "resolution run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resolution run")
	}

	job := &models.ExportJob{
		ID:        uuid.NewString(),
		RunID:     req.RunID,
		Source:    strings.TrimSpace(req.Source),
		Format:    req.Format,
		Status:    models.ExportStatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	s.store.Save(job)

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "export"}); err != nil {
		s.store.Delete(job.ID)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}

	s.logger.Info("export job queued",
		zap.String("job_id", job.ID),
		zap.String("run_id", job.RunID),
		zap.String("format", string(job.Format)),
	)
	return jobResponse(job), nil
}

// GetJob reports the state of an export job.
func (s *ExportService) GetJob(ctx context.Context, jobID string) (*dto.ExportJobResponse, error) {
	job, ok := s.store.Get(jobID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found or expired")
	}
	return jobResponse(job), nil
}

// ResolveDownload validates a download token and opens the referenced file.
func (s *ExportService) ResolveDownload(token string) (*os.File, string, error) {
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	if _, ok := s.store.Get(jobID); !ok {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export job not found or expired")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export file no longer available")
	}
	return file, relPath, nil
}

// Cleanup removes expired files and forgotten jobs.
func (s *ExportService) Cleanup() {
	removed, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
	if err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
	} else if len(removed) > 0 {
		s.logger.Info("expired export files removed", zap.Int("count", len(removed)))
	}
	s.store.Purge()
}

func (s *ExportService) process(ctx context.Context, queued jobs.Job) error {
	job, ok := s.store.Get(queued.ID)
	if !ok {
		s.logger.Warn("export job vanished before processing", zap.String("job_id", queued.ID))
		return nil
	}

	job.Status = models.ExportStatusRunning
	s.store.Save(job)

	if err := s.render(ctx, job); err != nil {
		now := time.Now().UTC()
		job.Status = models.ExportStatusFailed
		job.ErrorMessage = err.Error()
		job.FinishedAt = &now
		s.store.Save(job)
		if s.metrics != nil {
			s.metrics.ObserveExportJob(models.ExportStatusFailed)
		}
		return err
	}

	if s.metrics != nil {
		s.metrics.ObserveExportJob(models.ExportStatusFinished)
	}
	return nil
}

func (s *ExportService) render(ctx context.Context, job *models.ExportJob) error {
	assignments, err := s.runs.ListAssignments(ctx, job.RunID)
	if err != nil {
		return fmt.Errorf("load assignments: %w", err)
	}

	dataset, title := buildRunDataset(job, assignments)
	if len(dataset.Rows) == 0 && job.Source != "" {
		return fmt.Errorf("source %q has no assignments in run %s", job.Source, job.RunID)
	}

	var payload []byte
	switch job.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Format)
	}
	if err != nil {
		return fmt.Errorf("render export: %w", err)
	}

	relPath, err := s.storage.Save(s.buildFilename(job), payload)
	if err != nil {
		return fmt.Errorf("store export: %w", err)
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return fmt.Errorf("sign download token: %w", err)
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	now := time.Now().UTC()
	job.Status = models.ExportStatusFinished
	job.ResultPath = relPath
	job.ResultURL = fmt.Sprintf("%s/export/download/%s", prefix, token)
	job.FinishedAt = &now
	job.ExpiresAt = &expiresAt
	s.store.Save(job)

	s.logger.Info("export job finished",
		zap.String("job_id", job.ID),
		zap.String("run_id", job.RunID),
		zap.String("path", relPath),
	)
	return nil
}

func (s *ExportService) buildFilename(job *models.ExportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	sourcePart := sanitizeFilename(job.Source)
	return fmt.Sprintf("run_%s_%s_%s.%s", sanitizeFilename(job.RunID), sourcePart, timestamp, job.Format)
}

var runDatasetHeaders = []string{"Day", "Period", "Assigned Slot", "Subject", "Teacher", "Group", "Room"}

// buildRunDataset renders a run's assignments in stored (input) order. A full
// run export carries an extra Source column; a single-source export filters
// on the job's source instead.
func buildRunDataset(job *models.ExportJob, assignments []models.RunAssignment) (export.Dataset, string) {
	headers := runDatasetHeaders
	if job.Source == "" {
		headers = append(append([]string{}, runDatasetHeaders...), "Source")
	}

	rows := make([]map[string]string, 0, len(assignments))
	for _, a := range assignments {
		source := strings.TrimSpace(a.SourceFile)
		if source == "" {
			source = timetable.UnknownSource
		}
		if job.Source != "" && source != job.Source {
			continue
		}
		row := map[string]string{
			"Day":           a.Day,
			"Period":        a.Period,
			"Assigned Slot": a.AssignedSlot,
			"Subject":       a.Subject,
			"Teacher":       a.Teacher,
			"Group":         a.GroupName,
			"Room":          a.Room,
		}
		if job.Source == "" {
			row["Source"] = source
		}
		rows = append(rows, row)
	}

	title := fmt.Sprintf("Consolidated Timetable %s", job.RunID)
	if job.Source != "" {
		title = fmt.Sprintf("Consolidated Timetable %s (%s)", job.RunID, job.Source)
	}
	return export.Dataset{Headers: headers, Rows: rows}, title
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "all"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func jobResponse(job *models.ExportJob) *dto.ExportJobResponse {
	return &dto.ExportJobResponse{
		JobID:     job.ID,
		RunID:     job.RunID,
		Source:    job.Source,
		Format:    job.Format,
		Status:    job.Status,
		URL:       job.ResultURL,
		ExpiresAt: job.ExpiresAt,
		Error:     job.ErrorMessage,
	}
}

// exportJobStore keeps job records in memory until they outlive their TTL.
type exportJobStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]models.ExportJob
}

func newExportJobStore(ttl time.Duration) *exportJobStore {
	return &exportJobStore{
		ttl:   ttl,
		items: make(map[string]models.ExportJob),
	}
}

func (s *exportJobStore) Save(job *models.ExportJob) {
	s.mu.Lock()
	s.items[job.ID] = *job
	s.mu.Unlock()
}

func (s *exportJobStore) Get(id string) (*models.ExportJob, bool) {
	s.mu.RLock()
	job, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Since(job.CreatedAt) > s.ttl {
		s.Delete(id)
		return nil, false
	}
	copied := job
	return &copied, true
}

func (s *exportJobStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

func (s *exportJobStore) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, job := range s.items {
		if time.Since(job.CreatedAt) > s.ttl {
			delete(s.items, id)
		}
	}
}
