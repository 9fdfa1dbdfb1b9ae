package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/slotwise/timetable-merge-api/internal/dto"
	"github.com/slotwise/timetable-merge-api/internal/models"
	"github.com/slotwise/timetable-merge-api/internal/timetable"
	appErrors "github.com/slotwise/timetable-merge-api/pkg/errors"
)

type runRepository interface {
	CreateRun(ctx context.Context, exec sqlx.ExtContext, run *models.ResolutionRun) error
	InsertAssignments(ctx context.Context, exec sqlx.ExtContext, items []models.RunAssignment) error
	InsertConflicts(ctx context.Context, exec sqlx.ExtContext, items []models.RunConflict) error
	FindByID(ctx context.Context, id string) (*models.ResolutionRun, error)
	List(ctx context.Context, limit, offset int) ([]models.ResolutionRun, int, error)
	ListAssignments(ctx context.Context, runID string) ([]models.RunAssignment, error)
	ListConflicts(ctx context.Context, runID string) ([]models.RunConflict, error)
}

type runCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type resolveObserver interface {
	ObserveResolveRun(stats timetable.Stats, conflicts int, duration time.Duration)
	RecordCacheOperation(hit bool, duration time.Duration)
}

// ResolutionConfig tunes resolution behaviour.
type ResolutionConfig struct {
	MaxRows  int
	CacheTTL time.Duration
}

// ResolutionService runs the consolidation engine over submitted rows and
// persists each run with its assignments and conflicts.
type ResolutionService struct {
	repo      runRepository
	cache     runCache
	tx        txProvider
	metrics   resolveObserver
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ResolutionConfig
}

// NewResolutionService wires resolution dependencies.
func NewResolutionService(repo runRepository, cache runCache, tx txProvider, metrics resolveObserver, validate *validator.Validate, logger *zap.Logger, cfg ResolutionConfig) *ResolutionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 5000
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	return &ResolutionService{
		repo:      repo,
		cache:     cache,
		tx:        tx,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// Resolve consolidates the submitted rows and stores the run.
func (s *ResolutionService) Resolve(ctx context.Context, req dto.ResolveRequest) (*dto.ResolveResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resolve payload")
	}
	if len(req.Rows) > s.cfg.MaxRows {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("row count exceeds limit of %d", s.cfg.MaxRows))
	}

	rows := req.EngineRows()
	started := time.Now()
	result := timetable.Resolve(rows, s.observer())
	elapsed := time.Since(started)

	run := &models.ResolutionRun{
		Label:          strings.TrimSpace(req.Label),
		RowCount:       result.Stats.TotalRows,
		AssignedCount:  len(result.Assignments),
		DroppedCount:   result.Stats.Dropped,
		RelocatedCount: result.Stats.Relocated,
		ExhaustedCount: result.Stats.Exhausted,
		ConflictCount:  len(result.Conflicts),
		CreatedAt:      time.Now().UTC(),
	}
	meta, err := json.Marshal(map[string]interface{}{"durationMs": elapsed.Milliseconds()})
	if err == nil {
		run.Meta = types.JSONText(meta)
	}

	if err := s.persistRun(ctx, run, result); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store resolution run")
	}

	if s.metrics != nil {
		s.metrics.ObserveResolveRun(result.Stats, len(result.Conflicts), elapsed)
	}
	s.logger.Info("resolution run completed",
		zap.String("run_id", run.ID),
		zap.Int("rows", result.Stats.TotalRows),
		zap.Int("dropped", result.Stats.Dropped),
		zap.Int("relocated", result.Stats.Relocated),
		zap.Int("exhausted", result.Stats.Exhausted),
		zap.Int("conflicts", len(result.Conflicts)),
		zap.Duration("duration", elapsed),
	)

	response := &dto.ResolveResponse{
		RunID:           run.ID,
		Label:           run.Label,
		Assignments:     result.Assignments,
		Conflicts:       result.Conflicts,
		GroupedBySource: result.BySource,
		Stats:           result.Stats,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, runCacheKey(run.ID), response, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("failed to cache resolution run", zap.String("run_id", run.ID), zap.Error(err))
		}
	}

	return response, nil
}

// GetRun loads a stored run with its assignments and conflicts.
func (s *ResolutionService) GetRun(ctx context.Context, runID string) (*dto.ResolveResponse, error) {
	if s.cache != nil {
		var cached dto.ResolveResponse
		lookupStart := time.Now()
		err := s.cache.Get(ctx, runCacheKey(runID), &cached)
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(err == nil, time.Since(lookupStart))
		}
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("run cache lookup failed", zap.String("run_id", runID), zap.Error(err))
		}
	}

	run, err := s.repo.FindByID(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "resolution run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resolution run")
	}

	stored, err := s.repo.ListAssignments(ctx, runID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load run assignments")
	}

	assignments := make([]timetable.Assignment, 0, len(stored))
	for _, item := range stored {
		assignments = append(assignments, timetable.Assignment{
			Row: timetable.Row{
				Day:        item.Day,
				Period:     item.Period,
				Subject:    item.Subject,
				Teacher:    item.Teacher,
				Room:       item.Room,
				Group:      item.GroupName,
				SourceFile: item.SourceFile,
			},
			AssignedSlot: item.AssignedSlot,
		})
	}

	grouped := make(map[string][]timetable.Assignment)
	for _, a := range assignments {
		source := strings.TrimSpace(a.SourceFile)
		if source == "" {
			source = timetable.UnknownSource
		}
		grouped[source] = append(grouped[source], a)
	}

	response := &dto.ResolveResponse{
		RunID:           run.ID,
		Label:           run.Label,
		Assignments:     assignments,
		Conflicts:       timetable.DetectConflicts(assignments),
		GroupedBySource: grouped,
		Stats: timetable.Stats{
			TotalRows: run.RowCount,
			Dropped:   run.DroppedCount,
			Relocated: run.RelocatedCount,
			Exhausted: run.ExhaustedCount,
		},
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, runCacheKey(runID), response, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("failed to cache resolution run", zap.String("run_id", runID), zap.Error(err))
		}
	}

	return response, nil
}

// ListRuns returns run summaries newest first.
func (s *ResolutionService) ListRuns(ctx context.Context, query dto.RunListQuery) ([]dto.RunSummary, models.Pagination, error) {
	page := query.Page
	if page < 1 {
		page = 1
	}
	pageSize := query.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	runs, total, err := s.repo.List(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, models.Pagination{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list resolution runs")
	}

	summaries := make([]dto.RunSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, dto.RunSummary{
			RunID:          run.ID,
			Label:          run.Label,
			RowCount:       run.RowCount,
			AssignedCount:  run.AssignedCount,
			DroppedCount:   run.DroppedCount,
			RelocatedCount: run.RelocatedCount,
			ExhaustedCount: run.ExhaustedCount,
			ConflictCount:  run.ConflictCount,
			CreatedAt:      run.CreatedAt,
		})
	}

	pagination := models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
	return summaries, pagination, nil
}

// GetConflicts returns the stored conflicts of a run.
func (s *ResolutionService) GetConflicts(ctx context.Context, runID string) ([]dto.ConflictRecord, error) {
	if _, err := s.repo.FindByID(ctx, runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "resolution run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resolution run")
	}

	stored, err := s.repo.ListConflicts(ctx, runID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load run conflicts")
	}

	records := make([]dto.ConflictRecord, 0, len(stored))
	for _, item := range stored {
		var positions []int
		if len(item.Positions) > 0 {
			if err := json.Unmarshal(item.Positions, &positions); err != nil {
				s.logger.Warn("failed to decode conflict positions", zap.String("run_id", runID), zap.Error(err))
			}
		}
		records = append(records, dto.ConflictRecord{
			Kind:      item.Kind,
			Slot:      item.Slot,
			Resource:  item.Resource,
			Positions: positions,
		})
	}
	return records, nil
}

func (s *ResolutionService) persistRun(ctx context.Context, run *models.ResolutionRun, result timetable.Result) error {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := s.repo.CreateRun(ctx, tx, run); err != nil {
		return err
	}
	if err := s.repo.InsertAssignments(ctx, tx, assignmentRecords(run.ID, result.Assignments)); err != nil {
		return err
	}
	if err := s.repo.InsertConflicts(ctx, tx, conflictRecords(run.ID, result)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *ResolutionService) observer() timetable.Observer {
	return func(event timetable.Event) {
		switch event.Type {
		case timetable.EventRowDropped:
			s.logger.Debug("row dropped",
				zap.String("day", event.Row.Day),
				zap.String("period", event.Row.Period),
				zap.String("source", event.Row.SourceFile),
			)
		case timetable.EventRelocated:
			s.logger.Debug("row relocated",
				zap.String("origin", event.OriginSlot),
				zap.String("assigned", event.AssignedSlot),
				zap.String("teacher", event.Row.Teacher),
			)
		case timetable.EventRelocationExhausted:
			s.logger.Warn("relocation exhausted, keeping original slot",
				zap.String("slot", event.OriginSlot),
				zap.String("teacher", event.Row.Teacher),
				zap.String("room", event.Row.Room),
				zap.String("group", event.Row.Group),
			)
		}
	}
}

func assignmentRecords(runID string, assignments []timetable.Assignment) []models.RunAssignment {
	records := make([]models.RunAssignment, 0, len(assignments))
	for position, a := range assignments {
		records = append(records, models.RunAssignment{
			RunID:        runID,
			Position:     position,
			Day:          a.Day,
			Period:       a.Period,
			Subject:      a.Subject,
			Teacher:      a.Teacher,
			Room:         a.Room,
			GroupName:    a.Group,
			SourceFile:   a.SourceFile,
			AssignedSlot: a.AssignedSlot,
		})
	}
	return records
}

// conflictRecords rebuilds conflict membership as assignment positions. A
// conflict holds every assignment in its slot whose trimmed resource identity
// matches, so the scan reproduces the engine grouping exactly.
func conflictRecords(runID string, result timetable.Result) []models.RunConflict {
	records := make([]models.RunConflict, 0, len(result.Conflicts))
	for _, conflict := range result.Conflicts {
		positions := make([]int, 0, len(conflict.Assignments))
		for position, a := range result.Assignments {
			if a.AssignedSlot != conflict.Slot {
				continue
			}
			if strings.TrimSpace(conflictIdentity(conflict.Kind, a)) == conflict.Resource {
				positions = append(positions, position)
			}
		}
		encoded, err := json.Marshal(positions)
		if err != nil {
			encoded = []byte(`[]`)
		}
		records = append(records, models.RunConflict{
			RunID:     runID,
			Kind:      string(conflict.Kind),
			Slot:      conflict.Slot,
			Resource:  conflict.Resource,
			Positions: types.JSONText(encoded),
		})
	}
	return records
}

func conflictIdentity(kind timetable.ConflictKind, a timetable.Assignment) string {
	switch kind {
	case timetable.ConflictTeacher:
		return a.Teacher
	case timetable.ConflictRoom:
		return a.Room
	case timetable.ConflictGroup:
		return a.Group
	default:
		return ""
	}
}

func runCacheKey(runID string) string {
	return "resolution:run:" + runID
}
