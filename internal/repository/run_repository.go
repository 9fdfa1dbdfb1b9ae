package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/slotwise/timetable-merge-api/internal/models"
)

// RunRepository persists resolution runs with their assignments and
// conflicts. The engine stays stateless; rows land here strictly after a run
// completes.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository constructs repository.
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// CreateRun inserts the run summary record.
func (r *RunRepository) CreateRun(ctx context.Context, exec sqlx.ExtContext, run *models.ResolutionRun) error {
	if run == nil {
		return fmt.Errorf("run payload is nil")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if len(run.Meta) == 0 {
		run.Meta = types.JSONText(`{}`)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	const query = `
INSERT INTO resolution_runs (id, label, row_count, assigned_count, dropped_count, relocated_count, exhausted_count, conflict_count, meta, created_at)
VALUES (:id, :label, :row_count, :assigned_count, :dropped_count, :relocated_count, :exhausted_count, :conflict_count, :meta, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, run); err != nil {
		return fmt.Errorf("insert resolution run: %w", err)
	}
	return nil
}

// InsertAssignments stores resolved rows keyed by input position.
func (r *RunRepository) InsertAssignments(ctx context.Context, exec sqlx.ExtContext, items []models.RunAssignment) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
	}

	const query = `
INSERT INTO resolution_assignments (id, run_id, position, day, period, subject, teacher, room, group_name, source_file, assigned_slot)
VALUES (:id, :run_id, :position, :day, :period, :subject, :teacher, :room, :group_name, :source_file, :assigned_slot)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, items); err != nil {
		return fmt.Errorf("insert resolution assignments: %w", err)
	}
	return nil
}

// InsertConflicts stores the unavoidable double-bookings of a run.
func (r *RunRepository) InsertConflicts(ctx context.Context, exec sqlx.ExtContext, items []models.RunConflict) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		if len(items[i].Positions) == 0 {
			items[i].Positions = types.JSONText(`[]`)
		}
	}

	const query = `
INSERT INTO resolution_conflicts (id, run_id, kind, slot, resource, positions)
VALUES (:id, :run_id, :kind, :slot, :resource, :positions)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, items); err != nil {
		return fmt.Errorf("insert resolution conflicts: %w", err)
	}
	return nil
}

// FindByID loads a run summary by its identifier.
func (r *RunRepository) FindByID(ctx context.Context, id string) (*models.ResolutionRun, error) {
	const query = `SELECT id, label, row_count, assigned_count, dropped_count, relocated_count, exhausted_count, conflict_count, meta, created_at
FROM resolution_runs WHERE id = $1`
	var run models.ResolutionRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, err
	}
	return &run, nil
}

// List returns run summaries newest first together with the total count.
func (r *RunRepository) List(ctx context.Context, limit, offset int) ([]models.ResolutionRun, int, error) {
	const countQuery = `SELECT COUNT(*) FROM resolution_runs`
	total := 0
	if err := r.db.GetContext(ctx, &total, countQuery); err != nil {
		return nil, 0, fmt.Errorf("count resolution runs: %w", err)
	}

	const query = `SELECT id, label, row_count, assigned_count, dropped_count, relocated_count, exhausted_count, conflict_count, meta, created_at
FROM resolution_runs ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	runs := []models.ResolutionRun{}
	if err := r.db.SelectContext(ctx, &runs, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("list resolution runs: %w", err)
	}
	return runs, total, nil
}

// ListAssignments returns a run's assignments in input order.
func (r *RunRepository) ListAssignments(ctx context.Context, runID string) ([]models.RunAssignment, error) {
	const query = `SELECT id, run_id, position, day, period, subject, teacher, room, group_name, source_file, assigned_slot
FROM resolution_assignments WHERE run_id = $1 ORDER BY position ASC`
	var items []models.RunAssignment
	if err := r.db.SelectContext(ctx, &items, query, runID); err != nil {
		return nil, fmt.Errorf("list resolution assignments: %w", err)
	}
	return items, nil
}

// ListConflicts returns a run's stored conflicts.
func (r *RunRepository) ListConflicts(ctx context.Context, runID string) ([]models.RunConflict, error) {
	const query = `SELECT id, run_id, kind, slot, resource, positions
FROM resolution_conflicts WHERE run_id = $1 ORDER BY slot, kind, resource`
	var items []models.RunConflict
	if err := r.db.SelectContext(ctx, &items, query, runID); err != nil {
		return nil, fmt.Errorf("list resolution conflicts: %w", err)
	}
	return items, nil
}
