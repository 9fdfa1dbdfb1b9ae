package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotwise/timetable-merge-api/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestCreateRunAssignsIDAndDefaults(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunRepository(db)

	mock.ExpectExec(`INSERT INTO resolution_runs`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	run := &models.ResolutionRun{
		Label:    "september import",
		RowCount: 12,
	}
	err := repo.CreateRun(context.Background(), nil, run)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.False(t, run.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAssignmentsSkipsEmptyBatch(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunRepository(db)

	err := repo.InsertAssignments(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAssignments(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunRepository(db)

	mock.ExpectExec(`INSERT INTO resolution_assignments`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	items := []models.RunAssignment{
		{RunID: "run-1", Position: 0, Day: "Mon", Period: "P1", Subject: "Math", Teacher: "T1", AssignedSlot: "Mon-P1"},
		{RunID: "run-1", Position: 1, Day: "Mon", Period: "P1", Subject: "Physics", Teacher: "T1", AssignedSlot: "Mon-P2"},
	}
	err := repo.InsertAssignments(context.Background(), nil, items)
	require.NoError(t, err)
	assert.NotEmpty(t, items[0].ID)
	assert.NotEmpty(t, items[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertConflictsDefaultsPositions(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunRepository(db)

	mock.ExpectExec(`INSERT INTO resolution_conflicts`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	items := []models.RunConflict{
		{RunID: "run-1", Kind: "teacher", Slot: "Mon-P1", Resource: "T1"},
	}
	err := repo.InsertConflicts(context.Background(), nil, items)
	require.NoError(t, err)
	assert.Equal(t, types.JSONText(`[]`), items[0].Positions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunRepository(db)

	createdAt := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "label", "row_count", "assigned_count", "dropped_count",
		"relocated_count", "exhausted_count", "conflict_count", "meta", "created_at",
	}).AddRow("run-1", "september import", 12, 10, 2, 3, 1, 1, []byte(`{}`), createdAt)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, label, row_count, assigned_count, dropped_count, relocated_count, exhausted_count, conflict_count, meta, created_at
FROM resolution_runs WHERE id = $1`)).
		WithArgs("run-1").
		WillReturnRows(rows)

	run, err := repo.FindByID(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "september import", run.Label)
	assert.Equal(t, 12, run.RowCount)
	assert.Equal(t, 1, run.ConflictCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListReturnsTotalAndPage(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM resolution_runs`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	rows := sqlmock.NewRows([]string{
		"id", "label", "row_count", "assigned_count", "dropped_count",
		"relocated_count", "exhausted_count", "conflict_count", "meta", "created_at",
	}).
		AddRow("run-2", "", 5, 5, 0, 0, 0, 0, []byte(`{}`), time.Now()).
		AddRow("run-1", "first", 3, 3, 0, 1, 0, 0, []byte(`{}`), time.Now())

	mock.ExpectQuery(`SELECT .+ FROM resolution_runs ORDER BY created_at DESC LIMIT \$1 OFFSET \$2`).
		WithArgs(2, 0).
		WillReturnRows(rows)

	runs, total, err := repo.List(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAssignmentsOrderedByPosition(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunRepository(db)

	rows := sqlmock.NewRows([]string{
		"id", "run_id", "position", "day", "period", "subject",
		"teacher", "room", "group_name", "source_file", "assigned_slot",
	}).
		AddRow("a1", "run-1", 0, "Mon", "P1", "Math", "T1", "R1", "9A", "a.csv", "Mon-P1").
		AddRow("a2", "run-1", 1, "Mon", "P1", "Physics", "T2", "R1", "9B", "b.csv", "Mon-P2")

	mock.ExpectQuery(`SELECT .+ FROM resolution_assignments WHERE run_id = \$1 ORDER BY position ASC`).
		WithArgs("run-1").
		WillReturnRows(rows)

	items, err := repo.ListAssignments(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Mon-P2", items[1].AssignedSlot)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListConflicts(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunRepository(db)

	rows := sqlmock.NewRows([]string{"id", "run_id", "kind", "slot", "resource", "positions"}).
		AddRow("c1", "run-1", "teacher", "Mon-P1", "T1", []byte(`[0,5]`))

	mock.ExpectQuery(`SELECT .+ FROM resolution_conflicts WHERE run_id = \$1`).
		WithArgs("run-1").
		WillReturnRows(rows)

	items, err := repo.ListConflicts(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "teacher", items[0].Kind)
	assert.Equal(t, types.JSONText(`[0,5]`), items[0].Positions)
	assert.NoError(t, mock.ExpectationsWereMet())
}
