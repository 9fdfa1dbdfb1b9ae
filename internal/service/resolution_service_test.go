package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/slotwise/timetable-merge-api/internal/dto"
	"github.com/slotwise/timetable-merge-api/internal/models"
	"github.com/slotwise/timetable-merge-api/internal/timetable"
	appErrors "github.com/slotwise/timetable-merge-api/pkg/errors"
)

type runRepositoryMock struct {
	createdRun  *models.ResolutionRun
	assignments []models.RunAssignment
	conflicts   []models.RunConflict

	findRun       *models.ResolutionRun
	findErr       error
	listRuns      []models.ResolutionRun
	listTotal     int
	listAssigns   []models.RunAssignment
	listConflicts []models.RunConflict
}

func (m *runRepositoryMock) CreateRun(ctx context.Context, exec sqlx.ExtContext, run *models.ResolutionRun) error {
	run.ID = "run-test"
	m.createdRun = run
	return nil
}

func (m *runRepositoryMock) InsertAssignments(ctx context.Context, exec sqlx.ExtContext, items []models.RunAssignment) error {
	m.assignments = items
	return nil
}

func (m *runRepositoryMock) InsertConflicts(ctx context.Context, exec sqlx.ExtContext, items []models.RunConflict) error {
	m.conflicts = items
	return nil
}

func (m *runRepositoryMock) FindByID(ctx context.Context, id string) (*models.ResolutionRun, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.findRun, nil
}

func (m *runRepositoryMock) List(ctx context.Context, limit, offset int) ([]models.ResolutionRun, int, error) {
	return m.listRuns, m.listTotal, nil
}

func (m *runRepositoryMock) ListAssignments(ctx context.Context, runID string) ([]models.RunAssignment, error) {
	return m.listAssigns, nil
}

func (m *runRepositoryMock) ListConflicts(ctx context.Context, runID string) ([]models.RunConflict, error) {
	return m.listConflicts, nil
}

type cacheMock struct {
	values map[string][]byte
	sets   int
}

func newCacheMock() *cacheMock {
	return &cacheMock{values: make(map[string][]byte)}
}

func (m *cacheMock) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *cacheMock) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	m.sets++
	return nil
}

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (*txProviderMock, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

func newResolutionService(t *testing.T, repo *runRepositoryMock, cache *cacheMock) (*ResolutionService, sqlmock.Sqlmock) {
	t.Helper()
	tx, mock := newTxProviderMock(t)
	svc := NewResolutionService(repo, cache, tx, nil, nil, zap.NewNop(), ResolutionConfig{MaxRows: 100})
	return svc, mock
}

func TestResolvePersistsRunAndReturnsOutcome(t *testing.T) {
	repo := &runRepositoryMock{}
	cache := newCacheMock()
	svc, mock := newResolutionService(t, repo, cache)
	mock.ExpectBegin()
	mock.ExpectCommit()

	req := dto.ResolveRequest{
		Label: "import",
		Rows: []dto.RowPayload{
			{Day: "Mon", Period: "P1", Subject: "Math", Teacher: "T1", SourceFile: "a.csv"},
			{Day: "monday", Period: "period 1", Subject: "Physics", Teacher: "T1", SourceFile: "b.csv"},
			{Day: "Xyz", Period: "P1", Teacher: "T9"},
		},
	}

	resp, err := svc.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "run-test", resp.RunID)
	require.Len(t, resp.Assignments, 2)
	assert.Equal(t, "Mon-P1", resp.Assignments[0].AssignedSlot)
	assert.Equal(t, "Mon-P2", resp.Assignments[1].AssignedSlot)
	assert.Equal(t, 1, resp.Stats.Dropped)
	assert.Equal(t, 1, resp.Stats.Relocated)
	assert.Empty(t, resp.Conflicts)

	require.NotNil(t, repo.createdRun)
	assert.Equal(t, 3, repo.createdRun.RowCount)
	assert.Equal(t, 2, repo.createdRun.AssignedCount)
	require.Len(t, repo.assignments, 2)
	assert.Equal(t, 0, repo.assignments[0].Position)
	assert.Equal(t, 1, repo.assignments[1].Position)
	assert.Equal(t, 1, cache.sets)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveRejectsEmptyRows(t *testing.T) {
	svc, _ := newResolutionService(t, &runRepositoryMock{}, newCacheMock())

	_, err := svc.Resolve(context.Background(), dto.ResolveRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestResolveRejectsOversizedPayload(t *testing.T) {
	tx, _ := newTxProviderMock(t)
	svc := NewResolutionService(&runRepositoryMock{}, newCacheMock(), tx, nil, nil, zap.NewNop(), ResolutionConfig{MaxRows: 1})

	req := dto.ResolveRequest{Rows: []dto.RowPayload{
		{Day: "Mon", Period: "P1", Teacher: "T1"},
		{Day: "Tue", Period: "P2", Teacher: "T2"},
	}}
	_, err := svc.Resolve(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestResolveStoresConflictPositions(t *testing.T) {
	repo := &runRepositoryMock{}
	svc, mock := newResolutionService(t, repo, newCacheMock())
	mock.ExpectBegin()
	mock.ExpectCommit()

	// Saturate teacher T across the grid, then one more row has nowhere
	// to go and collides back on Mon-P1.
	rows := make([]dto.RowPayload, 0, 31)
	rows = append(rows, dto.RowPayload{Day: "Mon", Period: "P1", Teacher: "T"})
	for _, slot := range timetable.RelocationOrder("Mon-P1") {
		day, period, ok := timetable.ParseSlotKey(slot)
		require.True(t, ok)
		rows = append(rows, dto.RowPayload{Day: day, Period: period, Teacher: "T"})
	}
	rows = append(rows, dto.RowPayload{Day: "Mon", Period: "P1", Teacher: "T"})

	resp, err := svc.Resolve(context.Background(), dto.ResolveRequest{Rows: rows})
	require.NoError(t, err)
	require.Len(t, resp.Conflicts, 1)

	require.Len(t, repo.conflicts, 1)
	assert.Equal(t, "teacher", repo.conflicts[0].Kind)
	assert.Equal(t, "Mon-P1", repo.conflicts[0].Slot)

	var positions []int
	require.NoError(t, json.Unmarshal(repo.conflicts[0].Positions, &positions))
	assert.Equal(t, []int{0, 30}, positions)
}

func TestGetRunReturnsCachedResponse(t *testing.T) {
	cache := newCacheMock()
	svc, _ := newResolutionService(t, &runRepositoryMock{}, cache)

	cached := dto.ResolveResponse{RunID: "run-9", Label: "cached"}
	require.NoError(t, cache.Set(context.Background(), "resolution:run:run-9", cached, time.Minute))

	resp, err := svc.GetRun(context.Background(), "run-9")
	require.NoError(t, err)
	assert.Equal(t, "cached", resp.Label)
}

func TestGetRunRebuildsFromStorage(t *testing.T) {
	repo := &runRepositoryMock{
		findRun: &models.ResolutionRun{
			ID: "run-2", RowCount: 3, DroppedCount: 1, RelocatedCount: 1,
			Meta: types.JSONText(`{}`), CreatedAt: time.Now(),
		},
		listAssigns: []models.RunAssignment{
			{Position: 0, Day: "Mon", Period: "P1", Teacher: "T1", SourceFile: "a.csv", AssignedSlot: "Mon-P1"},
			{Position: 1, Day: "Mon", Period: "P1", Teacher: "T2", AssignedSlot: "Mon-P2"},
		},
	}
	cache := newCacheMock()
	svc, _ := newResolutionService(t, repo, cache)

	resp, err := svc.GetRun(context.Background(), "run-2")
	require.NoError(t, err)
	assert.Equal(t, "run-2", resp.RunID)
	require.Len(t, resp.Assignments, 2)
	assert.Equal(t, 3, resp.Stats.TotalRows)
	assert.Len(t, resp.GroupedBySource["a.csv"], 1)
	assert.Len(t, resp.GroupedBySource[timetable.UnknownSource], 1)
	assert.Equal(t, 1, cache.sets)
}

func TestGetRunNotFound(t *testing.T) {
	repo := &runRepositoryMock{findErr: sql.ErrNoRows}
	svc, _ := newResolutionService(t, repo, newCacheMock())

	_, err := svc.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestListRunsAppliesPaginationDefaults(t *testing.T) {
	repo := &runRepositoryMock{
		listRuns: []models.ResolutionRun{
			{ID: "run-2", RowCount: 5, CreatedAt: time.Now()},
			{ID: "run-1", RowCount: 3, CreatedAt: time.Now().Add(-time.Hour)},
		},
		listTotal: 12,
	}
	svc, _ := newResolutionService(t, repo, newCacheMock())

	summaries, pagination, err := svc.ListRuns(context.Background(), dto.RunListQuery{})
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "run-2", summaries[0].RunID)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 12, pagination.TotalCount)
}

func TestGetConflictsDecodesPositions(t *testing.T) {
	repo := &runRepositoryMock{
		findRun: &models.ResolutionRun{ID: "run-3"},
		listConflicts: []models.RunConflict{
			{Kind: "room", Slot: "Tue-P4", Resource: "R1", Positions: types.JSONText(`[2,7]`)},
		},
	}
	svc, _ := newResolutionService(t, repo, newCacheMock())

	records, err := svc.GetConflicts(context.Background(), "run-3")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "room", records[0].Kind)
	assert.Equal(t, []int{2, 7}, records[0].Positions)
}
