package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/profile-harvester/internal/store"
)

func newMockRunStore(t *testing.T) (*RunStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRunStoreWithPool(mock), mock
}

func TestRunStoreStartRun(t *testing.T) {
	t.Parallel()

	s, mock := newMockRunStore(t)
	id := uuid.New()
	started := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("INSERT INTO harvest_runs").
		WithArgs(id, store.KindCrawl, "https://example.com/list", started, store.RunRunning).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.StartRun(context.Background(), store.Run{
		ID:        id,
		Kind:      store.KindCrawl,
		StartURL:  "https://example.com/list",
		StartedAt: started,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreCompleteRunMissing(t *testing.T) {
	t.Parallel()

	s, mock := newMockRunStore(t)
	id := uuid.New()
	finished := time.Unix(1700000100, 0).UTC()

	mock.ExpectExec("UPDATE harvest_runs").
		WithArgs(finished, store.RunSuccess, int64(42), "max_pages", (*string)(nil), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteRun(context.Background(), id, finished, store.RunSuccess, 42, "max_pages", nil)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreAddStageStats(t *testing.T) {
	t.Parallel()

	s, mock := newMockRunStore(t)
	id := uuid.New()
	at := time.Unix(1700000050, 0).UTC()

	mock.ExpectExec("INSERT INTO harvest_run_stages").
		WithArgs(id, "PAGE_STORED", int64(1), int64(0), int64(20), at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO harvest_run_stages").
		WithArgs(id, "EMBED_BATCH", int64(0), int64(1), int64(100), at).
		WillReturnError(errors.New("connection reset"))

	require.NoError(t, s.AddStageStats(context.Background(), id, "PAGE_STORED", 1, 0, 20, at))
	err := s.AddStageStats(context.Background(), id, "EMBED_BATCH", 0, 1, 100, at)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreGetRun(t *testing.T) {
	t.Parallel()

	s, mock := newMockRunStore(t)
	id := uuid.New()
	started := time.Unix(1700000000, 0).UTC()
	finished := started.Add(time.Minute)
	msg := "browser crashed"

	mock.ExpectQuery("SELECT id, kind").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(runColumnNames()).
			AddRow(id, "crawl", "https://example.com", started, &finished, "error", "", int64(7), &msg))

	run, err := s.GetRun(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.KindCrawl, run.Kind)
	assert.Equal(t, store.RunError, run.Status)
	assert.Equal(t, int64(7), run.Total)
	require.NotNil(t, run.FinishedAt)
	assert.True(t, finished.Equal(*run.FinishedAt))
	require.NotNil(t, run.ErrorMessage)
	assert.Equal(t, msg, *run.ErrorMessage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreGetRunNotFound(t *testing.T) {
	t.Parallel()

	s, mock := newMockRunStore(t)
	id := uuid.New()
	mock.ExpectQuery("SELECT id, kind").WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), id)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreListRunsAndStages(t *testing.T) {
	t.Parallel()

	s, mock := newMockRunStore(t)
	id := uuid.New()
	started := time.Unix(1700000000, 0).UTC()
	status := store.RunRunning

	mock.ExpectQuery("FROM harvest_runs").
		WithArgs(&status, 10, 0).
		WillReturnRows(pgxmock.NewRows(runColumnNames()).
			AddRow(id, "embed", "", started, (*time.Time)(nil), "running", "", int64(0), (*string)(nil)))
	mock.ExpectQuery("FROM harvest_run_stages").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"run_id", "stage", "succeeded", "failed", "units", "last_update"}).
			AddRow(id, "EMBED_BATCH", int64(2), int64(1), int64(250), started).
			AddRow(id, "EMBED_ITEM", int64(249), int64(1), int64(0), started))

	runs, err := s.ListRuns(context.Background(), &status, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.KindEmbed, runs[0].Kind)
	assert.Nil(t, runs[0].FinishedAt)

	stages, err := s.ListRunStages(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, stages, 2)
	assert.Equal(t, "EMBED_BATCH", stages[0].Stage)
	assert.Equal(t, int64(250), stages[0].Units)
	require.NoError(t, mock.ExpectationsWereMet())
}

func runColumnNames() []string {
	return []string{"id", "kind", "start_url", "started_at", "finished_at", "status", "reason", "total", "error_message"}
}

func TestRunStorePing(t *testing.T) {
	t.Parallel()

	s, mock := newMockRunStore(t)
	mock.ExpectQuery("SELECT 1").WillReturnRows(pgxmock.NewRows([]string{"one"}).AddRow(1))
	require.NoError(t, s.Ping(context.Background()))

	mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("down"))
	require.Error(t, s.Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
