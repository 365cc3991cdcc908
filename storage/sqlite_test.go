package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lead_engine/models"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRunLifecycle(t *testing.T) {
	store := newTestSQLite(t)

	run := &models.EngineRun{Trigger: "startup", StartedAt: time.Now(), Status: models.RunStatusRunning}
	id, err := store.CreateRun(run)
	require.NoError(t, err)
	run.ID = id

	require.NoError(t, store.Log(&id, models.LogLevelInfo, "Starting campaign saas", "saas"))
	require.NoError(t, store.Log(&id, models.LogLevelWarn, "No scraper for linkedin", "saas"))

	finished := time.Now()
	run.FinishedAt = &finished
	run.Status = models.RunStatusCompleted
	run.CampaignsRun = 1
	run.RecordsFound = 12
	run.LeadsStored = 10
	run.LeadsQualified = 4
	run.ErrorsCount = 2
	require.NoError(t, store.UpdateRun(run))

	runs, err := store.RecentRuns(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusCompleted, runs[0].Status)
	assert.Equal(t, "startup", runs[0].Trigger)
	assert.Equal(t, 12, runs[0].RecordsFound)
	assert.Equal(t, 4, runs[0].LeadsQualified)
	require.NotNil(t, runs[0].FinishedAt)

	logs, err := store.RunLogs(id)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.LogLevelWarn, logs[1].Level)
	assert.Equal(t, "saas", logs[1].Scope)
}

func TestCommandQueue(t *testing.T) {
	store := newTestSQLite(t)

	_, err := store.EnqueueCommand(models.CmdRunNow)
	require.NoError(t, err)
	_, err = store.EnqueueCommand(models.CmdReloadConfig)
	require.NoError(t, err)
	_, err = store.EnqueueCommand("scrape_site")
	assert.Error(t, err)

	cmds, err := store.GetPendingCommands()
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Equal(t, models.CmdRunNow, cmds[0].Command)
	assert.Equal(t, models.CmdReloadConfig, cmds[1].Command)

	require.NoError(t, store.MarkCommandProcessed(cmds[0].ID))
	cmds, err = store.GetPendingCommands()
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, models.CmdReloadConfig, cmds[0].Command)
}

func TestBatchKey(t *testing.T) {
	at := time.Date(2025, 1, 31, 14, 5, 9, 123000000, time.UTC)
	assert.Equal(t, "raw/2025-01-31/saas-q1/web-scraper/140509.123.json", BatchKey("SaaS Q1", "web_scraper", at))
	assert.Equal(t, "raw/2025-01-31/unnamed/csv/140509.123.json", BatchKey("!!", "csv", at))
}

func TestNullIfEmpty(t *testing.T) {
	assert.Nil(t, nullIfEmpty(""))
	require.NotNil(t, nullIfEmpty("x"))
	assert.Equal(t, "x", *nullIfEmpty("x"))
	assert.Equal(t, []string{}, nonNil(nil))
}
