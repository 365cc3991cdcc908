package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"lead_engine/models"
)

// SQLiteStore is the local operational database: engine runs, run logs and
// the command queue fed by the CLI.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS engine_runs (
		id INTEGER PRIMARY KEY,
		trigger_source TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		campaigns_run INTEGER DEFAULT 0,
		sources_processed INTEGER DEFAULT 0,
		records_found INTEGER DEFAULT 0,
		leads_stored INTEGER DEFAULT 0,
		leads_qualified INTEGER DEFAULT 0,
		errors_count INTEGER DEFAULT 0,
		note TEXT
	);

	CREATE TABLE IF NOT EXISTS run_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		scope TEXT
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_logs_run ON run_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON engine_runs(status, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// Runs
// =============================================================================

func (s *SQLiteStore) CreateRun(run *models.EngineRun) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO engine_runs (trigger_source, started_at, status)
		VALUES (?, ?, ?)`,
		run.Trigger, run.StartedAt, run.Status)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) UpdateRun(run *models.EngineRun) error {
	_, err := s.db.Exec(`
		UPDATE engine_runs SET finished_at = ?, status = ?, campaigns_run = ?, sources_processed = ?,
			records_found = ?, leads_stored = ?, leads_qualified = ?, errors_count = ?, note = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.CampaignsRun, run.SourcesProcessed, run.RecordsFound,
		run.LeadsStored, run.LeadsQualified, run.ErrorsCount, run.Note, run.ID)
	return err
}

func (s *SQLiteStore) RecentRuns(limit int) ([]models.EngineRun, error) {
	rows, err := s.db.Query(`
		SELECT id, COALESCE(trigger_source, ''), started_at, finished_at, status, campaigns_run, sources_processed,
			records_found, leads_stored, leads_qualified, errors_count, COALESCE(note, '')
		FROM engine_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.EngineRun
	for rows.Next() {
		var r models.EngineRun
		if err := rows.Scan(&r.ID, &r.Trigger, &r.StartedAt, &r.FinishedAt, &r.Status, &r.CampaignsRun,
			&r.SourcesProcessed, &r.RecordsFound, &r.LeadsStored, &r.LeadsQualified, &r.ErrorsCount, &r.Note); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) Log(runID *int64, level models.LogLevel, message, scope string) error {
	_, err := s.db.Exec(`
		INSERT INTO run_logs (run_id, timestamp, level, message, scope)
		VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now(), level, message, scope)
	return err
}

func (s *SQLiteStore) RunLogs(runID int64) ([]models.RunLog, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, timestamp, level, message, scope
		FROM run_logs WHERE run_id = ? ORDER BY timestamp, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.RunLog
	for rows.Next() {
		var l models.RunLog
		if err := rows.Scan(&l.ID, &l.RunID, &l.Timestamp, &l.Level, &l.Message, &l.Scope); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// =============================================================================
// Commands
// =============================================================================

func (s *SQLiteStore) EnqueueCommand(cmd models.CommandType) (int64, error) {
	if !cmd.Valid() {
		return 0, fmt.Errorf("unknown command %q", cmd)
	}
	result, err := s.db.Exec(`INSERT INTO commands (command, created_at) VALUES (?, ?)`, cmd, time.Now())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		if err := rows.Scan(&cmd.ID, &cmd.Command, &cmd.CreatedAt, &cmd.ProcessedAt); err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}
