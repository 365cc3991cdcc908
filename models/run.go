package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// EngineRun summarises one campaign execution.
type EngineRun struct {
	ID               int64      `json:"id" db:"id"`
	Trigger          string     `json:"trigger" db:"trigger_source"`
	StartedAt        time.Time  `json:"started_at" db:"started_at"`
	FinishedAt       *time.Time `json:"finished_at" db:"finished_at"`
	Status           RunStatus  `json:"status" db:"status"`
	CampaignsRun     int        `json:"campaigns_run" db:"campaigns_run"`
	SourcesProcessed int        `json:"sources_processed" db:"sources_processed"`
	RecordsFound     int        `json:"records_found" db:"records_found"`
	LeadsStored      int        `json:"leads_stored" db:"leads_stored"`
	LeadsQualified   int        `json:"leads_qualified" db:"leads_qualified"`
	ErrorsCount      int        `json:"errors_count" db:"errors_count"`
	Note             string     `json:"note" db:"note"`
}
