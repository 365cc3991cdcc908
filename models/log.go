package models

import (
	"time"

	"github.com/google/uuid"
)

type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// SystemLog is an append-only operational event stored in Postgres.
type SystemLog struct {
	ID           int64          `json:"id" db:"id"`
	Level        LogLevel       `json:"level" db:"level"`
	Component    string         `json:"component" db:"component"`
	Message      string         `json:"message" db:"message"`
	Metadata     map[string]any `json:"metadata" db:"metadata"`
	LeadID       *uuid.UUID     `json:"lead_id" db:"lead_id"`
	CampaignName string         `json:"campaign_name" db:"campaign_name"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}

// RunLog is a line of the local per-run log kept in SQLite.
type RunLog struct {
	ID        int64     `json:"id" db:"id"`
	RunID     *int64    `json:"run_id" db:"run_id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Level     LogLevel  `json:"level" db:"level"`
	Message   string    `json:"message" db:"message"`
	Scope     string    `json:"scope" db:"scope"`
}
