package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord is one row of the ai_usage table, written per successful
// completion. Rows are never updated.
type UsageRecord struct {
	ModelName        string     `json:"model_name" db:"model_name"`
	Endpoint         string     `json:"endpoint" db:"endpoint"`
	TaskType         string     `json:"task_type" db:"task_type"`
	PromptTokens     int        `json:"prompt_tokens" db:"prompt_tokens"`
	CompletionTokens int        `json:"completion_tokens" db:"completion_tokens"`
	TotalTokens      int        `json:"total_tokens" db:"total_tokens"`
	ResponseTimeMS   int64      `json:"response_time_ms" db:"response_time_ms"`
	EstimatedCost    float64    `json:"estimated_cost" db:"estimated_cost"`
	LeadID           *uuid.UUID `json:"lead_id" db:"lead_id"`
	CampaignName     string     `json:"campaign_name" db:"campaign_name"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
}
