// Package eventlog appends operational events and model usage rows to the
// relational store. Writes never fail the caller: errors are reported on the
// operator channel and dropped.
package eventlog

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"lead_engine/logging"
	"lead_engine/models"
)

const writeTimeout = 5 * time.Second

// Metadata keys lifted into dedicated columns.
const (
	MetaLeadID   = "lead_id"
	MetaCampaign = "campaign_name"
)

type Sink interface {
	InsertSystemLog(ctx context.Context, entry *models.SystemLog) error
	InsertUsage(ctx context.Context, rec *models.UsageRecord) error
}

type Recorder struct {
	sink Sink
}

// New returns a Recorder writing to sink. A nil sink only logs locally.
func New(sink Sink) *Recorder {
	return &Recorder{sink: sink}
}

func (r *Recorder) Log(ctx context.Context, level models.LogLevel, component, message string, meta map[string]any) {
	log.Printf("[%s] %s: %s", level, component, message)
	if r == nil || r.sink == nil {
		return
	}

	entry := &models.SystemLog{
		Level:     level,
		Component: component,
		Message:   message,
		Metadata:  meta,
		CreatedAt: time.Now(),
	}
	if meta != nil {
		entry.LeadID = leadIDFrom(meta[MetaLeadID])
		if name, ok := meta[MetaCampaign].(string); ok {
			entry.CampaignName = name
		}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := r.sink.InsertSystemLog(ctx, entry); err != nil {
		logging.Operator().Printf("system_logs write failed (%s: %s): %v", component, message, err)
	}
}

// RecordUsage appends one ai_usage row.
func (r *Recorder) RecordUsage(ctx context.Context, rec models.UsageRecord) {
	if r == nil || r.sink == nil {
		return
	}
	if rec.TotalTokens == 0 {
		rec.TotalTokens = rec.PromptTokens + rec.CompletionTokens
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := r.sink.InsertUsage(ctx, &rec); err != nil {
		logging.Operator().Printf("ai_usage write failed (%s @ %s): %v", rec.ModelName, rec.Endpoint, err)
	}
}

func leadIDFrom(v any) *uuid.UUID {
	switch id := v.(type) {
	case uuid.UUID:
		return &id
	case *uuid.UUID:
		return id
	case string:
		if parsed, err := uuid.Parse(id); err == nil {
			return &parsed
		}
	}
	return nil
}
