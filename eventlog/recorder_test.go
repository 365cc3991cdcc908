package eventlog

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lead_engine/logging"
	"lead_engine/models"
)

type memorySink struct {
	logs  []*models.SystemLog
	usage []*models.UsageRecord
	err   error
}

func (m *memorySink) InsertSystemLog(_ context.Context, entry *models.SystemLog) error {
	if m.err != nil {
		return m.err
	}
	m.logs = append(m.logs, entry)
	return nil
}

func (m *memorySink) InsertUsage(_ context.Context, rec *models.UsageRecord) error {
	if m.err != nil {
		return m.err
	}
	m.usage = append(m.usage, rec)
	return nil
}

func TestLogLiftsMetadataColumns(t *testing.T) {
	sink := &memorySink{}
	r := New(sink)
	id := uuid.New()

	r.Log(context.Background(), models.LogLevelInfo, "qualification", "Lead qualified", map[string]any{
		MetaLeadID:   id.String(),
		MetaCampaign: "saas",
		"score":      82,
	})

	require.Len(t, sink.logs, 1)
	entry := sink.logs[0]
	assert.Equal(t, models.LogLevelInfo, entry.Level)
	assert.Equal(t, "qualification", entry.Component)
	require.NotNil(t, entry.LeadID)
	assert.Equal(t, id, *entry.LeadID)
	assert.Equal(t, "saas", entry.CampaignName)
	assert.Equal(t, 82, entry.Metadata["score"])
}

func TestLogSurvivesCancelledContext(t *testing.T) {
	sink := &memorySink{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	New(sink).Log(ctx, models.LogLevelWarn, "scheduler", "shutting down", nil)
	assert.Len(t, sink.logs, 1)
}

func TestSinkFailureGoesToOperatorChannel(t *testing.T) {
	var buf bytes.Buffer
	logging.SetOperatorOutput(&buf)
	t.Cleanup(func() { logging.SetOperatorOutput(os.Stderr) })

	r := New(&memorySink{err: errors.New("connection refused")})
	r.Log(context.Background(), models.LogLevelError, "scraper", "boom", nil)
	r.RecordUsage(context.Background(), models.UsageRecord{ModelName: "m", Endpoint: "e"})

	out := buf.String()
	assert.Contains(t, out, "system_logs write failed")
	assert.Contains(t, out, "ai_usage write failed")
	assert.Contains(t, out, "connection refused")
}

func TestRecordUsageComputesTotal(t *testing.T) {
	sink := &memorySink{}
	New(sink).RecordUsage(context.Background(), models.UsageRecord{PromptTokens: 10, CompletionTokens: 4})

	require.Len(t, sink.usage, 1)
	assert.Equal(t, 14, sink.usage[0].TotalTokens)
	assert.False(t, sink.usage[0].CreatedAt.IsZero())
}

func TestNilSinkOnlyLogsLocally(t *testing.T) {
	r := New(nil)
	r.Log(context.Background(), models.LogLevelInfo, "engine", "hello", nil)
	r.RecordUsage(context.Background(), models.UsageRecord{})
}
