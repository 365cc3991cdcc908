package storage

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lead_engine/models"
)

const leadsTable = `
CREATE TABLE leads (
	id UUID PRIMARY KEY,
	email TEXT UNIQUE,
	first_name TEXT,
	last_name TEXT,
	full_name TEXT,
	company_name TEXT,
	phone TEXT,
	linkedin_url TEXT,
	website TEXT,
	source_type TEXT,
	source_url TEXT,
	source_campaign TEXT,
	industry TEXT,
	company_size TEXT,
	job_title TEXT,
	lead_score INTEGER,
	budget_estimate TEXT,
	pain_points JSONB,
	likely_needs JSONB,
	qualification_notes TEXT,
	qualification_status TEXT NOT NULL DEFAULT 'new',
	raw_data JSONB,
	ai_model_used TEXT,
	processing_time_ms BIGINT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

// newTestPostgres opens TEST_DATABASE_URL in a throwaway schema.
func newTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	schema := "lead_engine_test_" + uuid.NewString()[:8]
	admin, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		admin.Close()
	})

	cfg, err := pgxpool.ParseConfig(url)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, leadsTable)
	require.NoError(t, err)
	return &PostgresStore{pool: pool}
}

func TestUpsertLeadKeepsOneRowPerEmail(t *testing.T) {
	store := newTestPostgres(t)
	ctx := context.Background()

	first := &models.Lead{
		Email:              "jane@acme.io",
		CompanyName:        "Acme",
		LeadScore:          40,
		QualificationNotes: "Too early",
		Status:             models.StatusNew,
		RawData:            json.RawMessage(`{"email":"jane@acme.io"}`),
	}
	id, status, err := store.UpsertLead(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, status)

	before, err := store.GetLeadByEmail(ctx, "jane@acme.io")
	require.NoError(t, err)
	require.NotNil(t, before)

	second := &models.Lead{
		Email:              "jane@acme.io",
		CompanyName:        "Acme Corp",
		LeadScore:          92,
		QualificationNotes: "Raised a round",
		Status:             models.StatusQualified,
	}
	again, status, err := store.UpsertLead(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, models.StatusNew, status)

	var rows int
	require.NoError(t, store.pool.QueryRow(ctx, `SELECT COUNT(*) FROM leads WHERE email = $1`, "jane@acme.io").Scan(&rows))
	assert.Equal(t, 1, rows)

	after, err := store.GetLeadByEmail(ctx, "jane@acme.io")
	require.NoError(t, err)
	assert.Equal(t, 92, after.LeadScore)
	assert.Equal(t, "Raised a round", after.QualificationNotes)
	assert.Equal(t, "Acme", after.CompanyName)
	assert.Equal(t, models.StatusNew, after.Status)
	assert.True(t, after.CreatedAt.Equal(before.CreatedAt))
	assert.False(t, after.UpdatedAt.Before(before.UpdatedAt))
}

func TestUpsertLeadWithoutEmailAlwaysInserts(t *testing.T) {
	store := newTestPostgres(t)
	ctx := context.Background()

	lead := &models.Lead{CompanyName: "Globex", LeadScore: 55, Status: models.StatusNew}
	a, _, err := store.UpsertLead(ctx, lead)
	require.NoError(t, err)
	b, _, err := store.UpsertLead(ctx, lead)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
