package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lead_engine/models"
)

// PostgresStore holds leads, usage and system logs. The schema is owned
// outside this process.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 30 * time.Second
	config.ConnConfig.ConnectTimeout = 5 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// =============================================================================
// Leads
// =============================================================================

// UpsertLead inserts a lead, or for an existing email refreshes only the
// score, notes and updated_at. Leads without an email are always inserted.
// It returns the stored id and qualification status.
func (s *PostgresStore) UpsertLead(ctx context.Context, lead *models.Lead) (uuid.UUID, models.QualificationStatus, error) {
	id := lead.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	painPoints, _ := json.Marshal(nonNil(lead.PainPoints))
	likelyNeeds, _ := json.Marshal(nonNil(lead.LikelyNeeds))
	rawData := lead.RawData
	if len(rawData) == 0 {
		rawData = json.RawMessage("{}")
	}

	query := `
		INSERT INTO leads (
			id, email, first_name, last_name, full_name, company_name, phone,
			linkedin_url, website, source_type, source_url, source_campaign,
			industry, company_size, job_title, lead_score, budget_estimate,
			pain_points, likely_needs, qualification_notes, qualification_status,
			raw_data, ai_model_used, processing_time_ms, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, NOW(), NOW()
		)
		ON CONFLICT (email) DO UPDATE SET
			lead_score = EXCLUDED.lead_score,
			qualification_notes = EXCLUDED.qualification_notes,
			updated_at = NOW()
		RETURNING id, qualification_status`

	var (
		stored uuid.UUID
		status string
	)
	err := s.pool.QueryRow(ctx, query,
		id, nullIfEmpty(lead.Email), nullIfEmpty(lead.FirstName), nullIfEmpty(lead.LastName),
		nullIfEmpty(lead.FullName), nullIfEmpty(lead.CompanyName), nullIfEmpty(lead.Phone),
		nullIfEmpty(lead.LinkedInURL), nullIfEmpty(lead.Website), nullIfEmpty(lead.SourceType),
		nullIfEmpty(lead.SourceURL), nullIfEmpty(lead.SourceCampaign), nullIfEmpty(lead.Industry),
		nullIfEmpty(lead.CompanySize), nullIfEmpty(lead.JobTitle), lead.LeadScore,
		nullIfEmpty(lead.BudgetEstimate), painPoints, likelyNeeds, nullIfEmpty(lead.QualificationNotes),
		string(lead.Status), rawData, nullIfEmpty(lead.AIModelUsed), lead.ProcessingTimeMS,
	).Scan(&stored, &status)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("upsert lead: %w", err)
	}
	return stored, models.QualificationStatus(status), nil
}

func (s *PostgresStore) GetLeadByEmail(ctx context.Context, email string) (*models.Lead, error) {
	query := `
		SELECT id, COALESCE(email, ''), COALESCE(company_name, ''), COALESCE(lead_score, 0),
			COALESCE(qualification_notes, ''), qualification_status, created_at, updated_at
		FROM leads WHERE email = $1`

	var l models.Lead
	err := s.pool.QueryRow(ctx, query, email).Scan(
		&l.ID, &l.Email, &l.CompanyName, &l.LeadScore, &l.QualificationNotes, &l.Status,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// =============================================================================
// Quota counts
// =============================================================================

func (s *PostgresStore) CountLeadsCreated(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM leads WHERE created_at >= $1 AND created_at < $2`, from, to,
	).Scan(&n)
	return n, err
}

func (s *PostgresStore) CountOutreachSent(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outreach WHERE sent_at >= $1 AND sent_at < $2`, from, to,
	).Scan(&n)
	return n, err
}

// =============================================================================
// Usage and system logs
// =============================================================================

func (s *PostgresStore) InsertUsage(ctx context.Context, rec *models.UsageRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ai_usage (
			model_name, endpoint, task_type, prompt_tokens, completion_tokens, total_tokens,
			response_time_ms, estimated_cost, lead_id, campaign_name, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ModelName, rec.Endpoint, rec.TaskType, rec.PromptTokens, rec.CompletionTokens,
		rec.TotalTokens, rec.ResponseTimeMS, rec.EstimatedCost, rec.LeadID,
		nullIfEmpty(rec.CampaignName), rec.CreatedAt,
	)
	return err
}

func (s *PostgresStore) InsertSystemLog(ctx context.Context, entry *models.SystemLog) error {
	var metadata []byte
	if entry.Metadata != nil {
		b, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		metadata = b
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO system_logs (level, component, message, metadata, lead_id, campaign_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(entry.Level), entry.Component, entry.Message, metadata, entry.LeadID,
		nullIfEmpty(entry.CampaignName), entry.CreatedAt,
	)
	return err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
