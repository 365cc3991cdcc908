package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"lead_engine/config"
	"lead_engine/identity"
	"lead_engine/inference"
	"lead_engine/models"
)

var (
	ErrCampaignNotFound  = errors.New("campaign not found")
	ErrTemplateNotFound  = errors.New("prompt template not found")
	ErrMalformedResponse = errors.New("malformed model response")
)

// DefaultScore is assigned when the model omits lead_score.
const DefaultScore = 50

const componentQualification = "qualification"

type Completer interface {
	Complete(ctx context.Context, prompt, taskType string) (*inference.Result, error)
}

type LeadStore interface {
	UpsertLead(ctx context.Context, lead *models.Lead) (uuid.UUID, models.QualificationStatus, error)
}

type EventLogger interface {
	Log(ctx context.Context, level models.LogLevel, component, message string, meta map[string]any)
}

// QualificationService turns a raw record into a scored, persisted lead.
type QualificationService struct {
	cfg    *config.Holder
	ai     Completer
	leads  LeadStore
	events EventLogger
}

func NewQualificationService(cfg *config.Holder, ai Completer, leads LeadStore, events EventLogger) *QualificationService {
	return &QualificationService{cfg: cfg, ai: ai, leads: leads, events: events}
}

// QualifyResult contains the outcome of qualifying one record
// QualifyResult describes one qualified record. Status is the status the
// store holds for the lead, which for an existing email is the one it was
// first stored with.
type QualifyResult struct {
	LeadID         uuid.UUID
	Lead           *models.Lead
	Qualification  models.Qualification
	Status         models.QualificationStatus
	ModelUsed      string
	Endpoint       string
	ProcessingTime time.Duration
}

// Qualify scores record for the named campaign and upserts the lead by email.
// Every outcome is written to the event log.
func (s *QualificationService) Qualify(ctx context.Context, record models.RawRecord, campaignName string) (*QualifyResult, error) {
	res, err := s.qualify(ctx, record, campaignName)
	if err != nil {
		s.events.Log(ctx, models.LogLevelError, componentQualification,
			fmt.Sprintf("Failed to qualify lead: %v", err),
			map[string]any{"campaign_name": campaignName, "lead_data": record})
		return nil, err
	}

	s.events.Log(ctx, models.LogLevelInfo, componentQualification,
		fmt.Sprintf("Lead qualified: %s (score: %d)", leadLabel(res.Lead), res.Qualification.LeadScore),
		map[string]any{
			"lead_id":       res.LeadID.String(),
			"campaign_name": campaignName,
			"score":         res.Qualification.LeadScore,
			"status":        string(res.Status),
			"model":         res.ModelUsed,
		})
	return res, nil
}

func (s *QualificationService) qualify(ctx context.Context, record models.RawRecord, campaignName string) (*QualifyResult, error) {
	start := time.Now()
	doc := s.cfg.For(ctx)

	campaign, ok := doc.Campaign(campaignName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCampaignNotFound, campaignName)
	}
	tpl, ok := doc.Prompt(campaign.PromptTemplate)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, campaign.PromptTemplate)
	}

	leadData, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode lead data: %w", err)
	}
	prompt := BuildPrompt(tpl, map[string]string{
		"LEAD_DATA":     string(leadData),
		"CAMPAIGN_NAME": campaign.Name,
	})

	completion, err := s.ai.Complete(inference.WithCampaign(ctx, campaign.Name), prompt, inference.TaskQualification)
	if err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}

	q, err := ParseQualification(completion.Text)
	if err != nil {
		return nil, err
	}
	status := StatusFor(q.LeadScore, doc.Engine.QualificationThreshold)

	lead := buildLead(record, q, campaign.Name, status)
	lead.AIModelUsed = completion.Model
	lead.ProcessingTimeMS = time.Since(start).Milliseconds()

	id, stored, err := s.leads.UpsertLead(ctx, lead)
	if err != nil {
		return nil, fmt.Errorf("store lead: %w", err)
	}
	lead.ID = id
	lead.Status = stored

	return &QualifyResult{
		LeadID:         id,
		Lead:           lead,
		Qualification:  q,
		Status:         stored,
		ModelUsed:      completion.Model,
		Endpoint:       completion.Endpoint,
		ProcessingTime: time.Since(start),
	}, nil
}

// StatusFor maps a score to qualified (at or above threshold) or new.
func StatusFor(score, threshold int) models.QualificationStatus {
	if score >= threshold {
		return models.StatusQualified
	}
	return models.StatusNew
}

type qualificationPayload struct {
	LeadScore          *float64   `json:"lead_score"`
	QualificationNotes string     `json:"qualification_notes"`
	PainPoints         stringList `json:"pain_points"`
	LikelyNeeds        stringList `json:"likely_needs"`
	Industry           string     `json:"industry"`
	CompanySize        string     `json:"company_size"`
	JobTitle           string     `json:"job_title"`
	BudgetEstimate     string     `json:"budget_estimate"`
}

// stringList accepts either a JSON array of strings or a single string.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	var many []string
	if err := json.Unmarshal(b, &many); err == nil {
		*l = many
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	if one != "" {
		*l = []string{one}
	}
	return nil
}

// ParseQualification extracts the qualification object from model output.
// A missing score defaults to DefaultScore; scores are clamped to [0,100].
func ParseQualification(text string) (models.Qualification, error) {
	raw, ok := ExtractJSONObject(text)
	if !ok {
		return models.Qualification{}, fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}

	var p qualificationPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return models.Qualification{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	score := DefaultScore
	if p.LeadScore != nil {
		score = clampScore(*p.LeadScore)
	}

	return models.Qualification{
		LeadScore:          score,
		QualificationNotes: p.QualificationNotes,
		PainPoints:         []string(p.PainPoints),
		LikelyNeeds:        []string(p.LikelyNeeds),
		Industry:           p.Industry,
		CompanySize:        p.CompanySize,
		JobTitle:           p.JobTitle,
		BudgetEstimate:     p.BudgetEstimate,
	}, nil
}

func clampScore(v float64) int {
	return int(math.Max(0, math.Min(100, math.Round(v))))
}

func buildLead(record models.RawRecord, q models.Qualification, campaign string, status models.QualificationStatus) *models.Lead {
	rawData, ok := record[models.FieldRawData]
	if !ok {
		rawData = record
	}
	rawJSON, err := json.Marshal(rawData)
	if err != nil {
		rawJSON = []byte("{}")
	}

	first := record.String(models.FieldFirstName)
	last := record.String(models.FieldLastName)
	fullName := record.String(models.FieldFullName)
	if fullName == "" {
		fullName = strings.TrimSpace(first + " " + last)
	}

	return &models.Lead{
		Email:              identity.NormalizeEmail(record.String(models.FieldEmail)),
		FirstName:          first,
		LastName:           last,
		FullName:           fullName,
		CompanyName:        record.String(models.FieldCompany),
		Phone:              record.String(models.FieldPhone),
		LinkedInURL:        record.String(models.FieldLinkedInURL),
		Website:            record.String(models.FieldWebsite),
		SourceType:         record.String(models.FieldSourceType),
		SourceURL:          record.String(models.FieldSourceURL),
		SourceCampaign:     campaign,
		Industry:           firstNonEmpty(q.Industry, record.String("industry")),
		CompanySize:        firstNonEmpty(q.CompanySize, record.String("company_size")),
		JobTitle:           firstNonEmpty(q.JobTitle, record.String(models.FieldJobTitle)),
		LeadScore:          q.LeadScore,
		BudgetEstimate:     q.BudgetEstimate,
		PainPoints:         q.PainPoints,
		LikelyNeeds:        q.LikelyNeeds,
		QualificationNotes: q.QualificationNotes,
		Status:             status,
		RawData:            rawJSON,
	}
}

func leadLabel(l *models.Lead) string {
	switch {
	case l.Email != "":
		return l.Email
	case l.CompanyName != "":
		return l.CompanyName
	default:
		return "unknown"
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
