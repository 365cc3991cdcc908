package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type QualificationStatus string

const (
	StatusNew          QualificationStatus = "new"
	StatusQualified    QualificationStatus = "qualified"
	StatusContacted    QualificationStatus = "contacted"
	StatusResponded    QualificationStatus = "responded"
	StatusConverted    QualificationStatus = "converted"
	StatusDisqualified QualificationStatus = "disqualified"
)

func (s QualificationStatus) Valid() bool {
	switch s {
	case StatusNew, StatusQualified, StatusContacted, StatusResponded, StatusConverted, StatusDisqualified:
		return true
	}
	return false
}

// Qualification is the structured verdict parsed from a model response.
type Qualification struct {
	LeadScore          int      `json:"lead_score"`
	QualificationNotes string   `json:"qualification_notes"`
	PainPoints         []string `json:"pain_points"`
	LikelyNeeds        []string `json:"likely_needs"`
	Industry           string   `json:"industry,omitempty"`
	CompanySize        string   `json:"company_size,omitempty"`
	JobTitle           string   `json:"job_title,omitempty"`
	BudgetEstimate     string   `json:"budget_estimate,omitempty"`
}

// Lead is a persisted prospect. Email is unique when present.
type Lead struct {
	ID                 uuid.UUID           `json:"id" db:"id"`
	Email              string              `json:"email" db:"email"`
	FirstName          string              `json:"first_name" db:"first_name"`
	LastName           string              `json:"last_name" db:"last_name"`
	FullName           string              `json:"full_name" db:"full_name"`
	CompanyName        string              `json:"company_name" db:"company_name"`
	Phone              string              `json:"phone" db:"phone"`
	LinkedInURL        string              `json:"linkedin_url" db:"linkedin_url"`
	Website            string              `json:"website" db:"website"`
	SourceType         string              `json:"source_type" db:"source_type"`
	SourceURL          string              `json:"source_url" db:"source_url"`
	SourceCampaign     string              `json:"source_campaign" db:"source_campaign"`
	Industry           string              `json:"industry" db:"industry"`
	CompanySize        string              `json:"company_size" db:"company_size"`
	JobTitle           string              `json:"job_title" db:"job_title"`
	LeadScore          int                 `json:"lead_score" db:"lead_score"`
	BudgetEstimate     string              `json:"budget_estimate" db:"budget_estimate"`
	PainPoints         []string            `json:"pain_points" db:"pain_points"`
	LikelyNeeds        []string            `json:"likely_needs" db:"likely_needs"`
	QualificationNotes string              `json:"qualification_notes" db:"qualification_notes"`
	Status             QualificationStatus `json:"qualification_status" db:"qualification_status"`
	RawData            json.RawMessage     `json:"raw_data" db:"raw_data"`
	AIModelUsed        string              `json:"ai_model_used" db:"ai_model_used"`
	ProcessingTimeMS   int64               `json:"processing_time_ms" db:"processing_time_ms"`
	CreatedAt          time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at" db:"updated_at"`
}
