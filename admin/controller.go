package admin

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"lead_engine/models"
)

const (
	recentRunLimit = 5
	publishTimeout = 5 * time.Second
)

type campaignSummary struct {
	Name    string   `json:"name"`
	Enabled bool     `json:"enabled"`
	Sources []string `json:"sources"`
}

type configSummary struct {
	Path                  string            `json:"path"`
	Enabled               bool              `json:"enabled"`
	IntervalMinutes       int               `json:"scrape_interval_minutes"`
	MaxLeadsPerDay        int               `json:"max_leads_per_day"`
	MaxOutreachPerDay     int               `json:"max_outreach_per_day"`
	Endpoints             int               `json:"inference_endpoints"`
	CloudFallback         bool              `json:"cloud_fallback"`
	CloudFallbackProvider string            `json:"cloud_fallback_provider,omitempty"`
	Campaigns             []campaignSummary `json:"campaigns"`
	Warnings              []string          `json:"warnings,omitempty"`
}

type statusData struct {
	Running    bool               `json:"running"`
	Paused     bool               `json:"paused"`
	LastRun    *models.EngineRun  `json:"last_run,omitempty"`
	RecentRuns []models.EngineRun `json:"recent_runs,omitempty"`
	Limits     any                `json:"limits,omitempty"`
	Config     *configSummary     `json:"config,omitempty"`
}

func (s *Server) getHealth(c *gin.Context) {
	if s.deps.Health == nil {
		respond(c, http.StatusOK, "Health checks disabled", nil)
		return
	}
	report := s.deps.Health.Check(c.Request.Context())
	if !report.Healthy() {
		respond(c, http.StatusServiceUnavailable, "Unhealthy", report)
		return
	}
	respond(c, http.StatusOK, "Healthy", report)
}

func (s *Server) getStatus(c *gin.Context) {
	data := statusData{
		Running: s.deps.Engine.IsRunning(),
		Paused:  s.deps.Engine.IsPaused(),
		LastRun: s.deps.Engine.LastRun(),
		Config:  s.summarizeConfig(),
	}

	if s.deps.Runs != nil {
		runs, err := s.deps.Runs.RecentRuns(recentRunLimit)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to load run history", err)
			return
		}
		data.RecentRuns = runs
	}

	if s.deps.Quota != nil {
		// Limits are best-effort.
		if limits, err := s.deps.Quota.CheckLimits(c.Request.Context()); err != nil {
			log.Printf("[warn] admin: quota check: %v", err)
		} else {
			data.Limits = limits
		}
	}

	respond(c, http.StatusOK, "OK", data)
}

func (s *Server) summarizeConfig() *configSummary {
	if s.deps.Config == nil {
		return nil
	}
	doc := s.deps.Config.Current()
	summary := &configSummary{
		Path:                  s.deps.Config.Path(),
		Enabled:               doc.Engine.Enabled,
		IntervalMinutes:       doc.Engine.ScrapeIntervalMinutes,
		MaxLeadsPerDay:        doc.Engine.MaxLeadsPerDay,
		MaxOutreachPerDay:     doc.Engine.MaxOutreachPerDay,
		Endpoints:             len(doc.Inference.PrimaryEndpoints),
		CloudFallback:         doc.Inference.EnableCloudFallback,
		CloudFallbackProvider: doc.Inference.CloudFallbackProvider,
		Warnings:              doc.Warnings(),
	}
	for _, campaign := range doc.Campaigns {
		cs := campaignSummary{Name: campaign.Name, Enabled: campaign.Enabled}
		for _, src := range doc.SourcesFor(campaign) {
			cs.Sources = append(cs.Sources, src.Name)
		}
		summary.Campaigns = append(summary.Campaigns, cs)
	}
	return summary
}

func (s *Server) postRun(c *gin.Context) {
	if !s.deps.Control.TriggerNow("manual") {
		respond(c, http.StatusConflict, "Run not started: engine busy, paused or disabled", nil)
		return
	}
	respond(c, http.StatusAccepted, "Run started", nil)
}

func (s *Server) postReload(c *gin.Context) {
	doc, err := s.deps.Control.Reload()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Reload failed, previous config kept", err)
		return
	}

	if s.deps.Publisher != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), publishTimeout)
		defer cancel()
		if err := s.deps.Publisher.PublishReload(ctx, "admin"); err != nil {
			log.Printf("[warn] admin: publish reload: %v", err)
		}
	}

	respond(c, http.StatusOK, "Config reloaded", gin.H{
		"campaigns": len(doc.Campaigns),
		"sources":   len(doc.Sources),
		"warnings":  doc.Warnings(),
	})
}

func (s *Server) postPause(c *gin.Context) {
	s.deps.Engine.Pause()
	respond(c, http.StatusOK, "Engine paused", gin.H{"paused": true})
}

func (s *Server) postResume(c *gin.Context) {
	s.deps.Engine.Resume()
	respond(c, http.StatusOK, "Engine resumed", gin.H{"paused": false})
}

func (s *Server) getLead(c *gin.Context) {
	if s.deps.Leads == nil {
		respondError(c, http.StatusNotImplemented, "Lead store not configured", nil)
		return
	}
	email := strings.ToLower(strings.TrimSpace(c.Param("email")))
	if email == "" {
		respondError(c, http.StatusBadRequest, "Email required", nil)
		return
	}

	lead, err := s.deps.Leads.GetLeadByEmail(c.Request.Context(), email)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to load lead", err)
		return
	}
	if lead == nil {
		respondError(c, http.StatusNotFound, "Lead not found", nil)
		return
	}
	respond(c, http.StatusOK, "OK", lead)
}
