package scraper

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"lead_engine/config"
	"lead_engine/models"
	"lead_engine/services"
	"lead_engine/storage"
)

const componentEngine = "engine"

type Qualifier interface {
	Qualify(ctx context.Context, record models.RawRecord, campaignName string) (*services.QualifyResult, error)
}

type LimitChecker interface {
	CheckLimits(ctx context.Context) (*services.Limits, error)
}

type EventLogger interface {
	Log(ctx context.Context, level models.LogLevel, component, message string, meta map[string]any)
}

// RunStore persists run summaries and per-run log lines.
type RunStore interface {
	CreateRun(run *models.EngineRun) (int64, error)
	UpdateRun(run *models.EngineRun) error
	Log(runID *int64, level models.LogLevel, message, scope string) error
}

type Archiver interface {
	ArchiveBatch(ctx context.Context, key string, records []models.RawRecord) error
}

// Orchestrator executes every enabled campaign against its sources. At most
// one run is in flight at a time; overlapping triggers are dropped.
type Orchestrator struct {
	cfg       *config.Holder
	registry  *Registry
	qualifier Qualifier
	quota     LimitChecker
	events    EventLogger
	runs      RunStore
	archiver  Archiver

	running atomic.Bool
	paused  atomic.Bool
	wg      sync.WaitGroup
	lastRun atomic.Pointer[models.EngineRun]
}

func NewOrchestrator(cfg *config.Holder, registry *Registry, qualifier Qualifier, quota LimitChecker, events EventLogger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		registry:  registry,
		qualifier: qualifier,
		quota:     quota,
		events:    events,
	}
}

func (o *Orchestrator) SetRunStore(runs RunStore) {
	o.runs = runs
}

func (o *Orchestrator) SetArchiver(a Archiver) {
	o.archiver = a
}

// RunAll executes all campaigns and blocks until done. It returns false when
// the run was skipped: engine disabled, paused, or another run in progress.
func (o *Orchestrator) RunAll(ctx context.Context, trigger string) bool {
	if !o.begin(trigger) {
		return false
	}
	defer o.finish()
	o.execute(ctx, trigger)
	return true
}

// TryRun starts a run in the background and reports whether it started.
func (o *Orchestrator) TryRun(ctx context.Context, trigger string) bool {
	if !o.begin(trigger) {
		return false
	}
	go func() {
		defer o.finish()
		o.execute(ctx, trigger)
	}()
	return true
}

// Wait blocks until any in-flight run has returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) IsRunning() bool { return o.running.Load() }

func (o *Orchestrator) IsPaused() bool { return o.paused.Load() }

func (o *Orchestrator) Pause() {
	o.paused.Store(true)
	log.Println("[info] engine: paused")
}

func (o *Orchestrator) Resume() {
	o.paused.Store(false)
	log.Println("[info] engine: resumed")
}

// LastRun returns a copy of the most recently finished run, or nil.
func (o *Orchestrator) LastRun() *models.EngineRun {
	return o.lastRun.Load()
}

func (o *Orchestrator) begin(trigger string) bool {
	doc := o.cfg.Current()
	if !doc.Engine.Enabled {
		log.Printf("[info] engine: disabled, skipping %s run", trigger)
		return false
	}
	if o.paused.Load() {
		log.Printf("[info] engine: paused, skipping %s run", trigger)
		return false
	}

	o.wg.Add(1)
	if !o.running.CompareAndSwap(false, true) {
		o.wg.Done()
		log.Printf("[info] engine: campaign run already in progress, skipping %s run", trigger)
		return false
	}
	return true
}

func (o *Orchestrator) finish() {
	o.running.Store(false)
	o.wg.Done()
}

func (o *Orchestrator) execute(ctx context.Context, trigger string) {
	doc := o.cfg.Current()
	ctx = config.WithDocument(ctx, doc)
	run := &models.EngineRun{
		Trigger:   trigger,
		StartedAt: time.Now(),
		Status:    models.RunStatusRunning,
	}
	if o.runs != nil {
		id, err := o.runs.CreateRun(run)
		if err != nil {
			log.Printf("[warn] engine: failed to record run: %v", err)
		}
		run.ID = id
	}

	defer func() {
		if r := recover(); r != nil {
			run.Status = models.RunStatusFailed
			run.ErrorsCount++
			run.Note = fmt.Sprintf("panic: %v", r)
			log.Printf("[error] engine: %s run panicked: %v\n%s", trigger, r, debug.Stack())
		}
		now := time.Now()
		run.FinishedAt = &now
		if run.Status == models.RunStatusRunning {
			run.Status = models.RunStatusCompleted
		}
		if o.runs != nil && run.ID != 0 {
			if err := o.runs.UpdateRun(run); err != nil {
				log.Printf("[warn] engine: failed to update run %d: %v", run.ID, err)
			}
		}
		snapshot := *run
		o.lastRun.Store(&snapshot)
	}()

	o.log(run, models.LogLevelInfo, fmt.Sprintf("Starting campaign execution (%s)", trigger), componentEngine)

	if !o.canIngest(ctx, run) {
		return
	}

	for _, campaign := range doc.Campaigns {
		if !campaign.Enabled {
			continue
		}
		if ctx.Err() != nil {
			run.Note = "stopped by shutdown"
			break
		}
		run.CampaignsRun++
		if !o.executeCampaign(ctx, doc, campaign, run) {
			break
		}
	}

	o.log(run, models.LogLevelInfo,
		fmt.Sprintf("Completed: %d campaigns, %d sources, %d records, %d stored, %d qualified, %d errors",
			run.CampaignsRun, run.SourcesProcessed, run.RecordsFound, run.LeadsStored, run.LeadsQualified, run.ErrorsCount),
		componentEngine)
}

// executeCampaign returns false once the daily lead quota is spent or the
// run is shutting down.
func (o *Orchestrator) executeCampaign(ctx context.Context, doc *config.Document, campaign config.Campaign, run *models.EngineRun) bool {
	o.log(run, models.LogLevelInfo, fmt.Sprintf("Starting campaign: %s", campaign.Name), campaign.Name)

	for _, source := range doc.SourcesFor(campaign) {
		if ctx.Err() != nil {
			run.Note = "stopped by shutdown"
			return false
		}
		if !o.canIngest(ctx, run) {
			return false
		}
		o.processSource(ctx, campaign, source, run)
	}
	return true
}

func (o *Orchestrator) canIngest(ctx context.Context, run *models.EngineRun) bool {
	limits, err := o.quota.CheckLimits(ctx)
	if err != nil {
		run.Status = models.RunStatusFailed
		run.ErrorsCount++
		run.Note = "quota check failed"
		o.log(run, models.LogLevelError, fmt.Sprintf("Quota check failed: %v", err), componentEngine)
		o.events.Log(ctx, models.LogLevelError, componentEngine, fmt.Sprintf("Quota check failed: %v", err), nil)
		return false
	}
	if !limits.CanIngest {
		run.Note = "daily lead limit reached"
		msg := fmt.Sprintf("Daily lead limit reached (%d leads today)", limits.LeadsToday)
		o.log(run, models.LogLevelWarn, msg, componentEngine)
		o.events.Log(ctx, models.LogLevelWarn, componentEngine, msg, map[string]any{"leads_today": limits.LeadsToday})
		return false
	}
	return true
}

func (o *Orchestrator) processSource(ctx context.Context, campaign config.Campaign, source config.Source, run *models.EngineRun) {
	meta := map[string]any{
		"campaign_name": campaign.Name,
		"source":        source.Name,
		"source_type":   source.Type,
	}

	s, ok := o.registry.Lookup(source.Type)
	if !ok {
		msg := fmt.Sprintf("No scraper for source type %s (source %s)", source.Type, source.Name)
		o.log(run, models.LogLevelWarn, msg, campaign.Name)
		o.events.Log(ctx, models.LogLevelWarn, "scraper", msg, meta)
		return
	}
	run.SourcesProcessed++

	records, err := s.Scrape(ctx, source, campaign)
	if err != nil {
		run.ErrorsCount++
		msg := fmt.Sprintf("Scraping error for %s: %v", source.Name, err)
		o.log(run, models.LogLevelError, msg, campaign.Name)
		o.events.Log(ctx, models.LogLevelError, "scraper", msg, meta)
		return
	}
	run.RecordsFound += len(records)
	o.log(run, models.LogLevelInfo, fmt.Sprintf("Source %s: %d records", source.Name, len(records)), campaign.Name)

	o.archive(ctx, campaign, source, records)

	// A record already handed to the pipeline finishes even during shutdown.
	work := context.WithoutCancel(ctx)
	for _, rec := range records {
		if ctx.Err() != nil {
			run.Note = "stopped by shutdown"
			o.log(run, models.LogLevelWarn, "Shutdown requested, stopping source early", campaign.Name)
			return
		}
		res, err := o.qualifier.Qualify(work, rec, campaign.Name)
		if err != nil {
			run.ErrorsCount++
			continue
		}
		run.LeadsStored++
		if res.Status == models.StatusQualified {
			run.LeadsQualified++
		}
	}
}

func (o *Orchestrator) archive(ctx context.Context, campaign config.Campaign, source config.Source, records []models.RawRecord) {
	if o.archiver == nil || len(records) == 0 {
		return
	}
	key := storage.BatchKey(campaign.Name, source.Name, time.Now().UTC())
	if err := o.archiver.ArchiveBatch(ctx, key, records); err != nil {
		log.Printf("[warn] engine: archive %s: %v", key, err)
	}
}

func (o *Orchestrator) log(run *models.EngineRun, level models.LogLevel, message, scope string) {
	log.Printf("[%s] %s: %s", level, scope, message)
	if o.runs != nil && run.ID != 0 {
		id := run.ID
		o.runs.Log(&id, level, message, scope)
	}
}
