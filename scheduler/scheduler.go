package scheduler

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"lead_engine/config"
	"lead_engine/models"
)

const (
	TriggerStartup   = "startup"
	TriggerScheduled = "scheduled"
	TriggerCommand   = "command"
	TriggerManual    = "manual"

	commandPollInterval = 2 * time.Second
)

// Runner executes campaign runs. Implemented by scraper.Orchestrator.
type Runner interface {
	RunAll(ctx context.Context, trigger string) bool
	TryRun(ctx context.Context, trigger string) bool
	Pause()
	Resume()
	Wait()
}

// CommandStore is the queue the CLI writes operator commands to.
type CommandStore interface {
	GetPendingCommands() ([]models.Command, error)
	MarkCommandProcessed(id int64) error
}

// Triggerable allows workers to be triggered manually
type Triggerable interface {
	Trigger()
}

type Scheduler struct {
	cfg    *config.Holder
	runner Runner
	store  CommandStore
	cron   *cron.Cron

	mu       sync.Mutex
	entryID  cron.EntryID
	interval int

	ctx          context.Context
	stopCh       chan struct{}
	stopOnce     sync.Once
	pollInterval time.Duration

	healthcheckWorker Triggerable
}

func New(cfg *config.Holder, runner Runner, store CommandStore) *Scheduler {
	logger := cron.PrintfLogger(log.Default())
	return &Scheduler{
		cfg:          cfg,
		runner:       runner,
		store:        store,
		cron:         cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		ctx:          context.Background(),
		stopCh:       make(chan struct{}),
		pollInterval: commandPollInterval,
	}
}

// SetWorkers registers background workers for manual triggering
func (s *Scheduler) SetWorkers(healthcheck Triggerable) {
	s.healthcheckWorker = healthcheck
}

// Start schedules periodic runs, arms the one-shot startup run and begins
// polling the command queue. ctx bounds every run the scheduler starts.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx
	doc := s.cfg.Current()

	if err := s.schedule(doc.Engine.ScrapeIntervalMinutes); err != nil {
		return err
	}
	s.cron.Start()

	delay := time.Duration(doc.Engine.StartupDelaySeconds) * time.Second
	log.Printf("[info] scheduler: startup run in %s", delay)
	go s.startupRun(delay)

	if s.store != nil {
		go s.pollCommands()
	}
	return nil
}

// Stop halts scheduling and waits for an in-flight run to return.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.cron.Stop().Done()
	s.runner.Wait()
}

// TriggerNow starts a run in the background unless one is already running.
func (s *Scheduler) TriggerNow(trigger string) bool {
	return s.runner.TryRun(s.ctx, trigger)
}

// Interval returns the currently scheduled interval in minutes.
func (s *Scheduler) Interval() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Reload re-reads the config file. Runs already executing keep the snapshot
// they started with; the cron entry is replaced when the interval changed.
func (s *Scheduler) Reload() (*config.Document, error) {
	doc, err := s.cfg.Reload()
	if err != nil {
		log.Printf("[error] config: reload failed, keeping previous config: %v", err)
		return nil, err
	}
	for _, w := range doc.Warnings() {
		log.Printf("[warn] config: %s", w)
	}

	if doc.Engine.ScrapeIntervalMinutes != s.Interval() {
		if err := s.schedule(doc.Engine.ScrapeIntervalMinutes); err != nil {
			return nil, err
		}
	}
	log.Printf("[info] config: reloaded %s (%d campaigns, %d sources)", s.cfg.Path(), len(doc.Campaigns), len(doc.Sources))
	return doc, nil
}

// WatchReloads reloads once per signal on reloads until ctx ends or the
// channel closes.
func (s *Scheduler) WatchReloads(ctx context.Context, reloads <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case _, ok := <-reloads:
			if !ok {
				return
			}
			s.Reload()
		}
	}
}

func (s *Scheduler) schedule(minutes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
		s.entryID = 0
	}
	s.interval = minutes
	if minutes <= 0 {
		log.Println("[info] scheduler: no interval configured, runs only on command")
		return nil
	}

	id, err := s.cron.AddFunc(fmt.Sprintf("@every %dm", minutes), func() {
		s.runner.RunAll(s.ctx, TriggerScheduled)
	})
	if err != nil {
		return fmt.Errorf("schedule every %d minutes: %w", minutes, err)
	}
	s.entryID = id
	log.Printf("[info] scheduler: campaigns run every %d minutes", minutes)
	return nil
}

func (s *Scheduler) startupRun(delay time.Duration) {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		s.runGuarded(TriggerStartup)
	case <-s.stopCh:
	case <-s.ctx.Done():
	}
}

// runGuarded is the startup counterpart of cron.Recover.
func (s *Scheduler) runGuarded(trigger string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[error] scheduler: %s run panicked: %v\n%s", trigger, r, debug.Stack())
		}
	}()
	s.runner.RunAll(s.ctx, trigger)
}

func (s *Scheduler) pollCommands() {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cmds, err := s.store.GetPendingCommands()
			if err != nil {
				log.Printf("[error] scheduler: getting commands: %v", err)
				continue
			}

			for _, cmd := range cmds {
				log.Printf("[info] scheduler: processing command: %s", cmd.Command)
				if err := s.handleCommand(&cmd); err != nil {
					log.Printf("[error] scheduler: command %s: %v", cmd.Command, err)
				}
				if err := s.store.MarkCommandProcessed(cmd.ID); err != nil {
					log.Printf("[error] scheduler: marking command processed: %v", err)
				}
			}
		case <-s.stopCh:
			return
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) handleCommand(cmd *models.Command) error {
	switch cmd.Command {
	case models.CmdRunNow:
		if !s.runner.TryRun(s.ctx, TriggerCommand) {
			log.Println("[info] scheduler: run_now ignored, engine busy, paused or disabled")
		}
	case models.CmdReloadConfig:
		_, err := s.Reload()
		return err
	case models.CmdPause:
		s.runner.Pause()
	case models.CmdResume:
		s.runner.Resume()
	case models.CmdHealthcheck:
		if s.healthcheckWorker == nil {
			return fmt.Errorf("healthcheck worker not running")
		}
		s.healthcheckWorker.Trigger()
	default:
		return fmt.Errorf("unknown command %q", cmd.Command)
	}
	return nil
}
