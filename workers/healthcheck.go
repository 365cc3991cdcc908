package workers

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"lead_engine/models"
)

const (
	scopeHealth         = "health"
	dependencyPingLimit = 5 * time.Second
)

// EndpointVerifier checks the inference pool. Implemented by inference.Client.
type EndpointVerifier interface {
	Verify(ctx context.Context) ([]string, error)
}

// Pinger is any backing service that can answer a liveness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

type EventLogger interface {
	Log(ctx context.Context, level models.LogLevel, component, message string, meta map[string]any)
}

// Report is the outcome of one health pass.
type Report struct {
	CheckedAt        time.Time         `json:"checked_at"`
	HealthyEndpoints []string          `json:"healthy_endpoints"`
	InferenceError   string            `json:"inference_error,omitempty"`
	Dependencies     map[string]string `json:"dependencies"`
}

// Healthy is true when at least one endpoint answered and every dependency
// responded.
func (r Report) Healthy() bool {
	if r.InferenceError != "" {
		return false
	}
	for _, status := range r.Dependencies {
		if status != "ok" {
			return false
		}
	}
	return true
}

// HealthcheckWorker periodically checks the inference endpoints and the
// stores the engine depends on, logging transitions to the event log.
type HealthcheckWorker struct {
	verifier  EndpointVerifier
	events    EventLogger
	triggerCh chan struct{}
	logFunc   LogFunc

	mu      sync.Mutex
	deps    map[string]Pinger
	last    Report
	healthy bool
}

func NewHealthcheckWorker(verifier EndpointVerifier, events EventLogger) *HealthcheckWorker {
	return &HealthcheckWorker{
		verifier:  verifier,
		events:    events,
		triggerCh: make(chan struct{}, 1),
		logFunc:   NoOpLogger,
		deps:      make(map[string]Pinger),
		healthy:   true,
	}
}

func (w *HealthcheckWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

// AddDependency registers a named service to ping on every pass.
func (w *HealthcheckWorker) AddDependency(name string, p Pinger) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deps[name] = p
}

// Trigger causes the worker to run immediately
func (w *HealthcheckWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Last returns the most recent report.
func (w *HealthcheckWorker) Last() Report {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Check runs one health pass and stores the result.
func (w *HealthcheckWorker) Check(ctx context.Context) Report {
	report := Report{CheckedAt: time.Now(), Dependencies: make(map[string]string)}

	endpoints, err := w.verifier.Verify(ctx)
	if err != nil {
		report.InferenceError = err.Error()
	}
	report.HealthyEndpoints = endpoints

	w.mu.Lock()
	names := make([]string, 0, len(w.deps))
	deps := make(map[string]Pinger, len(w.deps))
	for name, p := range w.deps {
		names = append(names, name)
		deps[name] = p
	}
	w.mu.Unlock()
	sort.Strings(names)

	for _, name := range names {
		pctx, cancel := context.WithTimeout(ctx, dependencyPingLimit)
		err := deps[name].Ping(pctx)
		cancel()
		if err != nil {
			report.Dependencies[name] = err.Error()
		} else {
			report.Dependencies[name] = "ok"
		}
	}

	w.mu.Lock()
	wasHealthy := w.healthy
	w.healthy = report.Healthy()
	w.last = report
	w.mu.Unlock()

	w.logTransition(ctx, wasHealthy, report)
	return report
}

func (w *HealthcheckWorker) logTransition(ctx context.Context, wasHealthy bool, report Report) {
	meta := map[string]any{
		"healthy_endpoints": report.HealthyEndpoints,
		"dependencies":      report.Dependencies,
	}
	switch {
	case wasHealthy && !report.Healthy():
		msg := "Health check failed"
		if report.InferenceError != "" {
			msg = fmt.Sprintf("Health check failed: %s", report.InferenceError)
		}
		w.logFunc(models.LogLevelWarn, scopeHealth, msg)
		w.events.Log(ctx, models.LogLevelWarn, scopeHealth, msg, meta)
	case !wasHealthy && report.Healthy():
		msg := fmt.Sprintf("Health restored: %d inference endpoints up", len(report.HealthyEndpoints))
		w.logFunc(models.LogLevelInfo, scopeHealth, msg)
		w.events.Log(ctx, models.LogLevelInfo, scopeHealth, msg, meta)
	default:
		log.Printf("[info] health: %d endpoints up, healthy=%t", len(report.HealthyEndpoints), report.Healthy())
	}
}

// Run checks on every interval tick and on Trigger until ctx is done.
func (w *HealthcheckWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[info] health: worker stopping")
			return
		case <-ticker.C:
			w.Check(ctx)
		case <-w.triggerCh:
			log.Println("[info] health: triggered manually")
			w.Check(ctx)
		}
	}
}
