package main

import (
	"context"
	"fmt"
	"log"

	"lead_engine/config"
	"lead_engine/eventlog"
	"lead_engine/httputil"
	"lead_engine/inference"
	"lead_engine/logging"
	"lead_engine/scraper"
	"lead_engine/services"
	"lead_engine/storage"
)

const browserDataDir = ".browser-data"

// app holds every long-lived component of one engine process.
type app struct {
	env    *config.Config
	holder *config.Holder

	pg      *storage.PostgresStore
	sqlite  *storage.SQLiteStore
	redis   *storage.RedisNotifier
	archive *storage.S3Archiver

	events       *eventlog.Recorder
	ai           *inference.Client
	quota        *services.QuotaGate
	qualifier    *services.QualificationService
	registry     *scraper.Registry
	browser      *scraper.BrowserScraper
	orchestrator *scraper.Orchestrator

	logFile *logging.RotatingWriter
}

// newApp connects the stores and builds the engine. Config and Postgres
// failures are returned; Redis and S3 are optional and only logged.
func newApp(ctx context.Context, configPath string) (*app, error) {
	env, err := config.Load()
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		env.ConfigPath = configPath
	}

	a := &app{env: env}
	if a.logFile, err = logging.Setup(env.LogPath); err != nil {
		log.Printf("[warn] could not set up file logging: %v", err)
	}

	if a.holder, err = config.LoadHolder(env.ConfigPath); err != nil {
		return nil, err
	}
	doc := a.holder.Current()
	for _, w := range doc.Warnings() {
		log.Printf("[warn] config: %s", w)
	}
	log.Printf("[info] config: loaded %s (%d campaigns, %d sources)", env.ConfigPath, len(doc.Campaigns), len(doc.Sources))

	if env.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if a.pg, err = storage.NewPostgresStore(ctx, env.DatabaseURL); err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	log.Printf("[info] connected to Postgres: %s", maskConnectionString(env.DatabaseURL))

	if a.sqlite, err = storage.NewSQLiteStore(env.DBPath); err != nil {
		a.Close()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	log.Printf("[info] SQLite database: %s", env.DBPath)

	if env.RedisURL != "" {
		if a.redis, err = storage.NewRedisNotifier(ctx, env.RedisURL); err != nil {
			log.Printf("[warn] redis unavailable, cross-process reloads disabled: %v", err)
			a.redis = nil
		}
	}

	if env.Archive.Enabled() {
		if a.archive, err = storage.NewS3Archiver(ctx, env.Archive); err != nil {
			log.Printf("[warn] raw batch archive disabled: %v", err)
			a.archive = nil
		}
	}

	clients := httputil.NewClients(&env.Proxy)
	if env.Proxy.URL != "" {
		log.Printf("[info] scrape proxy: %s", maskConnectionString(env.Proxy.URL))
	}

	a.events = eventlog.New(a.pg)
	a.ai = inference.NewClient(a.holder, clients.Inference, a.events,
		inference.NewAnthropicProvider(env.CloudAPIKey, clients.API),
		inference.NewOpenAIProvider(env.CloudAPIKey),
		inference.NewGeminiProvider(env.CloudAPIKey),
	)
	a.quota = services.NewQuotaGate(a.pg, a.holder)
	a.qualifier = services.NewQualificationService(a.holder, a.ai, a.pg, a.events)

	a.registry, a.browser = buildRegistry(env, a.holder, clients)
	for _, s := range a.registry.Unknown(doc) {
		log.Printf("[warn] config: no scraper registered for source %s", s)
	}

	a.orchestrator = scraper.NewOrchestrator(a.holder, a.registry, a.qualifier, a.quota, a.events)
	a.orchestrator.SetRunStore(a.sqlite)
	if a.archive != nil {
		a.orchestrator.SetArchiver(a.archive)
	}
	return a, nil
}

// buildRegistry registers every built-in source type. The browser is
// returned separately so it can be closed on shutdown; it only launches on
// first use.
func buildRegistry(env *config.Config, holder *config.Holder, clients *httputil.Clients) (*scraper.Registry, *scraper.BrowserScraper) {
	browser := scraper.NewBrowserScraper(holder, browserDataDir, true)
	registry := scraper.NewRegistry(
		scraper.NewCSVImporter(),
		scraper.NewWebScraper(clients.Scraping, holder),
		browser,
		scraper.NewLinkedInScraper(scraper.NewApifyClient(env.ApifyAPIKey, clients.API), env.PhantomBusterKey),
	)
	return registry, browser
}

// verifyInference logs the reachable endpoints. An empty pool is not fatal
// while cloud fallback can still serve requests.
func (a *app) verifyInference(ctx context.Context) {
	up, err := a.ai.Verify(ctx)
	if err != nil {
		log.Printf("[warn] inference: %v", err)
		return
	}
	log.Printf("[info] inference: %d endpoints reachable", len(up))
}

func (a *app) Close() {
	if a.browser != nil {
		a.browser.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.sqlite != nil {
		a.sqlite.Close()
	}
	if a.pg != nil {
		a.pg.Close()
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}

// maskConnectionString masks password in connection string for logging
func maskConnectionString(connStr string) string {
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	colonIdx := -1
	atIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			atIdx = i
			break
		}
	}

	if colonIdx > 0 && atIdx > colonIdx {
		return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
	}
	return connStr
}
