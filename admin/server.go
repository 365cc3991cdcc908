package admin

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"lead_engine/config"
	"lead_engine/models"
	"lead_engine/services"
	"lead_engine/workers"
)

// Engine exposes run state and the pause switch. Implemented by
// scraper.Orchestrator.
type Engine interface {
	IsRunning() bool
	IsPaused() bool
	Pause()
	Resume()
	LastRun() *models.EngineRun
}

// Control starts runs and reloads config. Implemented by scheduler.Scheduler.
type Control interface {
	TriggerNow(trigger string) bool
	Reload() (*config.Document, error)
}

type RunHistory interface {
	RecentRuns(limit int) ([]models.EngineRun, error)
}

type LeadLookup interface {
	GetLeadByEmail(ctx context.Context, email string) (*models.Lead, error)
}

type HealthChecker interface {
	Check(ctx context.Context) workers.Report
}

type QuotaChecker interface {
	CheckLimits(ctx context.Context) (*services.Limits, error)
}

// ReloadPublisher fans a reload out to other engine processes.
type ReloadPublisher interface {
	PublishReload(ctx context.Context, source string) error
}

// Deps wires the server to the engine. Runs, Leads, Health, Quota and
// Publisher are optional.
type Deps struct {
	Config    *config.Holder
	Engine    Engine
	Control   Control
	Runs      RunHistory
	Leads     LeadLookup
	Health    HealthChecker
	Quota     QuotaChecker
	Publisher ReloadPublisher
}

// Server is the local admin HTTP surface.
type Server struct {
	deps   Deps
	engine *gin.Engine
	srv    *http.Server
}

func New(addr string, deps Deps) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())
	engine.NoRoute(noRoute)
	engine.SetTrustedProxies(nil)

	s := &Server{deps: deps, engine: engine}
	s.RegisterRoutes(engine.Group("/"))
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves in the background. Listen errors other than a clean shutdown
// are logged.
func (s *Server) Start() {
	go func() {
		log.Printf("[info] admin: listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[error] admin: %v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("[info] admin: %s %s %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}
