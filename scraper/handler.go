package scraper

import (
	"context"
	"errors"
	"sort"
	"sync"

	"lead_engine/config"
	"lead_engine/models"
)

// ErrScraperUnavailable means a scraper exists for the source type but cannot
// run with the current credentials or settings.
var ErrScraperUnavailable = errors.New("scraper unavailable")

// Scraper produces raw records for one configured source.
type Scraper interface {
	Type() string
	Scrape(ctx context.Context, source config.Source, campaign config.Campaign) ([]models.RawRecord, error)
}

// Registry maps source type tags to scrapers. It is populated once at
// startup; lookups are safe from any goroutine.
type Registry struct {
	mu       sync.RWMutex
	scrapers map[string]Scraper
}

func NewRegistry(scrapers ...Scraper) *Registry {
	r := &Registry{scrapers: make(map[string]Scraper)}
	for _, s := range scrapers {
		r.Register(s)
	}
	return r
}

func (r *Registry) Register(s Scraper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scrapers[s.Type()] = s
}

func (r *Registry) Lookup(sourceType string) (Scraper, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scrapers[sourceType]
	return s, ok
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.scrapers))
	for t := range r.scrapers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Unknown lists configured sources whose type has no registered scraper.
func (r *Registry) Unknown(doc *config.Document) []string {
	var out []string
	for _, s := range doc.Sources {
		if _, ok := r.Lookup(s.Type); !ok {
			out = append(out, s.Name+" ("+s.Type+")")
		}
	}
	return out
}
