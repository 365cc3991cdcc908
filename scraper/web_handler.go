package scraper

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"lead_engine/config"
	"lead_engine/httputil"
	"lead_engine/models"
)

const (
	SourceTypeWeb = "web_scraper"

	defaultPageInterval = 2 * time.Second
	maxFollowLinks      = 10
)

// WebScraper fetches company sites over plain HTTP and pulls contact details
// from the markup. Requests to the same host are spaced out while
// respect_rate_limits is on.
type WebScraper struct {
	client   *http.Client
	cfg      *config.Holder
	interval time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewWebScraper(client *http.Client, cfg *config.Holder) *WebScraper {
	return &WebScraper{
		client:   client,
		cfg:      cfg,
		interval: defaultPageInterval,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (w *WebScraper) Type() string { return SourceTypeWeb }

func (w *WebScraper) Scrape(ctx context.Context, source config.Source, campaign config.Campaign) ([]models.RawRecord, error) {
	if len(source.TargetURLs) == 0 {
		return nil, fmt.Errorf("source %s has no target_urls", source.Name)
	}

	var (
		records  []models.RawRecord
		failures int
	)
	for _, target := range source.TargetURLs {
		if ctx.Err() != nil {
			break
		}
		recs, err := w.scrapeSite(ctx, target, source.ScrapeDepth)
		if err != nil {
			failures++
			log.Printf("[warn] web: %s: %v", target, err)
			continue
		}
		records = append(records, recs...)
	}

	if failures == len(source.TargetURLs) {
		return nil, fmt.Errorf("all %d sites failed for source %s", failures, source.Name)
	}
	records = dedupe(records)
	log.Printf("[info] web: %s: %d records from %d sites", source.Name, len(records), len(source.TargetURLs)-failures)
	return limitRecords(records, source.MaxResultsPerQuery), nil
}

func (w *WebScraper) scrapeSite(ctx context.Context, target string, depth int) ([]models.RawRecord, error) {
	doc, err := w.fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	records := ExtractContacts(doc, target, SourceTypeWeb)
	if depth <= 1 {
		return records, nil
	}

	for _, link := range SameSiteLinks(doc, target, maxFollowLinks) {
		if ctx.Err() != nil {
			break
		}
		sub, err := w.fetch(ctx, link)
		if err != nil {
			log.Printf("[warn] web: %s: %v", link, err)
			continue
		}
		records = append(records, ExtractContacts(sub, link, SourceTypeWeb)...)
	}
	return records, nil
}

func (w *WebScraper) fetch(ctx context.Context, target string) (*goquery.Document, error) {
	if err := w.throttle(ctx, target); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", httputil.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

func (w *WebScraper) throttle(ctx context.Context, target string) error {
	if doc := w.cfg.For(ctx); doc != nil && !doc.Engine.RespectRateLimits {
		return nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return err
	}

	w.mu.Lock()
	lim, ok := w.limiters[u.Host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(w.interval), 1)
		w.limiters[u.Host] = lim
	}
	w.mu.Unlock()

	return lim.Wait(ctx)
}
