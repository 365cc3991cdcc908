package scraper

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/playwright-community/playwright-go"

	"lead_engine/config"
	"lead_engine/httputil"
	"lead_engine/models"
)

const (
	SourceTypeBrowser = "browser"

	browserNavTimeoutMs = 60000
	browserSettleMs     = 1500
)

var consentSelectors = []string{
	"#onetrust-accept-btn-handler",
	"#didomi-notice-agree-button",
	"button[id*='accept']",
	"button[class*='consent']",
	"button:has-text('Accept All')",
	"button:has-text('Accept')",
	"button:has-text('I Agree')",
	"button:has-text('OK')",
}

var blockMarkers = []string{
	"Request unsuccessful. Incapsula",
	"Attention Required! | Cloudflare",
	"Access Denied",
	"This request was blocked",
}

// BrowserScraper renders JavaScript-heavy sites with Chromium before running
// the same contact extraction as the web scraper.
type BrowserScraper struct {
	cfg         *config.Holder
	userDataDir string
	headless    bool

	mu          sync.Mutex
	pw          *playwright.Playwright
	context     playwright.BrowserContext
	initialized bool
}

func NewBrowserScraper(cfg *config.Holder, userDataDir string, headless bool) *BrowserScraper {
	return &BrowserScraper{cfg: cfg, userDataDir: userDataDir, headless: headless}
}

func (b *BrowserScraper) Type() string { return SourceTypeBrowser }

func (b *BrowserScraper) Scrape(ctx context.Context, source config.Source, campaign config.Campaign) ([]models.RawRecord, error) {
	if len(source.TargetURLs) == 0 {
		return nil, fmt.Errorf("source %s has no target_urls", source.Name)
	}
	if err := b.ensureBrowser(); err != nil {
		return nil, err
	}

	var (
		records  []models.RawRecord
		failures int
	)
	for i, target := range source.TargetURLs {
		if i > 0 && b.cfg.For(ctx).Engine.RespectRateLimits {
			select {
			case <-ctx.Done():
			case <-time.After(defaultPageInterval):
			}
		}
		if ctx.Err() != nil {
			break
		}
		recs, err := b.renderAndExtract(ctx, target)
		if err != nil {
			failures++
			log.Printf("[warn] browser: %s: %v", target, err)
			continue
		}
		records = append(records, recs...)
	}

	if failures == len(source.TargetURLs) {
		return nil, fmt.Errorf("all %d pages failed for source %s", failures, source.Name)
	}
	records = dedupe(records)
	log.Printf("[info] browser: %s: %d records from %d pages", source.Name, len(records), len(source.TargetURLs)-failures)
	return limitRecords(records, source.MaxResultsPerQuery), nil
}

func (b *BrowserScraper) renderAndExtract(ctx context.Context, target string) ([]models.RawRecord, error) {
	b.mu.Lock()
	bctx := b.context
	b.mu.Unlock()
	if bctx == nil {
		return nil, fmt.Errorf("browser closed")
	}

	page, err := bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()

	// Playwright calls do not take a context; closing the page unblocks them.
	stop := context.AfterFunc(ctx, func() { page.Close() })
	defer stop()

	if _, err := page.Goto(target, playwright.PageGotoOptions{
		Timeout:   playwright.Float(browserNavTimeoutMs),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}

	handleConsent(page)
	page.WaitForTimeout(browserSettleMs)

	content, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	if marker := detectBlock(content); marker != "" {
		return nil, fmt.Errorf("blocked: %s", marker)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, err
	}
	return ExtractContacts(doc, target, SourceTypeBrowser), nil
}

func (b *BrowserScraper) ensureBrowser() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return nil
	}

	var err error
	b.pw, err = playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	b.context, err = b.pw.Chromium.LaunchPersistentContext(b.userDataDir, playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:  playwright.Bool(b.headless),
		UserAgent: playwright.String(httputil.UserAgent),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		b.pw.Stop()
		b.pw = nil
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	b.initialized = true
	return nil
}

func (b *BrowserScraper) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.context != nil {
		b.context.Close()
		b.context = nil
	}
	if b.pw != nil {
		b.pw.Stop()
		b.pw = nil
	}
	b.initialized = false
}

func handleConsent(page playwright.Page) {
	for _, selector := range consentSelectors {
		btn := page.Locator(selector).First()
		if visible, _ := btn.IsVisible(); visible {
			log.Printf("[info] browser: clicking consent button: %s", selector)
			btn.Click()
			page.WaitForTimeout(1000)
			return
		}
	}
}

// detectBlock returns the bot-wall marker found in content, if any.
func detectBlock(content string) string {
	for _, m := range blockMarkers {
		if strings.Contains(content, m) {
			return m
		}
	}
	return ""
}
