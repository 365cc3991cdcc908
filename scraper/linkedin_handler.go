package scraper

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"lead_engine/config"
	"lead_engine/models"
)

const (
	SourceTypeLinkedIn = "linkedin"

	defaultLinkedInResults = 25
)

// LinkedInScraper collects profiles from an exported connections CSV or,
// when the source names an Apify actor, from a hosted scraping run. LinkedIn
// itself is never crawled directly.
type LinkedInScraper struct {
	apify            *ApifyClient
	phantomBusterKey string
}

func NewLinkedInScraper(apify *ApifyClient, phantomBusterKey string) *LinkedInScraper {
	return &LinkedInScraper{apify: apify, phantomBusterKey: phantomBusterKey}
}

func (l *LinkedInScraper) Type() string { return SourceTypeLinkedIn }

func (l *LinkedInScraper) Scrape(ctx context.Context, source config.Source, campaign config.Campaign) ([]models.RawRecord, error) {
	switch {
	case source.CSVPath != "":
		return l.fromExport(source)
	case source.ApifyActor != "":
		return l.fromActor(ctx, source)
	}

	if l.phantomBusterKey == "" {
		log.Printf("[warn] linkedin: %s: set csv_path, apify_actor or PHANTOMBUSTER_API_KEY to collect profiles", source.Name)
	} else {
		log.Printf("[warn] linkedin: %s: PhantomBuster agents are launched outside the engine; import their CSV via csv_path", source.Name)
	}
	return nil, nil
}

func (l *LinkedInScraper) fromExport(source config.Source) ([]models.RawRecord, error) {
	f, err := os.Open(source.CSVPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := ParseLinkedInExport(f, "linkedin-export:"+filepath.Base(source.CSVPath))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", source.CSVPath, err)
	}
	log.Printf("[info] linkedin: %s: %d profiles from export", source.Name, len(records))
	return limitRecords(records, source.MaxResultsPerQuery), nil
}

func (l *LinkedInScraper) fromActor(ctx context.Context, source config.Source) ([]models.RawRecord, error) {
	if !l.apify.Configured() {
		return nil, fmt.Errorf("%w: apify_actor %s needs APIFY_API_KEY", ErrScraperUnavailable, source.ApifyActor)
	}

	limit := source.MaxResultsPerQuery
	if limit <= 0 {
		limit = defaultLinkedInResults
	}

	var records []models.RawRecord
	for _, query := range source.SearchQueries {
		if ctx.Err() != nil {
			break
		}
		items, err := l.apify.RunActor(ctx, source.ApifyActor, map[string]any{
			"searchQuery": query,
			"maxResults":  limit,
		})
		if err != nil {
			if len(records) == 0 {
				return nil, err
			}
			log.Printf("[warn] linkedin: %s: query %q: %v", source.Name, query, err)
			continue
		}
		for _, item := range items {
			if rec := profileRecord(item, query); rec != nil {
				records = append(records, rec)
			}
		}
	}

	records = dedupe(records)
	log.Printf("[info] linkedin: %s: %d profiles from %d queries", source.Name, len(records), len(source.SearchQueries))
	return records, nil
}

// profileRecord maps one actor dataset item. Actors disagree on key names,
// so each field accepts several spellings.
func profileRecord(item map[string]any, query string) models.RawRecord {
	pick := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := item[k].(string); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}

	profileURL := pick("profileUrl", "linkedinUrl", "url")
	rec := models.RawRecord{
		models.FieldSourceType: SourceTypeLinkedIn,
		models.FieldRawData:    item,
	}
	rec.Set(models.FieldSourceURL, profileURL)
	rec.Set(models.FieldLinkedInURL, profileURL)
	rec.Set(models.FieldEmail, strings.ToLower(pick("email", "emailAddress")))
	rec.Set(models.FieldFirstName, pick("firstName", "first_name"))
	rec.Set(models.FieldLastName, pick("lastName", "last_name"))
	rec.Set(models.FieldFullName, pick("fullName", "name"))
	rec.Set(models.FieldJobTitle, pick("jobTitle", "title", "headline"))
	rec.Set(models.FieldCompany, pick("companyName", "company", "currentCompany"))
	rec.Set(models.FieldWebsite, pick("companyWebsite", "website"))
	rec.Set("location", pick("location", "geo"))
	rec.Set("search_query", query)

	if rec.String(models.FieldEmail) == "" && rec.String(models.FieldCompany) == "" {
		return nil
	}
	if rec.String(models.FieldEmail) == "" {
		rec[models.FieldNeedsEmail] = true
	}
	return rec
}
