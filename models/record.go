package models

import (
	"fmt"
	"strings"
)

// RawRecord is one untyped lead candidate as emitted by a scraper.
type RawRecord map[string]any

// Well-known record keys shared by scrapers and the qualification pipeline.
const (
	FieldEmail       = "email"
	FieldFirstName   = "first_name"
	FieldLastName    = "last_name"
	FieldFullName    = "full_name"
	FieldCompany     = "company_name"
	FieldPhone       = "phone"
	FieldJobTitle    = "job_title"
	FieldWebsite     = "website"
	FieldLinkedInURL = "linkedin_url"
	FieldSourceType  = "source_type"
	FieldSourceURL   = "source_url"
	FieldRawData     = "raw_data"
	FieldNeedsEmail  = "needs_email"
)

// String returns the value under key as trimmed text, or "" when absent.
func (r RawRecord) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Set stores value under key when it is non-empty.
func (r RawRecord) Set(key, value string) {
	value = strings.TrimSpace(value)
	if value != "" {
		r[key] = value
	}
}
