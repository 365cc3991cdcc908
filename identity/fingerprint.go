package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"

	"lead_engine/models"
)

var (
	companySuffixes = map[string]string{
		"incorporated":  "inc",
		"corporation":   "corp",
		"company":       "co",
		"limited":       "ltd",
		"international": "intl",
		"technologies":  "tech",
		"technology":    "tech",
		"solutions":     "sol",
		"associates":    "assoc",
		"group":         "grp",
	}
	multiSpaceRegex = regexp.MustCompile(`\s+`)
	nonAlnumRegex   = regexp.MustCompile(`[^a-z0-9\s]`)
)

// Fingerprint identifies a record for de-duplication within a scrape batch.
// Records with an email are keyed by it; otherwise by company and website.
func Fingerprint(rec models.RawRecord) string {
	var input string
	if email := NormalizeEmail(rec.String(models.FieldEmail)); email != "" {
		input = "email|" + email
	} else {
		input = "company|" + NormalizeCompany(rec.String(models.FieldCompany)) + "|" + NormalizeDomain(rec.String(models.FieldWebsite))
	}
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:16])
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeCompany lowercases a company name, strips punctuation and
// abbreviates common legal and descriptive suffixes.
func NormalizeCompany(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = nonAlnumRegex.ReplaceAllString(name, " ")
	name = multiSpaceRegex.ReplaceAllString(name, " ")
	words := strings.Fields(name)
	for i, w := range words {
		if abbrev, ok := companySuffixes[w]; ok {
			words[i] = abbrev
		}
	}
	return strings.Join(words, " ")
}

// NormalizeDomain reduces a website or URL to its bare host.
func NormalizeDomain(site string) string {
	site = strings.ToLower(strings.TrimSpace(site))
	if site == "" {
		return ""
	}
	if !strings.Contains(site, "://") {
		site = "http://" + site
	}
	u, err := url.Parse(site)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
