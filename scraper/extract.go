package scraper

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"lead_engine/identity"
	"lead_engine/models"
)

var (
	emailRegex     = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phoneRegex     = regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
	nonDigitRegex  = regexp.MustCompile(`\D`)
	titleSeparator = regexp.MustCompile(`\s+[|\-–—:]\s+`)

	genericMailboxes = map[string]bool{
		"info": true, "contact": true, "admin": true, "support": true, "sales": true,
		"hello": true, "noreply": true, "no-reply": true, "mail": true,
		"webmaster": true, "postmaster": true,
	}
	assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"}
	titleNoise    = map[string]bool{"home": true, "homepage": true, "official site": true, "official website": true}
)

// FindEmails returns unique, lowercased addresses found in text, in order of
// first appearance.
func FindEmails(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range emailRegex.FindAllString(text, -1) {
		email := identity.NormalizeEmail(m)
		if len(email) >= 100 || seen[email] || looksLikeAsset(email) {
			continue
		}
		seen[email] = true
		out = append(out, email)
	}
	return out
}

// FindPhones returns unique phone numbers with at least ten digits.
func FindPhones(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range phoneRegex.FindAllString(text, -1) {
		m = strings.TrimSpace(m)
		if len(nonDigitRegex.ReplaceAllString(m, "")) < 10 || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// IsGenericMailbox reports role addresses such as info@ or noreply@.
func IsGenericMailbox(email string) bool {
	local, _, ok := strings.Cut(email, "@")
	return ok && genericMailboxes[strings.ToLower(local)]
}

func looksLikeAsset(email string) bool {
	for _, suffix := range assetSuffixes {
		if strings.HasSuffix(email, suffix) {
			return true
		}
	}
	return false
}

// CompanyName guesses the organisation behind a page: the leading segment
// of the title, then the first h1, then the bare domain.
func CompanyName(doc *goquery.Document, pageURL string) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		for _, part := range titleSeparator.Split(title, -1) {
			if name := trimTitleNoise(part); name != "" {
				return name
			}
		}
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return identity.NormalizeDomain(pageURL)
}

func trimTitleNoise(part string) string {
	name := strings.TrimSpace(part)
	if len(name) > len("welcome to ") && strings.EqualFold(name[:len("welcome to ")], "welcome to ") {
		name = strings.TrimSpace(name[len("welcome to "):])
	}
	if titleNoise[strings.ToLower(name)] {
		return ""
	}
	return name
}

// ExtractContacts builds one record per personal email on the page. A page
// with no usable email yields a single company record flagged needs_email.
func ExtractContacts(doc *goquery.Document, pageURL, sourceType string) []models.RawRecord {
	html, _ := doc.Html()
	var emails []string
	doc.Find(`a[href^="mailto:"]`).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		addr, _, _ := strings.Cut(strings.TrimPrefix(href, "mailto:"), "?")
		emails = append(emails, addr)
	})
	emails = FindEmails(strings.Join(emails, " ") + " " + html)

	phones := FindPhones(doc.Find("body").Text())
	company := CompanyName(doc, pageURL)
	website := siteOrigin(pageURL)

	base := func() models.RawRecord {
		rec := models.RawRecord{
			models.FieldSourceType: sourceType,
			models.FieldSourceURL:  pageURL,
		}
		rec.Set(models.FieldCompany, company)
		rec.Set(models.FieldWebsite, website)
		if len(phones) > 0 {
			rec.Set(models.FieldPhone, phones[0])
		}
		return rec
	}

	var records []models.RawRecord
	for _, email := range emails {
		if IsGenericMailbox(email) {
			continue
		}
		rec := base()
		rec[models.FieldEmail] = email
		rec[models.FieldRawData] = map[string]any{
			"page_title":   strings.TrimSpace(doc.Find("title").First().Text()),
			"emails_found": len(emails),
			"phones":       phones,
		}
		records = append(records, rec)
	}

	if len(records) == 0 && company != "" {
		rec := base()
		rec[models.FieldNeedsEmail] = true
		rec[models.FieldRawData] = map[string]any{
			"page_title":     strings.TrimSpace(doc.Find("title").First().Text()),
			"generic_emails": emails,
			"phones":         phones,
		}
		records = append(records, rec)
	}
	return records
}

// SameSiteLinks returns up to limit absolute links on the page that stay on
// the page's host.
func SameSiteLinks(doc *goquery.Document, pageURL string, limit int) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	seen := map[string]bool{stripFragment(base): true}
	var out []string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "mailto:") ||
			strings.HasPrefix(href, "tel:") || strings.HasPrefix(href, "javascript:") {
			return true
		}
		u, err := base.Parse(href)
		if err != nil || u.Host != base.Host || (u.Scheme != "http" && u.Scheme != "https") {
			return true
		}
		abs := stripFragment(u)
		if seen[abs] {
			return true
		}
		seen[abs] = true
		out = append(out, abs)
		return len(out) < limit
	})
	return out
}

func stripFragment(u *url.URL) string {
	c := *u
	c.Fragment = ""
	return c.String()
}

func siteOrigin(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// dedupe drops records with a fingerprint already seen, keeping the first.
func dedupe(records []models.RawRecord) []models.RawRecord {
	seen := make(map[string]bool, len(records))
	out := records[:0]
	for _, r := range records {
		fp := identity.Fingerprint(r)
		if seen[fp] {
			continue
		}
		seen[fp] = true
		out = append(out, r)
	}
	return out
}

// limitRecords truncates to max when max is positive.
func limitRecords(records []models.RawRecord, max int) []models.RawRecord {
	if max > 0 && len(records) > max {
		return records[:max]
	}
	return records
}
