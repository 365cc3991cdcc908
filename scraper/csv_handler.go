package scraper

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"lead_engine/config"
	"lead_engine/identity"
	"lead_engine/models"
)

const SourceTypeCSV = "csv_import"

// column maps one RawRecord field to the header spellings that feed it.
// Aliases are compared after normalizeHeader.
type column struct {
	field   string
	aliases []string
}

var csvColumns = []column{
	{models.FieldEmail, []string{"email", "emailaddress", "mail"}},
	{models.FieldFirstName, []string{"firstname", "first", "fname", "givenname"}},
	{models.FieldLastName, []string{"lastname", "last", "lname", "surname", "familyname"}},
	{models.FieldFullName, []string{"fullname", "name", "contactname"}},
	{models.FieldCompany, []string{"company", "companyname", "organization", "organisation", "employer"}},
	{models.FieldJobTitle, []string{"jobtitle", "title", "position", "role"}},
	{models.FieldPhone, []string{"phone", "phonenumber", "telephone", "mobile"}},
	{models.FieldWebsite, []string{"website", "url", "web", "domain", "companywebsite"}},
	{models.FieldLinkedInURL, []string{"linkedin", "linkedinurl", "linkedinprofile", "profileurl"}},
	{"industry", []string{"industry", "sector"}},
	{"location", []string{"location", "city", "region"}},
}

// LinkedIn's connections export calls the profile link "URL".
var linkedInColumns = []column{
	{models.FieldEmail, []string{"emailaddress", "email"}},
	{models.FieldFirstName, []string{"firstname"}},
	{models.FieldLastName, []string{"lastname"}},
	{models.FieldCompany, []string{"company"}},
	{models.FieldJobTitle, []string{"position", "title"}},
	{models.FieldLinkedInURL, []string{"url", "profileurl"}},
	{"connected_on", []string{"connectedon"}},
}

var csvTemplate = [][]string{
	{"email", "first_name", "last_name", "company", "job_title", "phone", "website", "linkedin_url", "industry", "location"},
	{"jane.doe@acme.io", "Jane", "Doe", "Acme Analytics", "VP Engineering", "+1 415 555 0134", "https://acme.io", "https://www.linkedin.com/in/janedoe", "Software", "San Francisco"},
	{"", "", "", "Globex Logistics", "", "+1 312 555 0188", "https://globex.example", "", "Logistics", "Chicago"},
}

// CSVImporter reads leads from a local CSV file named by the source's
// csv_path.
type CSVImporter struct{}

func NewCSVImporter() *CSVImporter { return &CSVImporter{} }

func (c *CSVImporter) Type() string { return SourceTypeCSV }

func (c *CSVImporter) Scrape(ctx context.Context, source config.Source, campaign config.Campaign) ([]models.RawRecord, error) {
	if source.CSVPath == "" {
		return nil, fmt.Errorf("source %s has no csv_path", source.Name)
	}

	f, err := os.Open(source.CSVPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := ParseCSV(f, "csv:"+filepath.Base(source.CSVPath))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", source.CSVPath, err)
	}
	log.Printf("[info] csv: %s: %d records from %s", source.Name, len(records), source.CSVPath)
	return limitRecords(records, source.MaxResultsPerQuery), nil
}

// ParseCSV maps a headed CSV to raw records. Rows with neither an email nor
// a company are dropped. The full row is kept under raw_data.
func ParseCSV(r io.Reader, sourceURL string) ([]models.RawRecord, error) {
	rows, err := readRows(r)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return mapRows(rows[0], rows[1:], csvColumns, SourceTypeCSV, sourceURL), nil
}

// ParseLinkedInExport reads a LinkedIn connections export. The export starts
// with free-text notes, so everything before the "First Name" header row is
// skipped.
func ParseLinkedInExport(r io.Reader, sourceURL string) ([]models.RawRecord, error) {
	rows, err := readRows(r)
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		if len(row) > 0 && normalizeHeader(row[0]) == "firstname" {
			return mapRows(row, rows[i+1:], linkedInColumns, SourceTypeLinkedIn, sourceURL), nil
		}
	}
	return nil, errors.New("no LinkedIn header row found")
}

// WriteTemplate writes an example import file with every recognised column.
func WriteTemplate(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(csvTemplate); err != nil {
		return err
	}
	return cw.Error()
}

func readRows(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	return cr.ReadAll()
}

func mapRows(header []string, rows [][]string, columns []column, sourceType, sourceURL string) []models.RawRecord {
	index := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := index[normalizeHeader(h)]; !dup {
			index[normalizeHeader(h)] = i
		}
	}

	var records []models.RawRecord
	for _, row := range rows {
		rec := models.RawRecord{
			models.FieldSourceType: sourceType,
			models.FieldSourceURL:  sourceURL,
		}
		for _, col := range columns {
			for _, alias := range col.aliases {
				if i, ok := index[alias]; ok && i < len(row) && strings.TrimSpace(row[i]) != "" {
					rec.Set(col.field, strings.TrimSpace(row[i]))
					break
				}
			}
		}

		if email := rec.String(models.FieldEmail); email != "" {
			rec[models.FieldEmail] = identity.NormalizeEmail(email)
		}
		if rec.String(models.FieldEmail) == "" && rec.String(models.FieldCompany) == "" {
			continue
		}
		if rec.String(models.FieldFullName) == "" {
			rec.Set(models.FieldFullName, strings.TrimSpace(rec.String(models.FieldFirstName)+" "+rec.String(models.FieldLastName)))
		}

		raw := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(row) {
				raw[h] = row[i]
			}
		}
		rec[models.FieldRawData] = raw
		records = append(records, rec)
	}
	return records
}

func normalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
