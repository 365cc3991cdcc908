package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lead_engine/config"
	"lead_engine/scraper"
)

func TestMaskConnectionString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://user:secret@db:5432/leads", "postgres://user:****@db:5432/leads"},
		{"redis://localhost:6379/0", "redis://localhost:6379/0"},
		{"host=db user=app", "host=db user=app"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, maskConnectionString(tt.in))
	}
}

const validateDoc = `
engine:
  enabled: true
  scrape_interval_minutes: 60
ollama:
  primary_endpoints: [http://10.0.0.1:11434]
campaigns:
  - name: saas
    enabled: true
    target_sources: [csv, feed]
    prompt_template: saas_prompt
sources:
  - name: csv
    type: csv_import
    enabled: true
    csv_path: leads.csv
  - name: feed
    type: rss
    enabled: true
prompts:
  saas_prompt:
    qualification: "Lead: {{LEAD_DATA}}"
`

func TestWriteValidationReportsUnknownTypes(t *testing.T) {
	doc, err := config.ParseDocument([]byte(validateDoc))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, writeValidation(&out, "config.yaml", doc, scraper.NewRegistry(scraper.NewCSVImporter())))

	assert.Contains(t, out.String(), "config.yaml: 1 campaigns, 2 sources, 1 prompt templates")
	assert.Contains(t, out.String(), "campaign saas (enabled): csv, feed")
	assert.Contains(t, out.String(), "warning: no scraper registered for source feed (rss)")
	assert.NotContains(t, out.String(), "\nok\n")
}

func TestCSVTemplateCommand(t *testing.T) {
	var out bytes.Buffer
	csvTemplateCmd.SetOut(&out)
	defer csvTemplateCmd.SetOut(nil)

	require.NoError(t, runCSVTemplate(csvTemplateCmd, nil))
	assert.Contains(t, out.String(), "email")

	path := filepath.Join(t.TempDir(), "template.csv")
	out.Reset()
	require.NoError(t, runCSVTemplate(csvTemplateCmd, []string{path}))
	assert.Contains(t, out.String(), "wrote "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "company")
}

func TestCommandRejectsUnknownName(t *testing.T) {
	err := runCommand(commandCmd, []string{"explode"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}
