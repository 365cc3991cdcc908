package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Load balancing strategies for the inference pool.
const (
	StrategyRoundRobin = "round-robin"
	StrategyRandom     = "random"
	StrategyFirst      = "first"
)

var requiredSections = []string{"engine", "ollama", "campaigns", "sources", "prompts"}

// Error reports a configuration document that is missing, unreadable or invalid.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Document is an immutable snapshot of the engine configuration.
type Document struct {
	Engine    EngineSettings            `yaml:"engine"`
	Inference InferenceSettings         `yaml:"ollama"`
	Campaigns []Campaign                `yaml:"campaigns" validate:"dive"`
	Sources   []Source                  `yaml:"sources" validate:"dive"`
	Prompts   map[string]PromptTemplate `yaml:"prompts"`

	location *time.Location
}

type EngineSettings struct {
	Enabled                bool   `yaml:"enabled"`
	ScrapeIntervalMinutes  int    `yaml:"scrape_interval_minutes" validate:"min=1"`
	StartupDelaySeconds    int    `yaml:"startup_delay_seconds" validate:"min=0"`
	MaxLeadsPerDay         int    `yaml:"max_leads_per_day" validate:"min=0"`
	MaxOutreachPerDay      int    `yaml:"max_outreach_per_day" validate:"min=0"`
	Timezone               string `yaml:"timezone"`
	RespectRateLimits      bool   `yaml:"respect_rate_limits"`
	QualificationThreshold int    `yaml:"qualification_threshold" validate:"min=0,max=100"`
}

type InferenceSettings struct {
	PrimaryEndpoints      []string          `yaml:"primary_endpoints" validate:"dive,url"`
	LoadBalanceStrategy   string            `yaml:"load_balance_strategy" validate:"oneof=round-robin random first"`
	MaxRetries            int               `yaml:"max_retries" validate:"min=1"`
	RetryDelaySeconds     int               `yaml:"retry_delay_seconds" validate:"min=0"`
	TimeoutSeconds        int               `yaml:"timeout_seconds" validate:"min=1"`
	Models                map[string]string `yaml:"models"`
	EnableCloudFallback   bool              `yaml:"enable_cloud_fallback"`
	CloudFallbackProvider string            `yaml:"cloud_fallback_provider"`
	CloudModels           map[string]string `yaml:"cloud_models"`
}

const defaultModel = "llama3.2:13b"

// ModelFor returns the worker model configured for a task type.
func (s InferenceSettings) ModelFor(taskType string) string {
	if m := s.Models[taskType]; m != "" {
		return m
	}
	if m := s.Models["default"]; m != "" {
		return m
	}
	return defaultModel
}

// CloudModel returns the model configured for the fallback provider. An
// empty string leaves the choice to the provider.
func (s InferenceSettings) CloudModel() string {
	return s.CloudModels[s.CloudFallbackProvider]
}

func (s InferenceSettings) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelaySeconds) * time.Second
}

func (s InferenceSettings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

type Campaign struct {
	Name           string   `yaml:"name" validate:"required"`
	Enabled        bool     `yaml:"enabled"`
	CampaignType   string   `yaml:"campaign_type"`
	TargetSources  []string `yaml:"target_sources"`
	PromptTemplate string   `yaml:"prompt_template" validate:"required"`
}

// Targets reports whether the campaign lists the named source.
func (c Campaign) Targets(source string) bool {
	for _, s := range c.TargetSources {
		if s == source {
			return true
		}
	}
	return false
}

type Source struct {
	Name               string   `yaml:"name" validate:"required"`
	Type               string   `yaml:"type" validate:"required"`
	Enabled            bool     `yaml:"enabled"`
	TargetURLs         []string `yaml:"target_urls" validate:"dive,url"`
	SearchQueries      []string `yaml:"search_queries"`
	CSVPath            string   `yaml:"csv_path"`
	ScrapeDepth        int      `yaml:"scrape_depth" validate:"min=0,max=5"`
	MaxResultsPerQuery int      `yaml:"max_results_per_query" validate:"min=0"`
	ApifyActor         string   `yaml:"apify_actor"`
}

type PromptTemplate struct {
	System           string `yaml:"system"`
	Qualification    string `yaml:"qualification"`
	InitialEmailBody string `yaml:"initial_email_body"`
	ResponseHandling string `yaml:"response_handling"`
}

// Body returns the task section of the template: qualification, then
// initial email body, then response handling.
func (p PromptTemplate) Body() string {
	switch {
	case p.Qualification != "":
		return p.Qualification
	case p.InitialEmailBody != "":
		return p.InitialEmailBody
	default:
		return p.ResponseHandling
	}
}

func defaultDocument() *Document {
	return &Document{
		Engine: EngineSettings{
			Enabled:                true,
			ScrapeIntervalMinutes:  30,
			StartupDelaySeconds:    5,
			RespectRateLimits:      true,
			QualificationThreshold: 70,
		},
		Inference: InferenceSettings{
			LoadBalanceStrategy:   StrategyRoundRobin,
			MaxRetries:            3,
			RetryDelaySeconds:     2,
			TimeoutSeconds:        60,
			CloudFallbackProvider: "anthropic",
		},
	}
}

var validate = validator.New()

// LoadDocument reads and validates the engine document at path.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	return doc, nil
}

// ParseDocument decodes a YAML engine document, applying defaults for
// omitted engine and inference settings.
func ParseDocument(data []byte) (*Document, error) {
	var top map[string]yaml.Node
	if err := yaml.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	var missing []string
	for _, section := range requiredSections {
		if _, ok := top[section]; !ok {
			missing = append(missing, section)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required section(s): %s", strings.Join(missing, ", "))
	}

	doc := defaultDocument()
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

func (d *Document) validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("invalid: %w", err)
	}

	loc := time.Local
	if d.Engine.Timezone != "" {
		l, err := time.LoadLocation(d.Engine.Timezone)
		if err != nil {
			return fmt.Errorf("engine.timezone: %w", err)
		}
		loc = l
	}
	d.location = loc

	if len(d.Inference.PrimaryEndpoints) == 0 && !d.Inference.EnableCloudFallback {
		return errors.New("ollama: no primary_endpoints and cloud fallback disabled")
	}

	seen := make(map[string]bool)
	for _, c := range d.Campaigns {
		if seen[c.Name] {
			return fmt.Errorf("duplicate campaign name %q", c.Name)
		}
		seen[c.Name] = true
	}
	seen = make(map[string]bool)
	for _, s := range d.Sources {
		if seen[s.Name] {
			return fmt.Errorf("duplicate source name %q", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// Location is the time zone used for daily quota windows.
func (d *Document) Location() *time.Location {
	if d.location == nil {
		return time.Local
	}
	return d.location
}

func (d *Document) Campaign(name string) (Campaign, bool) {
	for _, c := range d.Campaigns {
		if c.Name == name {
			return c, true
		}
	}
	return Campaign{}, false
}

func (d *Document) Prompt(name string) (PromptTemplate, bool) {
	p, ok := d.Prompts[name]
	return p, ok
}

// SourcesFor returns the enabled sources a campaign targets, in document order.
func (d *Document) SourcesFor(c Campaign) []Source {
	var out []Source
	for _, s := range d.Sources {
		if s.Enabled && c.Targets(s.Name) {
			out = append(out, s)
		}
	}
	return out
}

// Warnings lists references that will fail at run time: campaigns whose
// prompt template or target sources are not defined.
func (d *Document) Warnings() []string {
	var out []string
	sources := make(map[string]bool)
	for _, s := range d.Sources {
		sources[s.Name] = true
	}
	for _, c := range d.Campaigns {
		if _, ok := d.Prompts[c.PromptTemplate]; !ok {
			out = append(out, fmt.Sprintf("campaign %q: prompt template %q not defined", c.Name, c.PromptTemplate))
		}
		for _, t := range c.TargetSources {
			if !sources[t] {
				out = append(out, fmt.Sprintf("campaign %q: target source %q not defined", c.Name, t))
			}
		}
	}
	sort.Strings(out)
	return out
}
