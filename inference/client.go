package inference

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"sync/atomic"
	"time"

	"lead_engine/config"
	"lead_engine/models"
)

const TaskQualification = "qualification"

// UsageRecorder persists one usage row per successful completion.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, rec models.UsageRecord)
}

// Result is a successful completion from a worker or a cloud provider.
type Result struct {
	Text             string
	Model            string
	Endpoint         string
	Latency          time.Duration
	PromptTokens     int
	CompletionTokens int
	Cost             float64
	Cloud            bool
}

// Client sends prompts to the worker pool, retrying across endpoints and
// falling back to a cloud provider when the pool is exhausted. Settings are
// read from the holder on every call.
type Client struct {
	cfg       *config.Holder
	http      *http.Client
	usage     UsageRecorder
	providers map[string]CloudProvider
	cursor    atomic.Uint64
	randIntN  func(n int) int
}

func NewClient(cfg *config.Holder, httpClient *http.Client, usage UsageRecorder, providers ...CloudProvider) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	c := &Client{
		cfg:       cfg,
		http:      httpClient,
		usage:     usage,
		providers: make(map[string]CloudProvider),
		randIntN:  rand.IntN,
	}
	for _, p := range providers {
		c.providers[p.Name()] = p
	}
	return c
}

// Complete runs prompt through the pool. At most max_retries worker attempts
// are made, spaced by retry_delay_seconds. When all fail and cloud fallback
// is enabled, the configured provider answers instead.
func (c *Client) Complete(ctx context.Context, prompt, taskType string) (*Result, error) {
	settings := c.cfg.For(ctx).Inference
	model := settings.ModelFor(taskType)

	attempts := 0
	var lastErr error = errNoEndpointsInConfig
	if len(settings.PrimaryEndpoints) > 0 {
		for attempt := 1; attempt <= settings.MaxRetries; attempt++ {
			endpoint := c.pickEndpoint(settings)
			attempts++

			res, err := c.generate(ctx, endpoint, model, prompt, settings.Timeout())
			if err == nil {
				c.recordUsage(ctx, taskType, res)
				return res, nil
			}
			lastErr = err
			log.Printf("[warn] inference: attempt %d/%d failed: %v", attempt, settings.MaxRetries, err)

			if attempt < settings.MaxRetries {
				if err := wait(ctx, settings.RetryDelay()); err != nil {
					return nil, err
				}
			}
		}
	}

	exhausted := &PoolExhaustedError{Attempts: attempts, Last: lastErr}
	if !settings.EnableCloudFallback {
		return nil, exhausted
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.Printf("[warn] inference: worker pool exhausted, falling back to %s", settings.CloudFallbackProvider)
	res, err := c.completeCloud(ctx, settings, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w; cloud fallback: %w", exhausted, err)
	}
	c.recordUsage(ctx, taskType, res)
	return res, nil
}

func (c *Client) pickEndpoint(settings config.InferenceSettings) string {
	endpoints := settings.PrimaryEndpoints
	switch settings.LoadBalanceStrategy {
	case config.StrategyRandom:
		return endpoints[c.randIntN(len(endpoints))]
	case config.StrategyFirst:
		return endpoints[0]
	default:
		n := c.cursor.Add(1) - 1
		return endpoints[n%uint64(len(endpoints))]
	}
}

func (c *Client) completeCloud(ctx context.Context, settings config.InferenceSettings, prompt string) (*Result, error) {
	provider, ok := c.providers[settings.CloudFallbackProvider]
	if !ok {
		return nil, &ProviderNotImplementedError{Provider: settings.CloudFallbackProvider}
	}

	start := time.Now()
	resp, err := provider.Complete(ctx, prompt, settings.CloudModel())
	if err != nil {
		return nil, err
	}

	label := ModelLabel(resp.Model)
	return &Result{
		Text:             resp.Text,
		Model:            label,
		Endpoint:         provider.Name() + "-cloud",
		Latency:          time.Since(start),
		PromptTokens:     resp.InputTokens,
		CompletionTokens: resp.OutputTokens,
		Cost:             EstimateCost(label, resp.InputTokens, resp.OutputTokens),
		Cloud:            true,
	}, nil
}

func (c *Client) recordUsage(ctx context.Context, taskType string, res *Result) {
	if c.usage == nil {
		return
	}
	c.usage.RecordUsage(ctx, models.UsageRecord{
		ModelName:        res.Model,
		Endpoint:         res.Endpoint,
		TaskType:         taskType,
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.CompletionTokens,
		TotalTokens:      res.PromptTokens + res.CompletionTokens,
		ResponseTimeMS:   res.Latency.Milliseconds(),
		EstimatedCost:    res.Cost,
		CampaignName:     campaignFrom(ctx),
	})
}

// wait blocks for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type campaignKey struct{}

// WithCampaign tags usage rows written under ctx with a campaign name.
func WithCampaign(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, campaignKey{}, name)
}

func campaignFrom(ctx context.Context) string {
	name, _ := ctx.Value(campaignKey{}).(string)
	return name
}
