package inference

import (
	"context"
	"regexp"
)

// CloudProvider answers prompts when the worker pool cannot.
type CloudProvider interface {
	Name() string
	Complete(ctx context.Context, prompt, model string) (*CloudResponse, error)
}

type CloudResponse struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

const cloudMaxTokens = 1000

// Rate is a per-token price in USD.
type Rate struct {
	Input  float64
	Output float64
}

var rates = map[string]Rate{
	"claude-sonnet-4":  {Input: 0.000003, Output: 0.000015},
	"gpt-4o-mini":      {Input: 0.00000015, Output: 0.0000006},
	"gemini-2.5-flash": {Input: 0.0000003, Output: 0.0000025},
}

// EstimateCost prices a cloud call. Unknown models cost nothing.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	r, ok := rates[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)*r.Input + float64(outputTokens)*r.Output
}

var dateSuffix = regexp.MustCompile(`-\d{8}$`)

// ModelLabel drops a trailing release date: claude-sonnet-4-20250514 -> claude-sonnet-4.
func ModelLabel(model string) string {
	return dateSuffix.ReplaceAllString(model, "")
}
