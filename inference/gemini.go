package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-2.5-flash"

type GeminiProvider struct {
	apiKey string
}

func NewGeminiProvider(apiKey string) *GeminiProvider {
	return &GeminiProvider{apiKey: apiKey}
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

func (p *GeminiProvider) Complete(ctx context.Context, prompt, model string) (*CloudResponse, error) {
	if p.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if model == "" {
		model = defaultGeminiModel
	}

	hc := &http.Client{Transport: &oneShotTransport{base: http.DefaultTransport, apiKey: p.apiKey}}
	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey), option.WithHTTPClient(hc))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	defer client.Close()

	m := client.GenerativeModel(model)
	m.SetTemperature(0.3)
	m.SetMaxOutputTokens(cloudMaxTokens)

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, &TransportError{Endpoint: "gemini", Err: err}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("gemini: empty response")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	out := &CloudResponse{Text: text.String(), Model: model}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

// oneShotTransport passes the first request through and refuses any later
// one. The generated Gemini client retries 503 responses internally and
// exposes no option to turn that off.
type oneShotTransport struct {
	base   http.RoundTripper
	apiKey string
	used   atomic.Bool
	status atomic.Int32
}

func (t *oneShotTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.used.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("gemini: not retrying after status %d", t.status.Load())
	}
	// A custom HTTP client bypasses the SDK's key handling.
	req = req.Clone(req.Context())
	req.Header.Set("x-goog-api-key", t.apiKey)
	resp, err := t.base.RoundTrip(req)
	if err == nil {
		t.status.Store(int32(resp.StatusCode))
	}
	return resp, err
}
