package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const tagsTimeout = 5 * time.Second

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

func (c *Client) generate(ctx context.Context, endpoint, model, prompt string, timeout time.Duration) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Model:   model,
		Prompt:  prompt,
		Stream:  false,
		Options: generateOptions{Temperature: 0.3, NumPredict: 600},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(endpoint, "/")+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &TransportError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(snippet)))}
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("decode: %w", err)}
	}
	if out.Error != "" {
		return nil, &TransportError{Endpoint: endpoint, Err: errors.New(out.Error)}
	}

	return &Result{
		Text:             out.Response,
		Model:            model,
		Endpoint:         endpoint,
		Latency:          time.Since(start),
		PromptTokens:     out.PromptEvalCount,
		CompletionTokens: out.EvalCount,
	}, nil
}

// Verify checks every configured endpoint concurrently and returns those
// that answered.
func (c *Client) Verify(ctx context.Context) ([]string, error) {
	endpoints := c.cfg.Current().Inference.PrimaryEndpoints
	healthy := make([]bool, len(endpoints))

	g, gctx := errgroup.WithContext(ctx)
	for i, endpoint := range endpoints {
		g.Go(func() error {
			if err := c.ping(gctx, endpoint); err != nil {
				log.Printf("[warn] inference: %s unavailable: %v", endpoint, err)
				return nil
			}
			healthy[i] = true
			return nil
		})
	}
	g.Wait()

	var working []string
	for i, ok := range healthy {
		if ok {
			working = append(working, endpoints[i])
		}
	}
	if len(working) == 0 {
		return nil, ErrNoHealthyEndpoints
	}
	return working, nil
}

func (c *Client) ping(ctx context.Context, endpoint string) error {
	ctx, cancel := context.WithTimeout(ctx, tagsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(endpoint, "/")+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
