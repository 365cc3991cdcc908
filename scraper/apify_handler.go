package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	apifyAPIBase     = "https://api.apify.com/v2"
	apifyPollTimeout = 15 * time.Minute
	apifyPollDelay   = 10 * time.Second
)

// ApifyClient starts an Apify actor, waits for it to finish and returns the
// items of its default dataset.
type ApifyClient struct {
	apiKey      string
	client      *http.Client
	baseURL     string
	pollDelay   time.Duration
	pollTimeout time.Duration
}

func NewApifyClient(apiKey string, client *http.Client) *ApifyClient {
	return &ApifyClient{
		apiKey:      apiKey,
		client:      client,
		baseURL:     apifyAPIBase,
		pollDelay:   apifyPollDelay,
		pollTimeout: apifyPollTimeout,
	}
}

func (a *ApifyClient) Configured() bool {
	return a != nil && a.apiKey != ""
}

// RunActor executes actorID with the given input. Actor IDs may use either
// "user/name" or "user~name".
func (a *ApifyClient) RunActor(ctx context.Context, actorID string, input any) ([]map[string]any, error) {
	if !a.Configured() {
		return nil, fmt.Errorf("%w: APIFY_API_KEY not set", ErrScraperUnavailable)
	}
	actorID = strings.ReplaceAll(actorID, "/", "~")

	runID, err := a.startRun(ctx, actorID, input)
	if err != nil {
		return nil, fmt.Errorf("failed to start apify run: %w", err)
	}
	log.Printf("[info] apify: run started: %s (actor: %s)", runID, actorID)

	datasetID, err := a.waitForRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("apify run failed: %w", err)
	}

	items, err := a.fetchDataset(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dataset: %w", err)
	}
	log.Printf("[info] apify: run %s complete, %d items", runID, len(items))
	return items, nil
}

func (a *ApifyClient) startRun(ctx context.Context, actorID string, input any) (string, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/acts/%s/runs?token=%s", a.baseURL, actorID, a.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("apify start run failed %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Data.ID, nil
}

func (a *ApifyClient) waitForRun(ctx context.Context, runID string) (string, error) {
	url := fmt.Sprintf("%s/actor-runs/%s?token=%s", a.baseURL, runID, a.apiKey)
	deadline := time.Now().Add(a.pollTimeout)

	for time.Now().Before(deadline) {
		status, datasetID, err := a.runStatus(ctx, url)
		if err == nil {
			switch status {
			case "SUCCEEDED":
				return datasetID, nil
			case "FAILED", "ABORTED", "TIMED-OUT":
				return "", fmt.Errorf("run %s: %s", runID, status)
			}
			log.Printf("[info] apify: run %s status: %s", runID, status)
		} else if ctx.Err() != nil {
			return "", ctx.Err()
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(a.pollDelay):
		}
	}

	return "", fmt.Errorf("timeout waiting for run %s", runID)
}

func (a *ApifyClient) runStatus(ctx context.Context, url string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	var result struct {
		Data struct {
			Status           string `json:"status"`
			DefaultDatasetID string `json:"defaultDatasetId"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", "", err
	}
	return result.Data.Status, result.Data.DefaultDatasetID, nil
}

func (a *ApifyClient) fetchDataset(ctx context.Context, datasetID string) ([]map[string]any, error) {
	url := fmt.Sprintf("%s/datasets/%s/items?token=%s&format=json", a.baseURL, datasetID, a.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("fetch dataset failed %d: %s", resp.StatusCode, string(body))
	}

	var items []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, err
	}
	return items, nil
}
