package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lead_engine/config"
	"lead_engine/models"
)

type usageSink struct {
	mu   sync.Mutex
	rows []models.UsageRecord
}

func (u *usageSink) RecordUsage(_ context.Context, rec models.UsageRecord) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rows = append(u.rows, rec)
}

func (u *usageSink) all() []models.UsageRecord {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]models.UsageRecord(nil), u.rows...)
}

type fakeProvider struct {
	name  string
	text  string
	err   error
	calls atomic.Int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(_ context.Context, _, model string) (*CloudResponse, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &CloudResponse{Text: f.text, Model: "claude-sonnet-4-20250514", InputTokens: 1000, OutputTokens: 100}, nil
}

type worker struct {
	srv  *httptest.Server
	hits atomic.Int32
}

func newWorker(t *testing.T, status int, reply string) *worker {
	t.Helper()
	w := &worker{}
	w.srv = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		w.hits.Add(1)
		switch r.URL.Path {
		case "/api/tags":
			rw.WriteHeader(status)
		case "/api/generate":
			var req generateRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				rw.WriteHeader(http.StatusBadRequest)
				return
			}
			if status != http.StatusOK {
				http.Error(rw, "model not loaded", status)
				return
			}
			json.NewEncoder(rw).Encode(generateResponse{Response: reply, PromptEvalCount: 3, EvalCount: 5})
		default:
			rw.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(w.srv.Close)
	return w
}

func holderFor(settings config.InferenceSettings) *config.Holder {
	if settings.TimeoutSeconds == 0 {
		settings.TimeoutSeconds = 5
	}
	if settings.MaxRetries == 0 {
		settings.MaxRetries = 3
	}
	return config.NewHolder("", &config.Document{Inference: settings})
}

func TestRoundRobinRotatesThroughEndpoints(t *testing.T) {
	a := newWorker(t, http.StatusOK, "a")
	b := newWorker(t, http.StatusOK, "b")
	c := newWorker(t, http.StatusOK, "c")
	h := holderFor(config.InferenceSettings{
		PrimaryEndpoints:    []string{a.srv.URL, b.srv.URL, c.srv.URL},
		LoadBalanceStrategy: config.StrategyRoundRobin,
	})
	client := NewClient(h, nil, nil)

	var got []string
	for i := 0; i < 6; i++ {
		res, err := client.Complete(context.Background(), "p", TaskQualification)
		require.NoError(t, err)
		got = append(got, res.Text)
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, got)
}

func TestFirstStrategyAlwaysUsesFirstEndpoint(t *testing.T) {
	a := newWorker(t, http.StatusOK, "a")
	b := newWorker(t, http.StatusOK, "b")
	h := holderFor(config.InferenceSettings{
		PrimaryEndpoints:    []string{a.srv.URL, b.srv.URL},
		LoadBalanceStrategy: config.StrategyFirst,
	})
	client := NewClient(h, nil, nil)

	for i := 0; i < 3; i++ {
		res, err := client.Complete(context.Background(), "p", TaskQualification)
		require.NoError(t, err)
		assert.Equal(t, a.srv.URL, res.Endpoint)
	}
	assert.Zero(t, b.hits.Load())
}

func TestRandomStrategyUsesInjectedSource(t *testing.T) {
	a := newWorker(t, http.StatusOK, "a")
	b := newWorker(t, http.StatusOK, "b")
	h := holderFor(config.InferenceSettings{
		PrimaryEndpoints:    []string{a.srv.URL, b.srv.URL},
		LoadBalanceStrategy: config.StrategyRandom,
	})
	client := NewClient(h, nil, nil)
	client.randIntN = func(n int) int { return n - 1 }

	res, err := client.Complete(context.Background(), "p", TaskQualification)
	require.NoError(t, err)
	assert.Equal(t, "b", res.Text)
}

func TestRetryMovesToNextEndpoint(t *testing.T) {
	bad := newWorker(t, http.StatusInternalServerError, "")
	good := newWorker(t, http.StatusOK, "ok")
	usage := &usageSink{}
	h := holderFor(config.InferenceSettings{
		PrimaryEndpoints:    []string{bad.srv.URL, good.srv.URL},
		LoadBalanceStrategy: config.StrategyRoundRobin,
		Models:              map[string]string{TaskQualification: "llama3.1:8b"},
	})
	client := NewClient(h, nil, usage)

	ctx := WithCampaign(context.Background(), "saas")
	res, err := client.Complete(ctx, "p", TaskQualification)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, int32(1), bad.hits.Load())

	rows := usage.all()
	require.Len(t, rows, 1)
	assert.Equal(t, "llama3.1:8b", rows[0].ModelName)
	assert.Equal(t, good.srv.URL, rows[0].Endpoint)
	assert.Equal(t, TaskQualification, rows[0].TaskType)
	assert.Equal(t, 8, rows[0].TotalTokens)
	assert.Equal(t, "saas", rows[0].CampaignName)
	assert.Zero(t, rows[0].EstimatedCost)
}

func TestPoolExhaustedAfterMaxRetries(t *testing.T) {
	a := newWorker(t, http.StatusBadGateway, "")
	b := newWorker(t, http.StatusBadGateway, "")
	usage := &usageSink{}
	h := holderFor(config.InferenceSettings{
		PrimaryEndpoints:    []string{a.srv.URL, b.srv.URL},
		LoadBalanceStrategy: config.StrategyRoundRobin,
		MaxRetries:          3,
	})
	client := NewClient(h, nil, usage)

	_, err := client.Complete(context.Background(), "p", TaskQualification)
	var exhausted *PoolExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, int32(3), a.hits.Load()+b.hits.Load())

	var transport *TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, http.StatusBadGateway, transport.StatusCode)
	assert.Empty(t, usage.all())
}

func TestCloudFallbackAfterExhaustion(t *testing.T) {
	bad := newWorker(t, http.StatusInternalServerError, "")
	provider := &fakeProvider{name: "anthropic", text: `{"lead_score": 80}`}
	usage := &usageSink{}
	h := holderFor(config.InferenceSettings{
		PrimaryEndpoints:      []string{bad.srv.URL},
		MaxRetries:            2,
		EnableCloudFallback:   true,
		CloudFallbackProvider: "anthropic",
	})
	client := NewClient(h, nil, usage, provider)

	res, err := client.Complete(context.Background(), "p", TaskQualification)
	require.NoError(t, err)
	assert.True(t, res.Cloud)
	assert.Equal(t, "anthropic-cloud", res.Endpoint)
	assert.Equal(t, "claude-sonnet-4", res.Model)
	assert.Equal(t, int32(2), bad.hits.Load())

	rows := usage.all()
	require.Len(t, rows, 1)
	assert.InDelta(t, 1000*0.000003+100*0.000015, rows[0].EstimatedCost, 1e-12)
}

func TestCloudFallbackUnknownProvider(t *testing.T) {
	bad := newWorker(t, http.StatusInternalServerError, "")
	h := holderFor(config.InferenceSettings{
		PrimaryEndpoints:      []string{bad.srv.URL},
		MaxRetries:            1,
		EnableCloudFallback:   true,
		CloudFallbackProvider: "azure",
	})
	client := NewClient(h, nil, nil)

	_, err := client.Complete(context.Background(), "p", TaskQualification)
	var notImpl *ProviderNotImplementedError
	require.ErrorAs(t, err, &notImpl)
	assert.Equal(t, "azure", notImpl.Provider)

	var exhausted *PoolExhaustedError
	assert.ErrorAs(t, err, &exhausted)
}

func TestFallbackWithNoEndpoints(t *testing.T) {
	provider := &fakeProvider{name: "anthropic", text: "hi"}
	h := holderFor(config.InferenceSettings{
		EnableCloudFallback:   true,
		CloudFallbackProvider: "anthropic",
	})
	client := NewClient(h, nil, nil, provider)

	res, err := client.Complete(context.Background(), "p", TaskQualification)
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Text)
	assert.Equal(t, int32(1), provider.calls.Load())
}

func TestRetryDelayHonoursCancellation(t *testing.T) {
	bad := newWorker(t, http.StatusInternalServerError, "")
	provider := &fakeProvider{name: "anthropic", text: "never"}
	h := holderFor(config.InferenceSettings{
		PrimaryEndpoints:      []string{bad.srv.URL},
		MaxRetries:            3,
		RetryDelaySeconds:     30,
		EnableCloudFallback:   true,
		CloudFallbackProvider: "anthropic",
	})
	client := NewClient(h, nil, nil, provider)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Complete(ctx, "p", TaskQualification)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Zero(t, provider.calls.Load())
}

func TestVerifyReturnsWorkingEndpoints(t *testing.T) {
	up := newWorker(t, http.StatusOK, "")
	down := newWorker(t, http.StatusServiceUnavailable, "")
	h := holderFor(config.InferenceSettings{
		PrimaryEndpoints: []string{up.srv.URL, down.srv.URL},
	})
	client := NewClient(h, nil, nil)

	working, err := client.Verify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{up.srv.URL}, working)
}

func TestVerifyNoneHealthy(t *testing.T) {
	down := newWorker(t, http.StatusServiceUnavailable, "")
	h := holderFor(config.InferenceSettings{PrimaryEndpoints: []string{down.srv.URL}})
	client := NewClient(h, nil, nil)

	_, err := client.Verify(context.Background())
	assert.ErrorIs(t, err, ErrNoHealthyEndpoints)
}

func TestModelLabelAndCost(t *testing.T) {
	assert.Equal(t, "claude-sonnet-4", ModelLabel("claude-sonnet-4-20250514"))
	assert.Equal(t, "gpt-4o-mini", ModelLabel("gpt-4o-mini"))
	assert.InDelta(t, 0.0045, EstimateCost("claude-sonnet-4", 1000, 100), 1e-9)
	assert.Zero(t, EstimateCost("llama3.2:13b", 1000, 100))
}

func newHangingWorker(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })
	return srv, &hits
}

func TestTimedOutAttemptCountsAsFailure(t *testing.T) {
	hang, hits := newHangingWorker(t)
	good := newWorker(t, http.StatusOK, "ok")
	h := holderFor(config.InferenceSettings{
		PrimaryEndpoints:    []string{hang.URL, good.srv.URL},
		LoadBalanceStrategy: config.StrategyRoundRobin,
		MaxRetries:          2,
		TimeoutSeconds:      1,
	})
	client := NewClient(h, nil, nil)

	start := time.Now()
	res, err := client.Complete(context.Background(), "p", TaskQualification)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, good.srv.URL, res.Endpoint)
	assert.Equal(t, int32(1), hits.Load())
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestTimedOutPoolFallsBackToCloud(t *testing.T) {
	hang, hits := newHangingWorker(t)
	provider := &fakeProvider{name: "anthropic", text: `{"lead_score": 61}`}
	h := holderFor(config.InferenceSettings{
		PrimaryEndpoints:      []string{hang.URL},
		MaxRetries:            2,
		TimeoutSeconds:        1,
		EnableCloudFallback:   true,
		CloudFallbackProvider: "anthropic",
	})
	client := NewClient(h, nil, nil, provider)

	res, err := client.Complete(context.Background(), "p", TaskQualification)
	require.NoError(t, err)
	assert.True(t, res.Cloud)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(1), provider.calls.Load())
}

func TestCompletePrefersRunSnapshot(t *testing.T) {
	pinned := newWorker(t, http.StatusOK, "pinned")
	live := newWorker(t, http.StatusOK, "live")
	h := holderFor(config.InferenceSettings{PrimaryEndpoints: []string{live.srv.URL}})
	client := NewClient(h, nil, nil)

	snapshot := &config.Document{Inference: config.InferenceSettings{
		PrimaryEndpoints: []string{pinned.srv.URL},
		MaxRetries:       1,
		TimeoutSeconds:   5,
	}}
	res, err := client.Complete(config.WithDocument(context.Background(), snapshot), "p", TaskQualification)
	require.NoError(t, err)
	assert.Equal(t, "pinned", res.Text)
	assert.Zero(t, live.hits.Load())
}
