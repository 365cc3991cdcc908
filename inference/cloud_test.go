package inference

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/openai/openai-go/v2/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unavailableServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error": {"message": "overloaded", "code": 503}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIProviderMakesOneAttempt(t *testing.T) {
	var hits atomic.Int32
	srv := unavailableServer(t, &hits)

	p := NewOpenAIProvider("key", option.WithBaseURL(srv.URL))
	_, err := p.Complete(context.Background(), "qualify this", "")

	var transport *TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, "openai", transport.Endpoint)
	assert.Equal(t, int32(1), hits.Load())
}

func TestOneShotTransportRefusesSecondRequest(t *testing.T) {
	var hits atomic.Int32
	var gotKey atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		gotKey.Store(r.Header.Get("x-goog-api-key"))
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	hc := &http.Client{Transport: &oneShotTransport{base: http.DefaultTransport, apiKey: "key"}}

	resp, err := hc.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "key", gotKey.Load())

	_, err = hc.Get(srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not retrying after status 503")
	assert.Equal(t, int32(1), hits.Load())
}
