package api

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usagedeck/usagedeck/internal/config"
	"github.com/usagedeck/usagedeck/internal/fetchplan"
	"github.com/usagedeck/usagedeck/internal/monitor"
	"github.com/usagedeck/usagedeck/internal/redact"
	"github.com/usagedeck/usagedeck/internal/usage"
)

type stubSource struct {
	results map[string]monitor.Result
}

func (s *stubSource) Latest(provider string) (monitor.Result, bool) {
	res, ok := s.results[provider]
	return res, ok
}

func (s *stubSource) LatestAll(providers []config.ProviderConfig) []monitor.Result {
	out := make([]monitor.Result, 0, len(providers))
	for _, pc := range providers {
		if res, ok := s.results[pc.Key]; ok {
			out = append(out, res)
		}
	}
	return out
}

func newTestServer(source StatusSource, providers ...string) *Server {
	cfgs := make([]config.ProviderConfig, 0, len(providers))
	for _, key := range providers {
		cfgs = append(cfgs, config.ProviderConfig{Key: key})
	}
	return NewServer(cfgs, source, nil, nil, nil)
}

func okResult(provider string) monitor.Result {
	return monitor.Result{
		Provider: provider,
		Snapshot: &usage.Snapshot{
			ProviderKey: provider,
			Source:      usage.SourceOauth,
			Windows:     []usage.RateWindowState{{Label: "5h", Used: 42, RawUsed: 42, Limit: 100}},
			FetchedAt:   time.Now(),
		},
		Attempts: []fetchplan.Attempt{{Source: usage.SourceOauth, Outcome: fetchplan.OutcomeSuccess}},
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(&stubSource{})

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	require.Equal(t, 200, w.Code)
}

func TestStatusEndpointKeepsConfigOrder(t *testing.T) {
	source := &stubSource{results: map[string]monitor.Result{
		"claude": okResult("claude"),
		"codex":  okResult("codex"),
	}}
	server := newTestServer(source, "codex", "claude")

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/status", nil))
	require.Equal(t, 200, w.Code)

	var body struct {
		Providers []struct {
			Provider string `json:"provider"`
			Snapshot *struct {
				Windows []struct {
					Label string  `json:"label"`
					Used  float64 `json:"used"`
				} `json:"windows"`
			} `json:"snapshot"`
		} `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Providers, 2)
	assert.Equal(t, "codex", body.Providers[0].Provider)
	assert.Equal(t, "claude", body.Providers[1].Provider)
	require.NotNil(t, body.Providers[0].Snapshot)
	assert.Equal(t, 42.0, body.Providers[0].Snapshot.Windows[0].Used)
}

func TestProviderStatusEndpoint(t *testing.T) {
	source := &stubSource{results: map[string]monitor.Result{
		"claude": okResult("claude"),
	}}
	server := newTestServer(source, "claude")

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/status/claude", nil))
	require.Equal(t, 200, w.Code)

	w = httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/status/unknown", nil))
	require.Equal(t, 404, w.Code)
}

func TestStatusRedactsErrors(t *testing.T) {
	redactor := redact.New()
	redactor.Register("sk-live-secret-token")

	source := &stubSource{results: map[string]monitor.Result{
		"claude": {
			Provider: "claude",
			Err:      fmt.Errorf("auth rejected for token sk-live-secret-token"),
		},
	}}
	server := NewServer([]config.ProviderConfig{{Key: "claude"}}, source, nil, nil, redactor)

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/status/claude", nil))
	require.Equal(t, 200, w.Code)
	assert.NotContains(t, w.Body.String(), "sk-live-secret-token")
	assert.Contains(t, w.Body.String(), redact.Placeholder)
}

func TestProvidersEndpointListsRegistry(t *testing.T) {
	server := newTestServer(&stubSource{})

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/providers", nil))
	require.Equal(t, 200, w.Code)

	var body struct {
		Providers []struct {
			Key     string   `json:"key"`
			Sources []string `json:"sources"`
		} `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Providers, 13)
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(&stubSource{})

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, w.Code)
}
