package monitor

import (
	"context"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/usagedeck/usagedeck/internal/config"
	"github.com/usagedeck/usagedeck/internal/fetchplan"
	"github.com/usagedeck/usagedeck/internal/metrics"
	"github.com/usagedeck/usagedeck/internal/usage"
)

type stubFetcher struct {
	mu      sync.Mutex
	delays  map[string]time.Duration
	fail    map[string]error
	calls   []string
	running int
	maxSeen int
}

func (f *stubFetcher) Fetch(ctx context.Context, req fetchplan.FetchRequest) (*usage.Snapshot, []fetchplan.Attempt, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Provider)
	f.running++
	if f.running > f.maxSeen {
		f.maxSeen = f.running
	}
	delay := f.delays[req.Provider]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	f.running--
	f.mu.Unlock()

	if err := f.fail[req.Provider]; err != nil {
		return nil, nil, err
	}
	return &usage.Snapshot{
		ProviderKey: req.Provider,
		Source:      usage.SourceOauth,
		Windows:     []usage.RateWindowState{{Label: "5h", Used: 10, RawUsed: 10, Limit: 100}},
		FetchedAt:   time.Now(),
	}, []fetchplan.Attempt{{Source: usage.SourceOauth, Outcome: fetchplan.OutcomeSuccess}}, nil
}

type stubRecorder struct {
	mu    sync.Mutex
	snaps []*usage.Snapshot
}

func (r *stubRecorder) RecordSnapshot(_ context.Context, snap *usage.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
	return nil
}

func providerList(keys ...string) []config.ProviderConfig {
	out := make([]config.ProviderConfig, 0, len(keys))
	for _, key := range keys {
		out = append(out, config.ProviderConfig{Key: key})
	}
	return out
}

func TestSweepPreservesConfigOrder(t *testing.T) {
	// The first provider is slow; it must still come back first.
	fetcher := &stubFetcher{delays: map[string]time.Duration{
		"slow": 80 * time.Millisecond,
		"fast": time.Millisecond,
	}}
	m := New(fetcher, WithConcurrency(2))

	results := m.Sweep(context.Background(), providerList("slow", "fast"))
	require.Len(t, results, 2)
	require.Equal(t, "slow", results[0].Provider)
	require.Equal(t, "fast", results[1].Provider)
	require.NoError(t, results[0].Err)
}

func TestSweepRunsProvidersConcurrently(t *testing.T) {
	fetcher := &stubFetcher{delays: map[string]time.Duration{
		"a": 50 * time.Millisecond,
		"b": 50 * time.Millisecond,
		"c": 50 * time.Millisecond,
	}}
	m := New(fetcher, WithConcurrency(3))

	started := time.Now()
	m.Sweep(context.Background(), providerList("a", "b", "c"))
	elapsed := time.Since(started)

	require.Less(t, elapsed, 140*time.Millisecond, "providers should overlap")
	require.GreaterOrEqual(t, fetcher.maxSeen, 2)
}

func TestSweepBoundsConcurrency(t *testing.T) {
	fetcher := &stubFetcher{delays: map[string]time.Duration{
		"a": 30 * time.Millisecond, "b": 30 * time.Millisecond,
		"c": 30 * time.Millisecond, "d": 30 * time.Millisecond,
	}}
	m := New(fetcher, WithConcurrency(1))

	m.Sweep(context.Background(), providerList("a", "b", "c", "d"))
	require.Equal(t, 1, fetcher.maxSeen, "concurrency 1 means strictly sequential")
}

func TestSweepCarriesFailuresInResults(t *testing.T) {
	fetcher := &stubFetcher{fail: map[string]error{
		"bad": fmt.Errorf("all sources failed"),
	}}
	m := New(fetcher)

	results := m.Sweep(context.Background(), providerList("good", "bad"))
	require.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
	require.NotNil(t, results[0].Snapshot)
	require.Nil(t, results[1].Snapshot)
}

func TestSweepRecordsSnapshots(t *testing.T) {
	fetcher := &stubFetcher{}
	recorder := &stubRecorder{}
	m := New(fetcher, WithRecorder(recorder))

	m.Sweep(context.Background(), providerList("claude", "codex"))
	require.Len(t, recorder.snaps, 2)
}

func TestLatestTracksMostRecentResult(t *testing.T) {
	fetcher := &stubFetcher{}
	m := New(fetcher)

	m.Sweep(context.Background(), providerList("claude"))
	res, ok := m.Latest("claude")
	require.True(t, ok)
	require.Equal(t, "claude", res.Provider)

	_, ok = m.Latest("never-swept")
	require.False(t, ok)
}

func TestLatestAllKeepsConfigOrder(t *testing.T) {
	fetcher := &stubFetcher{}
	m := New(fetcher)

	providers := providerList("codex", "claude")
	m.Sweep(context.Background(), providers)

	results := m.LatestAll(providers)
	require.Len(t, results, 2)
	require.Equal(t, "codex", results[0].Provider)
	require.Equal(t, "claude", results[1].Provider)
}

func TestOnResultObserver(t *testing.T) {
	fetcher := &stubFetcher{}
	var mu sync.Mutex
	var seen []string
	m := New(fetcher, WithOnResult(func(res Result) {
		mu.Lock()
		seen = append(seen, res.Provider)
		mu.Unlock()
	}))

	m.Sweep(context.Background(), providerList("claude", "codex"))
	require.ElementsMatch(t, []string{"claude", "codex"}, seen)
}

func TestStartStopLoop(t *testing.T) {
	fetcher := &stubFetcher{}
	m := New(fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Start(ctx, 10*time.Millisecond, providerList("claude"))
	time.Sleep(35 * time.Millisecond)
	m.Stop()

	fetcher.mu.Lock()
	calls := len(fetcher.calls)
	fetcher.mu.Unlock()
	require.GreaterOrEqual(t, calls, 2, "immediate sweep plus at least one tick")
}

// paceFetcher reports strictly growing usage with strictly growing
// timestamps, one step per call.
type paceFetcher struct {
	mu   sync.Mutex
	step int
	base time.Time
}

func (f *paceFetcher) Fetch(ctx context.Context, req fetchplan.FetchRequest) (*usage.Snapshot, []fetchplan.Attempt, error) {
	f.mu.Lock()
	f.step++
	step := f.step
	f.mu.Unlock()

	return &usage.Snapshot{
		ProviderKey: req.Provider,
		Source:      usage.SourceOauth,
		Windows:     []usage.RateWindowState{{Label: "5h", Used: float64(step * 10), RawUsed: float64(step * 10), Limit: 100}},
		FetchedAt:   f.base.Add(time.Duration(step) * 100 * time.Second),
	}, []fetchplan.Attempt{{Source: usage.SourceOauth, Outcome: fetchplan.OutcomeSuccess}}, nil
}

func TestSweepDerivesPaceAcrossSweeps(t *testing.T) {
	fetcher := &paceFetcher{base: time.Unix(1000, 0)}
	m := New(fetcher)
	providers := providerList("claude")

	first := m.Sweep(context.Background(), providers)
	require.False(t, first[0].Snapshot.Pace.Known, "one sample is unknown, not zero")

	second := m.Sweep(context.Background(), providers)
	pace := second[0].Snapshot.Pace
	require.True(t, pace.Known)
	require.InDelta(t, 0.1, pace.PerSecond, 1e-9)
	require.NotNil(t, pace.ExhaustsAt)
}

type stubSeriesLoader struct {
	samples []usage.PaceSample
}

func (l *stubSeriesLoader) LoadSeries(_ context.Context, _, _, _ string, horizon time.Duration, _ time.Time) (*usage.PaceSeries, error) {
	series := usage.NewPaceSeries(horizon)
	for _, s := range l.samples {
		if err := series.Add(s); err != nil {
			return nil, err
		}
	}
	return series, nil
}

func TestPaceSeededFromLoaderOnFirstSweep(t *testing.T) {
	base := time.Unix(1000, 0)
	loader := &stubSeriesLoader{samples: []usage.PaceSample{
		{At: base.Add(-200 * time.Second), Used: 0},
	}}
	fetcher := &paceFetcher{base: base}
	m := New(fetcher, WithPaceLoader(loader))

	results := m.Sweep(context.Background(), providerList("claude"))
	pace := results[0].Snapshot.Pace
	require.True(t, pace.Known, "persisted samples make pace known on the first sweep")
	require.Greater(t, pace.PerSecond, 0.0)
}

// sessionFetcher echoes the previous session's start so continuity across
// sweeps is observable.
type sessionFetcher struct {
	mu    sync.Mutex
	prevs []*usage.SessionQuotaState
}

func (f *sessionFetcher) Fetch(ctx context.Context, req fetchplan.FetchRequest) (*usage.Snapshot, []fetchplan.Attempt, error) {
	f.mu.Lock()
	f.prevs = append(f.prevs, req.PrevSession)
	calls := len(f.prevs)
	f.mu.Unlock()

	started := time.Unix(1000, 0)
	if req.PrevSession != nil {
		started = req.PrevSession.StartedAt
	}
	return &usage.Snapshot{
		ProviderKey: req.Provider,
		Source:      usage.SourceOauth,
		Session:     &usage.SessionQuotaState{Used: float64(calls), StartedAt: started},
		FetchedAt:   time.Now(),
	}, nil, nil
}

func TestSweepThreadsSessionAcrossSweeps(t *testing.T) {
	fetcher := &sessionFetcher{}
	m := New(fetcher)
	providers := providerList("claude")

	m.Sweep(context.Background(), providers)
	results := m.Sweep(context.Background(), providers)

	require.Nil(t, fetcher.prevs[0], "first sweep has no prior session")
	require.NotNil(t, fetcher.prevs[1], "second sweep must carry the previous session")
	require.Equal(t, time.Unix(1000, 0), results[0].Snapshot.Session.StartedAt,
		"session start must survive a poll without a boundary signal")
}

// extensionFetcher reports a web attempt that earned the soft-deadline
// extension.
type extensionFetcher struct{}

func (extensionFetcher) Fetch(ctx context.Context, req fetchplan.FetchRequest) (*usage.Snapshot, []fetchplan.Attempt, error) {
	return &usage.Snapshot{
			ProviderKey: req.Provider,
			Source:      usage.SourceWeb,
			Windows:     []usage.RateWindowState{{Label: "5h", Used: 10, RawUsed: 10, Limit: 100}},
			FetchedAt:   time.Now(),
		}, []fetchplan.Attempt{
			{Source: usage.SourceWeb, Outcome: fetchplan.OutcomeSuccess, Extended: true},
		}, nil
}

func TestSweepRecordsProbeExtensions(t *testing.T) {
	m := metrics.NewMetrics("test")
	mon := New(extensionFetcher{}, WithMetrics(m))

	mon.Sweep(context.Background(), providerList("cursor"))

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)
	require.Contains(t, w.Body.String(), `test_probe_extensions_total{provider="cursor"} 1`)
}
