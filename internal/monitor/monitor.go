// Package monitor drives periodic usage sweeps across configured providers.
// Providers are fetched concurrently under a bounded worker pool; within one
// provider, sources run sequentially inside the planner. Results always come
// back in configuration order regardless of completion order.
package monitor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/usagedeck/usagedeck/internal/browser"
	"github.com/usagedeck/usagedeck/internal/config"
	"github.com/usagedeck/usagedeck/internal/fetchplan"
	"github.com/usagedeck/usagedeck/internal/logging"
	"github.com/usagedeck/usagedeck/internal/metrics"
	"github.com/usagedeck/usagedeck/internal/usage"
)

const defaultConcurrency = 4

// Fetcher acquires usage for one provider.
type Fetcher interface {
	Fetch(ctx context.Context, req fetchplan.FetchRequest) (*usage.Snapshot, []fetchplan.Attempt, error)
}

// Recorder persists successful snapshots, typically the history database.
type Recorder interface {
	RecordSnapshot(ctx context.Context, snap *usage.Snapshot) error
}

// Result is the outcome of one provider's fetch within a sweep.
type Result struct {
	Provider string
	Snapshot *usage.Snapshot
	Attempts []fetchplan.Attempt
	Err      error
}

// Monitor owns the sweep loop and the latest known state per provider.
type Monitor struct {
	fetcher     Fetcher
	recorder    Recorder
	metrics     *metrics.Metrics
	logger      *logging.Logger
	concurrency int
	onResult    func(Result)
	pace        *paceTracker

	mu     sync.RWMutex
	latest map[string]Result

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithRecorder persists successful snapshots.
func WithRecorder(r Recorder) Option {
	return func(m *Monitor) { m.recorder = r }
}

// WithMetrics records sweep and attempt metrics.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Monitor) { m.metrics = mx }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithConcurrency bounds how many providers are fetched at once.
func WithConcurrency(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// WithOnResult registers an observer called for every per-provider result,
// used for alerting.
func WithOnResult(fn func(Result)) Option {
	return func(m *Monitor) { m.onResult = fn }
}

// WithPaceLoader seeds pace series from persisted samples at first use, so
// velocity is known right after a restart instead of two sweeps later.
func WithPaceLoader(l SeriesLoader) Option {
	return func(m *Monitor) { m.pace = newPaceTracker(l) }
}

// New creates a monitor around the fetcher.
func New(fetcher Fetcher, opts ...Option) *Monitor {
	m := &Monitor{
		fetcher:     fetcher,
		logger:      logging.NewLogger(),
		concurrency: defaultConcurrency,
		pace:        newPaceTracker(nil),
		latest:      make(map[string]Result),
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Sweep fetches every provider once and returns results in the order the
// providers were given. A provider failure is carried in its result, never
// propagated as the sweep's error; only context cancellation ends a sweep
// early.
func (m *Monitor) Sweep(ctx context.Context, providers []config.ProviderConfig) []Result {
	started := time.Now()
	results := make([]Result, len(providers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for i, pc := range providers {
		i, pc := i, pc
		g.Go(func() error {
			snap, attempts, err := m.fetcher.Fetch(gctx, fetchplan.FetchRequest{
				Provider:     pc.Key,
				Preference:   usage.Preference(sourceOrAuto(pc.Source)),
				AccountLabel: pc.Account,
				Browser:      browser.Browser(pc.Browser),
				WebBudget:    pc.WebTimeout,
				PrevSession:  m.prevSession(pc.Key),
			})
			results[i] = Result{Provider: pc.Key, Snapshot: snap, Attempts: attempts, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i := range results {
		m.finish(ctx, &results[i])
	}

	if m.metrics != nil {
		m.metrics.RecordSweepDuration(time.Since(started))
	}
	return results
}

// prevSession hands the last snapshot's session state to the next fetch so
// the session start only moves on a provider boundary signal, never because
// a new poll happened.
func (m *Monitor) prevSession(provider string) *usage.SessionQuotaState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if res, ok := m.latest[provider]; ok && res.Snapshot != nil {
		return res.Snapshot.Session
	}
	return nil
}

func sourceOrAuto(source string) string {
	if source == "" {
		return string(usage.PreferAuto)
	}
	return source
}

// finish folds one result into latest state, history, metrics and observers.
func (m *Monitor) finish(ctx context.Context, res *Result) {
	if res.Err == nil && res.Snapshot != nil {
		res.Snapshot.Pace = m.pace.observe(ctx, res.Snapshot)
	}

	m.mu.Lock()
	m.latest[res.Provider] = *res
	m.mu.Unlock()

	if m.metrics != nil {
		for _, a := range res.Attempts {
			m.metrics.RecordFetchAttempt(res.Provider, string(a.Source), string(a.Outcome), a.Elapsed)
			if a.Extended {
				m.metrics.RecordProbeExtension(res.Provider)
			}
		}
	}

	if res.Err != nil {
		m.logger.WarnWithContext(ctx, "provider sweep failed",
			"provider", res.Provider, "error", res.Err.Error())
	} else if res.Snapshot != nil {
		if m.recorder != nil {
			if err := m.recorder.RecordSnapshot(ctx, res.Snapshot); err != nil {
				m.logger.WarnWithContext(ctx, "failed to persist snapshot",
					"provider", res.Provider, "error", err.Error())
			}
		}
		if m.metrics != nil {
			for _, w := range res.Snapshot.Windows {
				m.metrics.RecordWindow(res.Provider, res.Snapshot.AccountLabel, w.Label, w.Used, w.Limit)
			}
			if pace := res.Snapshot.Pace; pace.Known {
				if primary, ok := res.Snapshot.PrimaryWindow(); ok {
					m.metrics.RecordPaceVelocity(res.Provider, res.Snapshot.AccountLabel, primary.Label, pace.PerSecond)
				}
			}
		}
	}

	if m.onResult != nil {
		m.onResult(*res)
	}
}

// Latest returns the most recent result for a provider.
func (m *Monitor) Latest(provider string) (Result, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.latest[provider]
	return res, ok
}

// LatestAll returns the most recent result for each of the given providers,
// in the given order, skipping providers never swept.
func (m *Monitor) LatestAll(providers []config.ProviderConfig) []Result {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Result, 0, len(providers))
	for _, pc := range providers {
		if res, ok := m.latest[pc.Key]; ok {
			out = append(out, res)
		}
	}
	return out
}

// Start runs the sweep loop until Stop or context cancellation. The first
// sweep happens immediately.
func (m *Monitor) Start(ctx context.Context, interval time.Duration, providers []config.ProviderConfig) {
	if interval <= 0 {
		interval = time.Minute
	}

	go func() {
		defer close(m.doneChan)

		m.Sweep(ctx, providers)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopChan:
				return
			case <-ticker.C:
				m.Sweep(ctx, providers)
			}
		}
	}()
}

// Stop ends the sweep loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
	<-m.doneChan
}
