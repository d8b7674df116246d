package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/usagedeck/usagedeck/internal/usage"
)

// SeriesLoader rebuilds a pace series from persisted samples, typically the
// history database, so pace survives restarts.
type SeriesLoader interface {
	LoadSeries(ctx context.Context, provider, account, windowLabel string, horizon time.Duration, now time.Time) (*usage.PaceSeries, error)
}

// paceTracker holds one in-memory series per (provider, account, window) and
// derives the projection carried on each successful snapshot.
type paceTracker struct {
	mu     sync.Mutex
	loader SeriesLoader
	series map[paceKey]*usage.PaceSeries
}

type paceKey struct {
	provider string
	account  string
	window   string
}

func newPaceTracker(loader SeriesLoader) *paceTracker {
	return &paceTracker{
		loader: loader,
		series: make(map[paceKey]*usage.PaceSeries),
	}
}

// observe folds the snapshot's primary window into its series and returns
// the projection against that window's limit. RawUsed feeds the series so a
// display clamp never flattens the velocity.
func (t *paceTracker) observe(ctx context.Context, snap *usage.Snapshot) usage.PaceProjection {
	primary, ok := snap.PrimaryWindow()
	if !ok {
		return usage.PaceProjection{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := paceKey{provider: snap.ProviderKey, account: snap.AccountLabel, window: primary.Label}
	series, found := t.series[key]
	if !found {
		series = t.seed(ctx, key, snap.FetchedAt)
		t.series[key] = series
	}

	// A stale timestamp (clock skew, replayed sweep) is dropped rather than
	// poisoning the series.
	_ = series.Add(usage.PaceSample{At: snap.FetchedAt, Used: primary.RawUsed})
	return series.Project(primary.Limit)
}

func (t *paceTracker) seed(ctx context.Context, key paceKey, now time.Time) *usage.PaceSeries {
	if t.loader != nil {
		if series, err := t.loader.LoadSeries(ctx, key.provider, key.account, key.window, usage.DefaultPaceHorizon, now); err == nil {
			return series
		}
	}
	return usage.NewPaceSeries(0)
}
