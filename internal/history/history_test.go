package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/usagedeck/usagedeck/internal/usage"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func snapshotAt(t time.Time, used float64) *usage.Snapshot {
	return &usage.Snapshot{
		ProviderKey:  "claude",
		AccountLabel: "work",
		Source:       usage.SourceOauth,
		Windows: []usage.RateWindowState{
			{Label: "5h", Used: used, RawUsed: used, Limit: 100},
		},
		FetchedAt: t,
	}
}

func TestRecordAndLoadSamples(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, db.RecordSnapshot(ctx, snapshotAt(base, 10)))
	require.NoError(t, db.RecordSnapshot(ctx, snapshotAt(base.Add(100*time.Second), 30)))

	samples, err := db.Samples(ctx, "claude", "work", "5h", base.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, samples, 2)
	require.Equal(t, 10.0, samples[0].Used)
	require.Equal(t, base, samples[0].At)
	require.Equal(t, 30.0, samples[1].Used)
}

func TestRecordSnapshotPersistsRawUsed(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	snap := snapshotAt(base, 100)
	snap.Windows[0].Used = 100 // clamped display figure
	snap.Windows[0].RawUsed = 130
	require.NoError(t, db.RecordSnapshot(ctx, snap))

	samples, err := db.Samples(ctx, "claude", "work", "5h", base.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, 130.0, samples[0].Used)
}

func TestLoadSeriesRebuildsVelocity(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, db.RecordSnapshot(ctx, snapshotAt(base, 10)))
	require.NoError(t, db.RecordSnapshot(ctx, snapshotAt(base.Add(100*time.Second), 30)))

	series, err := db.LoadSeries(ctx, "claude", "work", "5h", usage.DefaultPaceHorizon, base.Add(200*time.Second))
	require.NoError(t, err)
	require.Equal(t, 2, series.Len())

	velocity, ok := series.Velocity()
	require.True(t, ok)
	require.InDelta(t, 0.2, velocity, 1e-9)
}

func TestLoadSeriesRespectsHorizon(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, db.RecordSnapshot(ctx, snapshotAt(base.Add(-48*time.Hour), 5)))
	require.NoError(t, db.RecordSnapshot(ctx, snapshotAt(base, 10)))

	series, err := db.LoadSeries(ctx, "claude", "work", "5h", 24*time.Hour, base)
	require.NoError(t, err)
	require.Equal(t, 1, series.Len(), "samples beyond the horizon stay out")
}

func TestSeriesAreIsolatedByAccountAndLabel(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	snap := snapshotAt(base, 10)
	snap.AccountLabel = "personal"
	require.NoError(t, db.RecordSnapshot(ctx, snap))

	samples, err := db.Samples(ctx, "claude", "work", "5h", base.Add(-time.Hour))
	require.NoError(t, err)
	require.Empty(t, samples)
}

func TestPrune(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, db.RecordSnapshot(ctx, snapshotAt(base.Add(-72*time.Hour), 1)))
	require.NoError(t, db.RecordSnapshot(ctx, snapshotAt(base, 2)))

	deleted, err := db.Prune(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	samples, err := db.Samples(ctx, "claude", "work", "5h", base.Add(-96*time.Hour))
	require.NoError(t, err)
	require.Len(t, samples, 1)
}

func TestRecordNilSnapshotIsNoop(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.RecordSnapshot(context.Background(), nil))
}
