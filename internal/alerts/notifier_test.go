package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/usagedeck/usagedeck/internal/usage"
)

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) Send(text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

func snapshotWithUtilization(used float64) *usage.Snapshot {
	return &usage.Snapshot{
		ProviderKey:  "claude",
		AccountLabel: "work",
		Windows: []usage.RateWindowState{
			{Label: "5h", Used: used, RawUsed: used, Limit: 100},
		},
	}
}

func TestObserveSnapshotCrossesThreshold(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, []float64{80, 95}, time.Hour)

	n.ObserveSnapshot(snapshotWithUtilization(85))
	require.Len(t, sender.sent, 1)
	require.Contains(t, sender.sent[0], "claude")
	require.Contains(t, sender.sent[0], "85%")
	require.Contains(t, sender.sent[0], "threshold 80%")
}

func TestObserveSnapshotHighestThresholdWins(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, []float64{80, 95}, time.Hour)

	n.ObserveSnapshot(snapshotWithUtilization(97))
	require.Len(t, sender.sent, 1)
	require.Contains(t, sender.sent[0], "threshold 95%")
}

func TestObserveSnapshotDeduplicatesWithinCooldown(t *testing.T) {
	sender := &fakeSender{}
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	n := NewNotifier(sender, []float64{80}, time.Hour, WithClock(func() time.Time { return now }))

	n.ObserveSnapshot(snapshotWithUtilization(85))
	n.ObserveSnapshot(snapshotWithUtilization(86))
	require.Len(t, sender.sent, 1, "second crossing inside cooldown is suppressed")

	now = now.Add(2 * time.Hour)
	n.ObserveSnapshot(snapshotWithUtilization(86))
	require.Len(t, sender.sent, 2, "cooldown expiry re-allows the alert")
}

func TestObserveSnapshotRearmsAfterRecovery(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, []float64{80}, time.Hour)

	n.ObserveSnapshot(snapshotWithUtilization(85))
	require.Len(t, sender.sent, 1)

	// Window resets; utilization falls back under the threshold.
	n.ObserveSnapshot(snapshotWithUtilization(10))
	require.Equal(t, 0, n.Pending())

	n.ObserveSnapshot(snapshotWithUtilization(90))
	require.Len(t, sender.sent, 2)
}

func TestObserveSnapshotBelowAllThresholds(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, []float64{80, 95}, time.Hour)

	n.ObserveSnapshot(snapshotWithUtilization(50))
	require.Empty(t, sender.sent)
}

func TestObserveSnapshotSendFailureDoesNotRecord(t *testing.T) {
	sender := &fakeSender{err: errSend}
	n := NewNotifier(sender, []float64{80}, time.Hour)

	n.ObserveSnapshot(snapshotWithUtilization(85))
	require.Equal(t, 0, n.Pending(), "failed delivery must not suppress the next try")

	sender.err = nil
	n.ObserveSnapshot(snapshotWithUtilization(85))
	require.Len(t, sender.sent, 1)
}

func TestObserveSnapshotSkipsUnlimitedWindows(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, []float64{80}, time.Hour)

	n.ObserveSnapshot(&usage.Snapshot{
		ProviderKey: "opencode",
		Windows:     []usage.RateWindowState{{Label: "daily", Used: 500, Limit: 0}},
	})
	require.Empty(t, sender.sent)
}

var errSend = &sendError{}

type sendError struct{}

func (*sendError) Error() string { return "telegram unavailable" }
