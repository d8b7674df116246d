// Package alerts raises threshold notifications when a provider's window
// utilization crosses configured levels. Alerts deduplicate within a
// cooldown window and re-arm when utilization drops back below the level,
// so a window hovering at a threshold does not spam the channel.
package alerts

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/usagedeck/usagedeck/internal/logging"
	"github.com/usagedeck/usagedeck/internal/usage"
)

// Sender delivers one alert message to the configured channel.
type Sender interface {
	Send(text string) error
}

// Notifier evaluates snapshots against thresholds and raises alerts.
type Notifier struct {
	sender     Sender
	thresholds []float64
	cooldown   time.Duration
	logger     *logging.Logger
	now        func() time.Time

	mu   sync.Mutex
	sent map[string]time.Time
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

// WithClock overrides time, used by tests.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

// NewNotifier creates a notifier. Thresholds are utilization percentages in
// (0, 100]; they are sorted ascending so the highest crossed level wins.
func NewNotifier(sender Sender, thresholds []float64, cooldown time.Duration, opts ...Option) *Notifier {
	sorted := make([]float64, len(thresholds))
	copy(sorted, thresholds)
	sort.Float64s(sorted)

	if cooldown <= 0 {
		cooldown = 30 * time.Minute
	}

	n := &Notifier{
		sender:     sender,
		thresholds: sorted,
		cooldown:   cooldown,
		logger:     logging.NewLogger(),
		now:        time.Now,
		sent:       make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// ObserveSnapshot checks every window in the snapshot. For each window the
// highest crossed threshold produces at most one alert per cooldown; a
// window back under the lowest threshold re-arms all its levels.
func (n *Notifier) ObserveSnapshot(snap *usage.Snapshot) {
	if snap == nil || len(n.thresholds) == 0 {
		return
	}

	for _, w := range snap.Windows {
		if w.Limit <= 0 {
			continue
		}
		utilization := w.Used / w.Limit * 100
		crossed := n.highestCrossed(utilization)

		if crossed < 0 {
			n.rearm(snap.ProviderKey, snap.AccountLabel, w.Label)
			continue
		}

		key := alertKey(snap.ProviderKey, snap.AccountLabel, w.Label, n.thresholds[crossed])
		if !n.shouldSend(key) {
			continue
		}

		text := formatWindowAlert(snap, w, utilization, n.thresholds[crossed])
		if err := n.sender.Send(text); err != nil {
			n.logger.Warn("failed to deliver alert",
				"provider", snap.ProviderKey, "window", w.Label, "error", err.Error())
			continue
		}
		n.record(key)
	}
}

// highestCrossed returns the index of the highest threshold at or below the
// utilization, or -1 when none is crossed.
func (n *Notifier) highestCrossed(utilization float64) int {
	crossed := -1
	for i, threshold := range n.thresholds {
		if utilization >= threshold {
			crossed = i
		}
	}
	return crossed
}

func (n *Notifier) shouldSend(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	sentAt, ok := n.sent[key]
	return !ok || n.now().Sub(sentAt) >= n.cooldown
}

func (n *Notifier) record(key string) {
	n.mu.Lock()
	n.sent[key] = n.now()
	n.mu.Unlock()
}

// rearm drops dedup records for every threshold of one window so the next
// crossing alerts again.
func (n *Notifier) rearm(provider, account, window string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, threshold := range n.thresholds {
		delete(n.sent, alertKey(provider, account, window, threshold))
	}
}

// Pending returns how many dedup records are held, for introspection.
func (n *Notifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func alertKey(provider, account, window string, threshold float64) string {
	return fmt.Sprintf("%s|%s|%s|%.0f", provider, account, window, threshold)
}

func formatWindowAlert(snap *usage.Snapshot, w usage.RateWindowState, utilization, threshold float64) string {
	text := fmt.Sprintf("⚠️ *%s* %s window at %.0f%% (threshold %.0f%%)",
		snap.ProviderKey, w.Label, utilization, threshold)
	if snap.AccountLabel != "" {
		text += fmt.Sprintf("\naccount: %s", snap.AccountLabel)
	}
	if !w.ResetsAt.IsZero() {
		text += fmt.Sprintf("\nresets: %s", w.ResetsAt.UTC().Format("Jan 2 15:04 MST"))
	}
	return text
}
