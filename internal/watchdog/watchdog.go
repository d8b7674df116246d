// Package watchdog supervises long-running web probe attempts. Dashboard
// scraping is the slowest and least predictable source, so each probe runs
// under a soft deadline that can stretch once when the probe demonstrates
// forward progress, never beyond twice the original allowance.
package watchdog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/usagedeck/usagedeck/internal/errors"
)

// State is the terminal disposition of one supervised probe.
type State string

const (
	StateCompleted State = "completed"
	StateTimedOut  State = "timed_out"
	StateCancelled State = "cancelled"
)

// ProbeFunc performs the attempt. It must honor ctx cancellation and may
// call progress whenever it advances (connected, received bytes, parsed a
// partial page). Progress is what earns a deadline extension.
type ProbeFunc func(ctx context.Context, progress func()) error

// Result describes how a supervised probe ended.
type Result struct {
	State    State
	Elapsed  time.Duration
	Extended bool
}

// Watchdog enforces single-flight per provider: one web probe per provider
// at a time, concurrent probes across providers.
type Watchdog struct {
	mu      sync.Mutex
	running map[string]bool

	now func() time.Time
}

// New creates an idle watchdog.
func New() *Watchdog {
	return &Watchdog{
		running: make(map[string]bool),
		now:     time.Now,
	}
}

// Running reports whether a probe for the provider is currently supervised.
func (w *Watchdog) Running(providerKey string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running[providerKey]
}

// Run supervises probe under softDeadline. If the probe reports progress
// before the soft deadline fires, the deadline is extended exactly once by
// the same amount; the hard ceiling is 2x softDeadline. A second probe for
// the same provider fails immediately with ErrAlreadyRunning. A probe still
// executing after timeout or cancellation has its context cancelled and its
// eventual return value is discarded.
func (w *Watchdog) Run(ctx context.Context, providerKey string, softDeadline time.Duration, probe ProbeFunc) (Result, error) {
	w.mu.Lock()
	if w.running[providerKey] {
		w.mu.Unlock()
		return Result{}, &errors.ErrAlreadyRunning{Provider: providerKey}
	}
	w.running[providerKey] = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		delete(w.running, providerKey)
		w.mu.Unlock()
	}()

	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var progressed atomic.Bool
	started := w.now()

	done := make(chan error, 1)
	go func() {
		done <- probe(probeCtx, func() { progressed.Store(true) })
	}()

	timer := time.NewTimer(softDeadline)
	defer timer.Stop()

	extended := false
	for {
		select {
		case err := <-done:
			return Result{State: StateCompleted, Elapsed: w.now().Sub(started), Extended: extended}, err

		case <-ctx.Done():
			cancel()
			return Result{State: StateCancelled, Elapsed: w.now().Sub(started), Extended: extended}, ctx.Err()

		case <-timer.C:
			if !extended && progressed.Load() {
				extended = true
				timer.Reset(softDeadline)
				continue
			}
			cancel()
			elapsed := w.now().Sub(started)
			return Result{State: StateTimedOut, Elapsed: elapsed, Extended: extended},
				&errors.ErrAttemptTimeout{Provider: providerKey, Elapsed: elapsed}
		}
	}
}
