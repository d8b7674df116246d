package usage

import (
	"fmt"
	"time"
)

// DefaultPaceHorizon bounds how much history feeds pace calculation. Older
// samples are evicted; unbounded growth would defeat a lightweight monitor.
const DefaultPaceHorizon = 24 * time.Hour

// PaceSample is one (timestamp, used) observation for a provider window.
type PaceSample struct {
	At   time.Time
	Used float64
}

// PaceSeries is an append-only, time-ordered sample series for one
// (provider, window label) pair, retained over a bounded rolling horizon.
type PaceSeries struct {
	horizon time.Duration
	samples []PaceSample
}

// NewPaceSeries creates a series with the given retention horizon; a
// non-positive horizon falls back to the default.
func NewPaceSeries(horizon time.Duration) *PaceSeries {
	if horizon <= 0 {
		horizon = DefaultPaceHorizon
	}
	return &PaceSeries{horizon: horizon}
}

// Add appends a sample. Timestamps must be strictly increasing; a stale or
// duplicate timestamp is rejected so velocity math never divides by zero.
func (s *PaceSeries) Add(sample PaceSample) error {
	if n := len(s.samples); n > 0 && !sample.At.After(s.samples[n-1].At) {
		return fmt.Errorf("sample at %s is not after latest %s", sample.At, s.samples[n-1].At)
	}
	s.samples = append(s.samples, sample)
	s.evict(sample.At)
	return nil
}

func (s *PaceSeries) evict(latest time.Time) {
	cutoff := latest.Add(-s.horizon)
	firstKept := 0
	for firstKept < len(s.samples) && s.samples[firstKept].At.Before(cutoff) {
		firstKept++
	}
	if firstKept > 0 {
		s.samples = append(s.samples[:0], s.samples[firstKept:]...)
	}
}

// Len returns the number of retained samples.
func (s *PaceSeries) Len() int {
	return len(s.samples)
}

// Samples returns a copy of the retained samples in time order.
func (s *PaceSeries) Samples() []PaceSample {
	out := make([]PaceSample, len(s.samples))
	copy(out, s.samples)
	return out
}

// PaceProjection is the derived consumption velocity and exhaustion estimate
// carried on a snapshot. Known is false with fewer than two samples: that is
// "unknown", not zero, to avoid a false "never exhausts" signal.
type PaceProjection struct {
	Known      bool       `json:"known"`
	PerSecond  float64    `json:"per_second"`
	ExhaustsAt *time.Time `json:"exhausts_at,omitempty"`
}

// Velocity returns consumption per second over the retained horizon.
func (s *PaceSeries) Velocity() (float64, bool) {
	if len(s.samples) < 2 {
		return 0, false
	}
	first := s.samples[0]
	last := s.samples[len(s.samples)-1]
	dt := last.At.Sub(first.At).Seconds()
	if dt <= 0 {
		return 0, false
	}
	return (last.Used - first.Used) / dt, true
}

// Project derives the pace projection against a window limit. Exhaustion is
// the linear extrapolation crossing the limit; it is undefined (nil), not an
// error, when velocity is not positive.
func (s *PaceSeries) Project(limit float64) PaceProjection {
	velocity, ok := s.Velocity()
	if !ok {
		return PaceProjection{}
	}

	proj := PaceProjection{Known: true, PerSecond: velocity}
	if velocity <= 0 || limit <= 0 {
		return proj
	}

	last := s.samples[len(s.samples)-1]
	remaining := limit - last.Used
	if remaining < 0 {
		remaining = 0
	}
	secs := remaining / velocity
	at := last.At.Add(time.Duration(secs * float64(time.Second)))
	proj.ExhaustsAt = &at
	return proj
}
