package usage

import "time"

// Confidence qualifies how trustworthy a reported figure is.
type Confidence string

const (
	ConfidenceExact     Confidence = "exact"
	ConfidenceEstimated Confidence = "estimated"
)

// WindowObservation is a raw (used, limit, resets-at) triple as reported by a
// provider for one rolling window. Declaration order carries display priority.
type WindowObservation struct {
	Label      string
	Used       float64
	Limit      float64
	ResetsAt   time.Time
	Confidence Confidence
}

// RateWindowState is the normalized rolling-window figure held in a snapshot.
// Used is clamped to Limit for display; RawUsed keeps the reported value so
// pace calculation is not distorted by the clamp.
type RateWindowState struct {
	Label      string     `json:"label"`
	Used       float64    `json:"used"`
	RawUsed    float64    `json:"raw_used"`
	Limit      float64    `json:"limit"`
	ResetsAt   time.Time  `json:"resets_at"`
	Confidence Confidence `json:"confidence"`
}

// Remaining returns the unconsumed portion of the window.
func (w RateWindowState) Remaining() float64 {
	r := w.Limit - w.Used
	if r < 0 {
		return 0
	}
	return r
}

// RemainingFraction returns remaining/limit, or 0 when the limit is unknown.
func (w RateWindowState) RemainingFraction() float64 {
	if w.Limit <= 0 {
		return 0
	}
	return w.Remaining() / w.Limit
}

// NormalizeWindows converts raw observations into window states, preserving
// declaration order. A used figure above the limit is clamped for display and
// the window is downgraded to estimated confidence; the raw figure survives
// in RawUsed. Negative figures are floored at zero.
func NormalizeWindows(observations []WindowObservation) []RateWindowState {
	if len(observations) == 0 {
		return nil
	}

	states := make([]RateWindowState, 0, len(observations))
	for _, obs := range observations {
		used := obs.Used
		if used < 0 {
			used = 0
		}
		limit := obs.Limit
		if limit < 0 {
			limit = 0
		}

		state := RateWindowState{
			Label:      obs.Label,
			Used:       used,
			RawUsed:    used,
			Limit:      limit,
			ResetsAt:   obs.ResetsAt,
			Confidence: obs.Confidence,
		}
		if state.Confidence == "" {
			state.Confidence = ConfidenceExact
		}
		if limit > 0 && used > limit {
			state.Used = limit
			state.Confidence = ConfidenceEstimated
		}
		states = append(states, state)
	}
	return states
}
