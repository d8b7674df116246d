package usage

import "time"

// SessionObservation is the raw session-scoped quota figure from a provider
// response. NewSession marks a provider-signalled session boundary.
type SessionObservation struct {
	Used       float64
	Limit      *float64
	StartedAt  time.Time
	NewSession bool
}

// SessionQuotaState tracks quota consumed within the provider's notion of a
// current session, distinct from rolling rate windows. Limit is nil for
// providers that report only consumption.
type SessionQuotaState struct {
	Used      float64   `json:"used"`
	Limit     *float64  `json:"limit,omitempty"`
	StartedAt time.Time `json:"session_started_at"`
}

// ApplySession folds an observation into the previous session state. The
// session restarts only when the provider signals a boundary; otherwise the
// original start time is kept and figures are replaced wholesale.
func ApplySession(prev *SessionQuotaState, obs *SessionObservation, now time.Time) *SessionQuotaState {
	if obs == nil {
		return prev
	}

	startedAt := obs.StartedAt
	if prev != nil && !obs.NewSession {
		startedAt = prev.StartedAt
	}
	if startedAt.IsZero() {
		startedAt = now
	}

	return &SessionQuotaState{
		Used:      obs.Used,
		Limit:     obs.Limit,
		StartedAt: startedAt,
	}
}
