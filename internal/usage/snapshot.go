package usage

import "time"

// Snapshot is the terminal artifact of a fetch: one provider's normalized
// usage state. It is immutable once produced and is the sole output the core
// hands to rendering and CLI collaborators.
type Snapshot struct {
	ProviderKey  string             `json:"provider"`
	AccountLabel string             `json:"account"`
	Source       SourceKind         `json:"source"`
	Windows      []RateWindowState  `json:"windows,omitempty"`
	Session      *SessionQuotaState `json:"session,omitempty"`
	Pace         PaceProjection     `json:"pace"`
	FetchedAt    time.Time          `json:"fetched_at"`
}

// PrimaryWindow returns the first (highest display priority) window, if any.
func (s *Snapshot) PrimaryWindow() (RateWindowState, bool) {
	if len(s.Windows) == 0 {
		return RateWindowState{}, false
	}
	return s.Windows[0], true
}
