package fetchplan

import (
	"fmt"
	"strings"
	"time"

	"github.com/usagedeck/usagedeck/internal/usage"
)

// OutcomeKind classifies how one source attempt ended.
type OutcomeKind string

const (
	OutcomeSuccess           OutcomeKind = "success"
	OutcomeSourceUnavailable OutcomeKind = "source_unavailable"
	OutcomeTimeout           OutcomeKind = "timeout"
	OutcomeAuthFailure       OutcomeKind = "auth_failure"
	OutcomeParseFailure      OutcomeKind = "parse_failure"
	OutcomeCancelled         OutcomeKind = "cancelled"
)

// Attempt records one source try within a fetch, in execution order.
// Extended marks a web attempt that earned the watchdog's soft-deadline
// extension.
type Attempt struct {
	ID       string           `json:"id"`
	Source   usage.SourceKind `json:"source"`
	Outcome  OutcomeKind      `json:"outcome"`
	Elapsed  time.Duration    `json:"elapsed"`
	Extended bool             `json:"extended,omitempty"`
	Err      error            `json:"-"`
}

// AggregateError reports that every attempted source failed. It keeps the
// per-source outcomes so callers can distinguish "no credentials anywhere"
// from "credentials rejected".
type AggregateError struct {
	Provider string
	Attempts []Attempt
}

func (e *AggregateError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		part := fmt.Sprintf("%s=%s", a.Source, a.Outcome)
		if a.Err != nil {
			part += " (" + a.Err.Error() + ")"
		}
		parts = append(parts, part)
	}
	return fmt.Sprintf("all sources failed for provider %s: %s",
		e.Provider, strings.Join(parts, "; "))
}
