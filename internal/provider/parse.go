package provider

import (
	"time"

	"github.com/tidwall/gjson"

	"github.com/usagedeck/usagedeck/internal/errors"
	"github.com/usagedeck/usagedeck/internal/usage"
)

func parseErr(provider, reason string) error {
	return &errors.ErrParse{Provider: provider, Reason: reason}
}

// percentWindow builds a window observation from a 0-100 utilization value.
func percentWindow(label string, usedPercent float64, resetsAt time.Time) usage.WindowObservation {
	return usage.WindowObservation{
		Label:    label,
		Used:     usedPercent,
		Limit:    100,
		ResetsAt: resetsAt,
	}
}

// countWindow builds a window observation from absolute used/limit counts.
func countWindow(label string, used, limit float64, resetsAt time.Time) usage.WindowObservation {
	return usage.WindowObservation{
		Label:    label,
		Used:     used,
		Limit:    limit,
		ResetsAt: resetsAt,
	}
}

// tsFromUnix interprets a gjson value as unix seconds; zero when absent.
func tsFromUnix(v gjson.Result) time.Time {
	if !v.Exists() || v.Int() <= 0 {
		return time.Time{}
	}
	return time.Unix(v.Int(), 0).UTC()
}

// tsFromRFC3339 parses an RFC 3339 timestamp; zero when absent or malformed.
// Malformed reset timestamps degrade the observation, they do not fail it.
func tsFromRFC3339(v gjson.Result) time.Time {
	if !v.Exists() {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, v.String())
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

// windowLabelFromMinutes maps a rolling-window length to a stable label.
func windowLabelFromMinutes(minutes int64) string {
	switch {
	case minutes <= 0:
		return "window"
	case minutes <= 300:
		return "5h"
	case minutes >= 10080:
		return "weekly"
	default:
		return "daily"
	}
}
