// Package headers extracts rate-limit figures from provider response
// headers. Some usage endpoints carry their most reliable numbers in
// headers rather than the body; these observations supplement a body parse
// that yielded no windows.
package headers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/usagedeck/usagedeck/internal/usage"
)

// Windows derives window observations from whichever known rate-limit
// header family is present. An empty slice means the response carried no
// usable quota headers.
func Windows(h http.Header, now time.Time) []usage.WindowObservation {
	if obs := unifiedWindows(h, now); len(obs) > 0 {
		return obs
	}
	return standardWindows(h, now)
}

// unifiedWindows reads Anthropic's unified rate-limit headers:
// anthropic-ratelimit-unified-5h-utilization, -status and -reset.
func unifiedWindows(h http.Header, now time.Time) []usage.WindowObservation {
	var obs []usage.WindowObservation
	for _, label := range []string{"5h", "7d"} {
		prefix := "Anthropic-Ratelimit-Unified-" + label
		utilization, ok := floatHeader(h, prefix+"-Utilization")
		if !ok {
			continue
		}
		windowLabel := label
		if label == "7d" {
			windowLabel = "weekly"
		}
		obs = append(obs, usage.WindowObservation{
			Label:      windowLabel,
			Used:       utilization * 100,
			Limit:      100,
			ResetsAt:   unixHeader(h, prefix+"-Reset"),
			Confidence: usage.ConfidenceExact,
		})
	}
	return obs
}

// standardWindows reads the x-ratelimit-* family OpenAI-compatible APIs
// emit. Requests and tokens become separate windows.
func standardWindows(h http.Header, now time.Time) []usage.WindowObservation {
	var obs []usage.WindowObservation
	for _, dim := range []struct{ suffix, label string }{
		{"Requests", "requests"},
		{"Tokens", "tokens"},
	} {
		limit, ok := floatHeader(h, "X-Ratelimit-Limit-"+dim.suffix)
		if !ok || limit <= 0 {
			continue
		}
		remaining, _ := floatHeader(h, "X-Ratelimit-Remaining-"+dim.suffix)
		obs = append(obs, usage.WindowObservation{
			Label:      dim.label,
			Used:       limit - remaining,
			Limit:      limit,
			ResetsAt:   resetHeader(h, "X-Ratelimit-Reset-"+dim.suffix, now),
			Confidence: usage.ConfidenceExact,
		})
	}
	return obs
}

func floatHeader(h http.Header, key string) (float64, bool) {
	value := strings.TrimSpace(h.Get(key))
	if value == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// unixHeader parses an epoch-seconds timestamp; malformed values degrade to
// a zero time rather than failing the observation.
func unixHeader(h http.Header, key string) time.Time {
	value := strings.TrimSpace(h.Get(key))
	if value == "" {
		return time.Time{}
	}
	seconds, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(seconds, 0).UTC()
}

// resetHeader parses a relative duration value like "6m0s" or "21s".
func resetHeader(h http.Header, key string, now time.Time) time.Time {
	value := strings.TrimSpace(h.Get(key))
	if value == "" {
		return time.Time{}
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return time.Time{}
	}
	return now.Add(d)
}
