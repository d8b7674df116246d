package provider

import (
	"github.com/tidwall/gjson"

	"github.com/usagedeck/usagedeck/internal/usage"
)

const codexWebUsageURL = "https://chatgpt.com/backend-api/wham/usage"

func newCodex() Provider {
	a := &adapter{
		identity: Identity{Key: "codex", DisplayName: "Codex", IconKey: "codex"},
		sources:  []usage.SourceKind{usage.SourceCli, usage.SourceWeb},
		cookies:  &CookieSpec{Domain: "chatgpt.com", Names: []string{"__Secure-next-auth.session-token"}},
	}
	a.build = map[usage.SourceKind]buildFunc{
		usage.SourceWeb: func(creds Credentials) (*Request, error) {
			return &Request{
				Method:  "GET",
				URL:     codexWebUsageURL,
				Headers: map[string]string{"Cookie": cookieHeader(creds.Cookies)},
			}, nil
		},
		usage.SourceCli: func(Credentials) (*Request, error) {
			return &Request{Binary: "codex", Args: []string{"usage", "--json"}}, nil
		},
	}
	a.parse = map[usage.SourceKind]parseFunc{
		usage.SourceWeb: parseCodexRateLimits,
		usage.SourceCli: parseCodexRateLimits,
	}
	return a
}

// parseCodexRateLimits reads the rate_limits envelope with primary and
// secondary used_percent buckets keyed by window length in minutes.
func parseCodexRateLimits(body []byte) (*RawUsage, error) {
	limits := gjson.GetBytes(body, "rate_limits")
	if !limits.Exists() {
		return nil, parseErr("codex", "rate_limits missing from payload")
	}

	raw := &RawUsage{}
	for _, key := range []string{"primary", "secondary"} {
		bucket := limits.Get(key)
		if !bucket.Exists() {
			continue
		}
		used := bucket.Get("used_percent")
		if !used.Exists() {
			return nil, parseErr("codex", key+" bucket missing used_percent")
		}
		label := windowLabelFromMinutes(bucket.Get("window_minutes").Int())
		raw.Windows = append(raw.Windows,
			percentWindow(label, used.Float(), tsFromUnix(bucket.Get("resets_at"))))
	}
	if len(raw.Windows) == 0 {
		return nil, parseErr("codex", "rate_limits has no buckets")
	}

	if credits := gjson.GetBytes(body, "credits"); credits.Exists() {
		obs := &usage.SessionObservation{Used: credits.Get("used").Float()}
		if total := credits.Get("granted"); total.Exists() {
			t := total.Float()
			obs.Limit = &t
		}
		raw.Session = obs
	}
	return raw, nil
}
