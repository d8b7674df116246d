package provider

import (
	"github.com/tidwall/gjson"

	"github.com/usagedeck/usagedeck/internal/usage"
)

const (
	claudeOAuthUsageURL = "https://api.anthropic.com/api/oauth/usage"
	claudeWebUsageURL   = "https://claude.ai/api/organizations/current/usage"
)

func newClaude() Provider {
	a := &adapter{
		identity: Identity{Key: "claude", DisplayName: "Claude", IconKey: "claude"},
		sources:  []usage.SourceKind{usage.SourceOauth, usage.SourceCli, usage.SourceWeb},
		cookies:  &CookieSpec{Domain: "claude.ai", Names: []string{"sessionKey"}},
	}
	a.build = map[usage.SourceKind]buildFunc{
		usage.SourceOauth: func(creds Credentials) (*Request, error) {
			return &Request{
				Method: "GET",
				URL:    claudeOAuthUsageURL,
				Headers: map[string]string{
					"Authorization":  "Bearer " + creds.Secret,
					"anthropic-beta": "oauth-2025-04-20",
				},
			}, nil
		},
		usage.SourceWeb: func(creds Credentials) (*Request, error) {
			return &Request{
				Method:  "GET",
				URL:     claudeWebUsageURL,
				Headers: map[string]string{"Cookie": cookieHeader(creds.Cookies)},
			}, nil
		},
		usage.SourceCli: func(Credentials) (*Request, error) {
			return &Request{Binary: "claude", Args: []string{"usage", "--json"}}, nil
		},
	}
	parse := parseClaudeBuckets
	a.parse = map[usage.SourceKind]parseFunc{
		usage.SourceOauth: parse,
		usage.SourceWeb:   parse,
		usage.SourceCli:   parse,
	}
	return a
}

// parseClaudeBuckets handles the five_hour/seven_day utilization shape that
// the OAuth endpoint, the dashboard API and the CLI all share.
func parseClaudeBuckets(body []byte) (*RawUsage, error) {
	root := gjson.ParseBytes(body)

	buckets := []struct {
		path  string
		label string
	}{
		{"five_hour", "5h"},
		{"seven_day", "weekly"},
		{"seven_day_opus", "weekly-opus"},
	}

	raw := &RawUsage{}
	for _, b := range buckets {
		bucket := root.Get(b.path)
		if !bucket.Exists() {
			continue
		}
		util := bucket.Get("utilization")
		if !util.Exists() {
			return nil, parseErr("claude", b.path+" bucket missing utilization")
		}
		raw.Windows = append(raw.Windows,
			percentWindow(b.label, util.Float(), tsFromRFC3339(bucket.Get("resets_at"))))
	}
	if len(raw.Windows) == 0 {
		return nil, parseErr("claude", "no rate limit buckets in payload")
	}

	if session := root.Get("session"); session.Exists() {
		obs := &usage.SessionObservation{
			Used:      session.Get("used").Float(),
			StartedAt: tsFromRFC3339(session.Get("started_at")),
		}
		if limit := session.Get("limit"); limit.Exists() {
			l := limit.Float()
			obs.Limit = &l
		}
		raw.Session = obs
	}
	return raw, nil
}

func cookieHeader(cookies map[string]string) string {
	header := ""
	for name, value := range cookies {
		if header != "" {
			header += "; "
		}
		header += name + "=" + value
	}
	return header
}
