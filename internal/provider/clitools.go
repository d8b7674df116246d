package provider

import (
	"github.com/tidwall/gjson"

	"github.com/usagedeck/usagedeck/internal/usage"
)

func newKiro() Provider {
	a := &adapter{
		identity: Identity{Key: "kiro", DisplayName: "Kiro", IconKey: "kiro"},
		sources:  []usage.SourceKind{usage.SourceCli},
	}
	a.build = map[usage.SourceKind]buildFunc{
		usage.SourceCli: func(Credentials) (*Request, error) {
			return &Request{Binary: "kiro", Args: []string{"usage", "--json"}}, nil
		},
	}
	a.parse = map[usage.SourceKind]parseFunc{
		usage.SourceCli: parseKiroUsage,
	}
	return a
}

// parseKiroUsage reads the spec/vibe request pools, each metered separately
// within the same monthly cycle.
func parseKiroUsage(body []byte) (*RawUsage, error) {
	resets := tsFromRFC3339(gjson.GetBytes(body, "resetsAt"))

	raw := &RawUsage{}
	for _, pool := range []string{"specs", "vibes"} {
		bucket := gjson.GetBytes(body, pool)
		if !bucket.Exists() {
			continue
		}
		used := bucket.Get("used")
		limit := bucket.Get("limit")
		if !used.Exists() || !limit.Exists() {
			return nil, parseErr("kiro", pool+" pool missing used or limit")
		}
		raw.Windows = append(raw.Windows,
			countWindow(pool, used.Float(), limit.Float(), resets))
	}
	if len(raw.Windows) == 0 {
		return nil, parseErr("kiro", "no request pools in payload")
	}
	return raw, nil
}

func newOpencode() Provider {
	a := &adapter{
		identity: Identity{Key: "opencode", DisplayName: "OpenCode", IconKey: "opencode"},
		sources:  []usage.SourceKind{usage.SourceCli},
	}
	a.build = map[usage.SourceKind]buildFunc{
		usage.SourceCli: func(Credentials) (*Request, error) {
			return &Request{Binary: "opencode", Args: []string{"stats", "--json"}}, nil
		},
	}
	a.parse = map[usage.SourceKind]parseFunc{
		usage.SourceCli: parseOpencodeStats,
	}
	return a
}

// parseOpencodeStats treats stats output as a consumption-only session; the
// tool meters spend, not a hard quota.
func parseOpencodeStats(body []byte) (*RawUsage, error) {
	session := gjson.GetBytes(body, "session")
	if !session.Exists() {
		return nil, parseErr("opencode", "session stats missing from payload")
	}
	cost := session.Get("cost")
	if !cost.Exists() {
		return nil, parseErr("opencode", "session stats missing cost")
	}

	raw := &RawUsage{Session: &usage.SessionObservation{
		Used:      cost.Float(),
		StartedAt: tsFromRFC3339(session.Get("startedAt")),
	}}
	if limit := session.Get("budget"); limit.Exists() {
		b := limit.Float()
		raw.Session.Limit = &b
	}
	if today := gjson.GetBytes(body, "today"); today.Exists() {
		if limit := today.Get("requestLimit"); limit.Exists() {
			raw.Windows = append(raw.Windows,
				countWindow("daily", today.Get("requests").Float(), limit.Float(),
					tsFromRFC3339(today.Get("resetsAt"))))
		}
	}
	return raw, nil
}
