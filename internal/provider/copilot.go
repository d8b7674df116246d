package provider

import (
	"time"

	"github.com/tidwall/gjson"

	"github.com/usagedeck/usagedeck/internal/usage"
)

const copilotUserURL = "https://api.github.com/copilot_internal/user"

func newCopilot() Provider {
	a := &adapter{
		identity: Identity{Key: "copilot", DisplayName: "GitHub Copilot", IconKey: "copilot"},
		sources:  []usage.SourceKind{usage.SourceOauth},
	}
	a.build = map[usage.SourceKind]buildFunc{
		usage.SourceOauth: func(creds Credentials) (*Request, error) {
			return &Request{
				Method: "GET",
				URL:    copilotUserURL,
				Headers: map[string]string{
					"Authorization":         "token " + creds.Secret,
					"Editor-Version":        "vscode/1.96.0",
					"Editor-Plugin-Version": "copilot/1.250.0",
				},
			}, nil
		},
	}
	a.parse = map[usage.SourceKind]parseFunc{
		usage.SourceOauth: parseCopilotSnapshots,
	}
	return a
}

// parseCopilotSnapshots reads quota_snapshots entitlement/remaining counts.
// Unlimited snapshots are skipped; they carry no exhaustible window.
func parseCopilotSnapshots(body []byte) (*RawUsage, error) {
	snapshots := gjson.GetBytes(body, "quota_snapshots")
	if !snapshots.Exists() {
		return nil, parseErr("copilot", "quota_snapshots missing from payload")
	}

	resetsAt := time.Time{}
	if reset := gjson.GetBytes(body, "quota_reset_date"); reset.Exists() {
		if ts, err := time.Parse("2006-01-02", reset.String()); err == nil {
			resetsAt = ts.UTC()
		}
	}

	raw := &RawUsage{}
	snapshots.ForEach(func(key, snap gjson.Result) bool {
		if snap.Get("unlimited").Bool() {
			return true
		}
		entitlement := snap.Get("entitlement")
		remaining := snap.Get("remaining")
		if !entitlement.Exists() || !remaining.Exists() {
			return true
		}
		used := entitlement.Float() - remaining.Float()
		raw.Windows = append(raw.Windows,
			countWindow(key.String(), used, entitlement.Float(), resetsAt))
		return true
	})
	if len(raw.Windows) == 0 {
		return nil, parseErr("copilot", "no metered quota snapshots in payload")
	}
	return raw, nil
}
