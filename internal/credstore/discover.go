package credstore

import (
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/gjson"
)

// authProbe knows where one locally installed assistant CLI keeps its own
// OAuth credentials and how to pull a usable token out of that file.
type authProbe struct {
	provider string
	relPath  string
	extract  func(data []byte) (secret string, expiresAt *time.Time)
}

// ImportedLabel marks records created by auto-discovery so manual accounts
// are never clobbered.
const ImportedLabel = "imported"

var authProbes = []authProbe{
	{
		provider: "claude",
		relPath:  ".claude/.credentials.json",
		extract: func(data []byte) (string, *time.Time) {
			oauth := gjson.GetBytes(data, "claudeAiOauth")
			return oauth.Get("accessToken").String(), msExpiry(oauth.Get("expiresAt"))
		},
	},
	{
		provider: "codex",
		relPath:  ".codex/auth.json",
		extract: func(data []byte) (string, *time.Time) {
			if token := gjson.GetBytes(data, "tokens.access_token").String(); token != "" {
				return token, nil
			}
			return gjson.GetBytes(data, "OPENAI_API_KEY").String(), nil
		},
	},
	{
		provider: "gemini",
		relPath:  ".gemini/oauth_creds.json",
		extract: func(data []byte) (string, *time.Time) {
			return gjson.GetBytes(data, "access_token").String(),
				msExpiry(gjson.GetBytes(data, "expiry_date"))
		},
	},
	{
		provider: "qwen",
		relPath:  ".qwen/oauth_creds.json",
		extract: func(data []byte) (string, *time.Time) {
			return gjson.GetBytes(data, "access_token").String(),
				msExpiry(gjson.GetBytes(data, "expiry_date"))
		},
	},
}

func msExpiry(value gjson.Result) *time.Time {
	if value.Int() <= 0 {
		return nil
	}
	t := time.UnixMilli(value.Int()).UTC()
	return &t
}

// Importer discovers credentials written by locally installed assistant
// CLIs and mirrors them into the store under the "imported" label.
type Importer struct {
	store *Store
	home  string
}

// NewImporter creates an importer rooted at the user's home directory.
func NewImporter(store *Store) *Importer {
	home, _ := os.UserHomeDir()
	return &Importer{store: store, home: home}
}

// SetHome overrides the scan root, used by tests.
func (im *Importer) SetHome(home string) {
	im.home = home
}

// ImportAll scans every known auth file and upserts discovered tokens.
// Unreadable or unrecognized files are skipped: discovery is opportunistic
// and must never fail a startup.
func (im *Importer) ImportAll() (newCount, updatedCount int, err error) {
	if im.home == "" {
		return 0, 0, nil
	}

	for _, probe := range authProbes {
		data, readErr := os.ReadFile(filepath.Join(im.home, probe.relPath))
		if readErr != nil {
			continue
		}
		secret, expiresAt := probe.extract(data)
		if secret == "" {
			continue
		}

		prev, existed := im.store.Get(probe.provider, ImportedLabel)
		if existed && prev.Secret == secret {
			continue
		}

		rec := Record{
			Provider:  probe.provider,
			Label:     ImportedLabel,
			Kind:      KindToken,
			Secret:    secret,
			ExpiresAt: expiresAt,
		}
		if upsertErr := im.store.Upsert(rec); upsertErr != nil {
			err = upsertErr
			continue
		}
		if existed {
			updatedCount++
		} else {
			newCount++
		}
	}
	return newCount, updatedCount, err
}
