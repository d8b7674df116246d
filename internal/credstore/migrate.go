package credstore

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// legacyRecord is the single-credential-per-provider shape written by old
// releases: either a bare secret string or a small object. Understood only by
// the migration step and never written back.
type legacyRecord struct {
	Kind       string `json:"kind,omitempty"`
	Secret     string `json:"secret,omitempty"`
	Token      string `json:"token,omitempty"`
	ObtainedAt string `json:"obtained_at,omitempty"`
}

// migrateLegacy converts a legacy flat provider->secret layout into the
// multi-account layout. Each provider gets a single "default" account.
func migrateLegacy(data []byte) (map[string]*providerAccounts, error) {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("unrecognized credential layout: %w", err)
	}

	providers := make(map[string]*providerAccounts, len(flat))
	for provider, raw := range flat {
		rec, ok := legacyToRecord(raw)
		if !ok {
			continue
		}
		rec.Label = "default"
		providers[provider] = &providerAccounts{
			Active:  rec.Label,
			Records: []Record{rec},
		}
	}
	return providers, nil
}

func legacyToRecord(raw json.RawMessage) (Record, bool) {
	var secret string
	if err := json.Unmarshal(raw, &secret); err == nil {
		if strings.TrimSpace(secret) == "" {
			return Record{}, false
		}
		return Record{Kind: inferKind(secret), Secret: secret, ObtainedAt: time.Now().UTC()}, true
	}

	var legacy legacyRecord
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return Record{}, false
	}
	secret = legacy.Secret
	if secret == "" {
		secret = legacy.Token
	}
	if strings.TrimSpace(secret) == "" {
		return Record{}, false
	}

	rec := Record{Secret: secret, ObtainedAt: time.Now().UTC()}
	if legacy.Kind != "" {
		rec.Kind = Kind(legacy.Kind)
	} else {
		rec.Kind = inferKind(secret)
	}
	if legacy.ObtainedAt != "" {
		if at, err := time.Parse(time.RFC3339, legacy.ObtainedAt); err == nil {
			rec.ObtainedAt = at
		}
	}
	return rec, true
}

func inferKind(secret string) Kind {
	switch {
	case strings.HasPrefix(secret, "sk-") || strings.HasPrefix(secret, "AIza"):
		return KindAPIKey
	case strings.Contains(secret, "="):
		return KindCookie
	default:
		return KindToken
	}
}
