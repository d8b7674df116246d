package provider

import (
	"github.com/tidwall/gjson"

	"github.com/usagedeck/usagedeck/internal/usage"
)

const (
	geminiQuotaURL      = "https://cloudcode-pa.googleapis.com/v1internal:fetchUserQuota"
	antigravityQuotaURL = "https://cloudcode-pa.googleapis.com/v1internal:fetchAvailableModels"
)

func newGemini() Provider {
	a := &adapter{
		identity: Identity{Key: "gemini", DisplayName: "Gemini CLI", IconKey: "gemini"},
		sources:  []usage.SourceKind{usage.SourceOauth, usage.SourceCli},
	}
	a.build = map[usage.SourceKind]buildFunc{
		usage.SourceOauth: func(creds Credentials) (*Request, error) {
			return &Request{
				Method: "POST",
				URL:    geminiQuotaURL,
				Headers: map[string]string{
					"Authorization": "Bearer " + creds.Secret,
					"Content-Type":  "application/json",
				},
				Body: []byte(`{}`),
			}, nil
		},
		usage.SourceCli: func(Credentials) (*Request, error) {
			return &Request{Binary: "gemini", Args: []string{"stats", "--json"}}, nil
		},
	}
	a.parse = map[usage.SourceKind]parseFunc{
		usage.SourceOauth: parseGeminiQuota,
		usage.SourceCli:   parseGeminiQuota,
	}
	return a
}

// parseGeminiQuota reads remainingFraction/resetTime buckets. The payload
// reports what is left, so used is the complement scaled to percent.
func parseGeminiQuota(body []byte) (*RawUsage, error) {
	buckets := gjson.GetBytes(body, "buckets")
	if !buckets.Exists() || !buckets.IsArray() {
		// Single-bucket responses put the fields at the top level.
		frac := gjson.GetBytes(body, "remainingFraction")
		if !frac.Exists() {
			return nil, parseErr("gemini", "no quota buckets in payload")
		}
		raw := &RawUsage{Windows: []usage.WindowObservation{
			percentWindow("daily", (1-frac.Float())*100,
				tsFromRFC3339(gjson.GetBytes(body, "resetTime"))),
		}}
		return raw, nil
	}

	raw := &RawUsage{}
	buckets.ForEach(func(_, bucket gjson.Result) bool {
		frac := bucket.Get("remainingFraction")
		if !frac.Exists() {
			return true
		}
		label := bucket.Get("modelFamily").String()
		if label == "" {
			label = "daily"
		}
		raw.Windows = append(raw.Windows,
			percentWindow(label, (1-frac.Float())*100, tsFromRFC3339(bucket.Get("resetTime"))))
		return true
	})
	if len(raw.Windows) == 0 {
		return nil, parseErr("gemini", "quota buckets missing remainingFraction")
	}
	return raw, nil
}

func newAntigravity() Provider {
	a := &adapter{
		identity: Identity{Key: "antigravity", DisplayName: "Antigravity", IconKey: "antigravity"},
		sources:  []usage.SourceKind{usage.SourceOauth},
	}
	a.build = map[usage.SourceKind]buildFunc{
		usage.SourceOauth: func(creds Credentials) (*Request, error) {
			return &Request{
				Method: "POST",
				URL:    antigravityQuotaURL,
				Headers: map[string]string{
					"Authorization": "Bearer " + creds.Secret,
					"Content-Type":  "application/json",
				},
				Body: []byte(`{}`),
			}, nil
		},
	}
	a.parse = map[usage.SourceKind]parseFunc{
		usage.SourceOauth: parseAntigravityModels,
	}
	return a
}

// parseAntigravityModels walks the model list and emits one window per model
// that carries quotaInfo, deduplicating by display label.
func parseAntigravityModels(body []byte) (*RawUsage, error) {
	models := gjson.GetBytes(body, "models")
	if !models.Exists() {
		return nil, parseErr("antigravity", "models missing from payload")
	}

	raw := &RawUsage{}
	seen := map[string]bool{}
	models.ForEach(func(key, model gjson.Result) bool {
		quota := model.Get("quotaInfo")
		if !quota.Exists() {
			return true
		}
		label := model.Get("displayName").String()
		if label == "" {
			label = key.String()
		}
		if label == "" || seen[label] {
			return true
		}
		seen[label] = true
		frac := quota.Get("remainingFraction").Float()
		raw.Windows = append(raw.Windows,
			percentWindow(label, (1-frac)*100, tsFromRFC3339(quota.Get("resetTime"))))
		return true
	})
	if len(raw.Windows) == 0 {
		return nil, parseErr("antigravity", "no models carry quotaInfo")
	}
	return raw, nil
}
