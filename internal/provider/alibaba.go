package provider

import (
	"time"

	"github.com/tidwall/gjson"

	"github.com/usagedeck/usagedeck/internal/usage"
)

const (
	qwenQuotaURL = "https://portal.qwen.ai/v1/quota"
	zaiQuotaURL  = "https://api.z.ai/api/monitor/usage/quota/limit"
)

func newQwen() Provider {
	a := &adapter{
		identity: Identity{Key: "qwen", DisplayName: "Qwen Code", IconKey: "qwen"},
		sources:  []usage.SourceKind{usage.SourceOauth, usage.SourceCli},
	}
	a.build = map[usage.SourceKind]buildFunc{
		usage.SourceOauth: func(creds Credentials) (*Request, error) {
			return &Request{
				Method:  "GET",
				URL:     qwenQuotaURL,
				Headers: map[string]string{"Authorization": "Bearer " + creds.Secret},
			}, nil
		},
		usage.SourceCli: func(Credentials) (*Request, error) {
			return &Request{Binary: "qwen", Args: []string{"usage", "--json"}}, nil
		},
	}
	a.parse = map[usage.SourceKind]parseFunc{
		usage.SourceOauth: parseQwenQuota,
		usage.SourceCli:   parseQwenQuota,
	}
	return a
}

func parseQwenQuota(body []byte) (*RawUsage, error) {
	daily := gjson.GetBytes(body, "dailyQuota")
	if !daily.Exists() {
		return nil, parseErr("qwen", "dailyQuota missing from payload")
	}
	used := daily.Get("used")
	limit := daily.Get("limit")
	if !used.Exists() || !limit.Exists() {
		return nil, parseErr("qwen", "dailyQuota missing used or limit")
	}
	return &RawUsage{Windows: []usage.WindowObservation{
		countWindow("daily", used.Float(), limit.Float(),
			tsFromRFC3339(daily.Get("resetAt"))),
	}}, nil
}

func newZai() Provider {
	a := &adapter{
		identity: Identity{Key: "zai", DisplayName: "Z.AI", IconKey: "zai"},
		sources:  []usage.SourceKind{usage.SourceOauth},
	}
	a.build = map[usage.SourceKind]buildFunc{
		usage.SourceOauth: func(creds Credentials) (*Request, error) {
			return &Request{
				Method:  "GET",
				URL:     zaiQuotaURL,
				Headers: map[string]string{"Authorization": "Bearer " + creds.Secret},
			}, nil
		},
	}
	a.parse = map[usage.SourceKind]parseFunc{
		usage.SourceOauth: parseZaiQuota,
	}
	return a
}

// parseZaiQuota unwraps the monitor envelope; data carries the rolling
// five-hour prompt quota and refresh time in unix milliseconds.
func parseZaiQuota(body []byte) (*RawUsage, error) {
	if success := gjson.GetBytes(body, "success"); success.Exists() && !success.Bool() {
		return nil, parseErr("zai", "monitor endpoint reported failure")
	}
	data := gjson.GetBytes(body, "data")
	if !data.Exists() {
		return nil, parseErr("zai", "data missing from payload")
	}
	used := data.Get("usage")
	limit := data.Get("limit")
	if !used.Exists() || !limit.Exists() {
		return nil, parseErr("zai", "data missing usage or limit")
	}

	resetsAt := time.Time{}
	if refresh := data.Get("refreshTime"); refresh.Exists() && refresh.Int() > 0 {
		resetsAt = time.UnixMilli(refresh.Int()).UTC()
	}
	obs := countWindow("5h", used.Float(), limit.Float(), resetsAt)
	return &RawUsage{Windows: []usage.WindowObservation{obs}}, nil
}
