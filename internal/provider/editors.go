package provider

import (
	"time"

	"github.com/tidwall/gjson"

	"github.com/usagedeck/usagedeck/internal/usage"
)

const (
	cursorUsageURL   = "https://cursor.com/api/usage"
	windsurfUsageURL = "https://windsurf.com/api/usage"
	augmentUsageURL  = "https://app.augmentcode.com/api/credits"
	ampUsageURL      = "https://ampcode.com/api/usage"
)

func newCursor() Provider {
	a := &adapter{
		identity: Identity{Key: "cursor", DisplayName: "Cursor", IconKey: "cursor"},
		sources:  []usage.SourceKind{usage.SourceWeb},
		cookies:  &CookieSpec{Domain: "cursor.com", Names: []string{"WorkosCursorSessionToken"}},
	}
	a.build = map[usage.SourceKind]buildFunc{
		usage.SourceWeb: func(creds Credentials) (*Request, error) {
			return &Request{
				Method:  "GET",
				URL:     cursorUsageURL,
				Headers: map[string]string{"Cookie": cookieHeader(creds.Cookies)},
			}, nil
		},
	}
	a.parse = map[usage.SourceKind]parseFunc{
		usage.SourceWeb: parseCursorUsage,
	}
	return a
}

// parseCursorUsage reads the premium request counters keyed by model tier.
// The billing cycle is a calendar month anchored at startOfMonth.
func parseCursorUsage(body []byte) (*RawUsage, error) {
	premium := gjson.GetBytes(body, "gpt-4")
	if !premium.Exists() {
		return nil, parseErr("cursor", "premium usage counters missing from payload")
	}
	requests := premium.Get("numRequests")
	max := premium.Get("maxRequestUsage")
	if !requests.Exists() || !max.Exists() {
		return nil, parseErr("cursor", "premium counters missing numRequests or maxRequestUsage")
	}

	resetsAt := time.Time{}
	if start := tsFromRFC3339(gjson.GetBytes(body, "startOfMonth")); !start.IsZero() {
		resetsAt = start.AddDate(0, 1, 0)
	}
	return &RawUsage{Windows: []usage.WindowObservation{
		countWindow("monthly", requests.Float(), max.Float(), resetsAt),
	}}, nil
}

func newWindsurf() Provider {
	a := &adapter{
		identity: Identity{Key: "windsurf", DisplayName: "Windsurf", IconKey: "windsurf"},
		sources:  []usage.SourceKind{usage.SourceWeb},
		cookies:  &CookieSpec{Domain: "windsurf.com", Names: []string{"_session"}},
	}
	a.build = map[usage.SourceKind]buildFunc{
		usage.SourceWeb: func(creds Credentials) (*Request, error) {
			return &Request{
				Method:  "GET",
				URL:     windsurfUsageURL,
				Headers: map[string]string{"Cookie": cookieHeader(creds.Cookies)},
			}, nil
		},
	}
	a.parse = map[usage.SourceKind]parseFunc{
		usage.SourceWeb: parseWindsurfCredits,
	}
	return a
}

func parseWindsurfCredits(body []byte) (*RawUsage, error) {
	credits := gjson.GetBytes(body, "credits")
	if !credits.Exists() {
		return nil, parseErr("windsurf", "credits missing from payload")
	}
	used := credits.Get("used")
	limit := credits.Get("limit")
	if !used.Exists() || !limit.Exists() {
		return nil, parseErr("windsurf", "credits missing used or limit")
	}
	return &RawUsage{Windows: []usage.WindowObservation{
		countWindow("monthly", used.Float(), limit.Float(),
			tsFromRFC3339(credits.Get("resetsAt"))),
	}}, nil
}

func newAugment() Provider {
	a := &adapter{
		identity: Identity{Key: "augment", DisplayName: "Augment", IconKey: "augment"},
		sources:  []usage.SourceKind{usage.SourceWeb},
		cookies:  &CookieSpec{Domain: "app.augmentcode.com", Names: []string{"_session"}},
	}
	a.build = map[usage.SourceKind]buildFunc{
		usage.SourceWeb: func(creds Credentials) (*Request, error) {
			return &Request{
				Method:  "GET",
				URL:     augmentUsageURL,
				Headers: map[string]string{"Cookie": cookieHeader(creds.Cookies)},
			}, nil
		},
	}
	a.parse = map[usage.SourceKind]parseFunc{
		usage.SourceWeb: parseAugmentCredits,
	}
	return a
}

func parseAugmentCredits(body []byte) (*RawUsage, error) {
	used := gjson.GetBytes(body, "usageUnitsUsedThisBillingCycle")
	included := gjson.GetBytes(body, "creditsIncludedThisBillingCycle")
	if !used.Exists() || !included.Exists() {
		return nil, parseErr("augment", "billing cycle counters missing from payload")
	}
	return &RawUsage{Windows: []usage.WindowObservation{
		countWindow("cycle", used.Float(), included.Float(),
			tsFromRFC3339(gjson.GetBytes(body, "billingPeriodEnd"))),
	}}, nil
}

func newAmp() Provider {
	a := &adapter{
		identity: Identity{Key: "amp", DisplayName: "Amp", IconKey: "amp"},
		sources:  []usage.SourceKind{usage.SourceCli, usage.SourceWeb},
		cookies:  &CookieSpec{Domain: "ampcode.com", Names: []string{"session"}},
	}
	a.build = map[usage.SourceKind]buildFunc{
		usage.SourceWeb: func(creds Credentials) (*Request, error) {
			return &Request{
				Method:  "GET",
				URL:     ampUsageURL,
				Headers: map[string]string{"Cookie": cookieHeader(creds.Cookies)},
			}, nil
		},
		usage.SourceCli: func(Credentials) (*Request, error) {
			return &Request{Binary: "amp", Args: []string{"usage", "--json"}}, nil
		},
	}
	a.parse = map[usage.SourceKind]parseFunc{
		usage.SourceWeb: parseAmpBalance,
		usage.SourceCli: parseAmpBalance,
	}
	return a
}

// parseAmpBalance derives consumption from the credit grant and what is
// left of it.
func parseAmpBalance(body []byte) (*RawUsage, error) {
	balance := gjson.GetBytes(body, "balance")
	grant := gjson.GetBytes(body, "grantTotal")
	if !balance.Exists() || !grant.Exists() {
		return nil, parseErr("amp", "balance or grantTotal missing from payload")
	}
	used := grant.Float() - balance.Float()
	return &RawUsage{Windows: []usage.WindowObservation{
		countWindow("credits", used, grant.Float(),
			tsFromRFC3339(gjson.GetBytes(body, "renewsAt"))),
	}}, nil
}
