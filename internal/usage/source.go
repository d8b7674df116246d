package usage

// SourceKind identifies the channel a usage figure was obtained through.
type SourceKind string

const (
	// SourceOauth is an authenticated API call using a stored token.
	SourceOauth SourceKind = "oauth"
	// SourceCli is a locally installed tool's own usage report.
	SourceCli SourceKind = "cli"
	// SourceWeb is a dashboard scrape using a browser session cookie.
	SourceWeb SourceKind = "web"
)

// Preference is a user-requested source restriction for a fetch.
type Preference string

const (
	PreferAuto  Preference = "auto"
	PreferOauth Preference = Preference(SourceOauth)
	PreferCli   Preference = Preference(SourceCli)
	PreferWeb   Preference = Preference(SourceWeb)
)

// AutoOrder is the fixed fallback priority used when the preference is auto.
// OAuth and CLI reports are less brittle than dashboard scraping.
var AutoOrder = []SourceKind{SourceOauth, SourceCli, SourceWeb}

// Valid reports whether p names a known preference.
func (p Preference) Valid() bool {
	switch p {
	case PreferAuto, PreferOauth, PreferCli, PreferWeb:
		return true
	}
	return false
}
