// Package fetchplan orchestrates usage acquisition for one provider: it
// expands a source preference into an attempt sequence, resolves credentials,
// executes each attempt, and normalizes the first successful payload into a
// snapshot. The first source to succeed wins; later sources are not tried.
package fetchplan

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"github.com/usagedeck/usagedeck/internal/browser"
	"github.com/usagedeck/usagedeck/internal/credstore"
	"github.com/usagedeck/usagedeck/internal/errors"
	"github.com/usagedeck/usagedeck/internal/logging"
	"github.com/usagedeck/usagedeck/internal/provider"
	"github.com/usagedeck/usagedeck/internal/usage"
	"github.com/usagedeck/usagedeck/internal/watchdog"
	"github.com/usagedeck/usagedeck/pkg/headers"
)

const (
	maxResponseBytes  = 2 << 20
	lockRetryDelay    = 250 * time.Millisecond
	defaultWebBudget  = 30 * time.Second
	defaultCLIBudget  = 30 * time.Second
	defaultHTTPBudget = 15 * time.Second
)

// CredentialSource resolves stored credentials. Records are copied out
// before any I/O begins so a concurrent account switch cannot change the
// credentials of an attempt already in flight.
type CredentialSource interface {
	Active(provider string) (credstore.Record, bool)
	Get(provider, label string) (credstore.Record, bool)
}

// CookieSource extracts browser session cookies for web attempts.
type CookieSource interface {
	Extract(b browser.Browser, domain string, names []string) (*browser.CookieBundle, error)
}

// Doer executes HTTP requests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Planner executes fetches. It is safe for concurrent use across providers;
// web attempts for the same provider are single-flighted by the watchdog.
type Planner struct {
	creds   CredentialSource
	cookies CookieSource
	http    Doer
	cli     CommandRunner
	dog     *watchdog.Watchdog
	logger  *logging.Logger
	now     func() time.Time
	lookup  func(key string) (provider.Provider, bool)

	// lockDelay is the wait before the single locked-cookie-store retry.
	lockDelay time.Duration

	// cliBudget and httpBudget bound each cli/oauth attempt so a stuck
	// binary or endpoint can never hang a sweep; web attempts are bounded
	// by the watchdog instead.
	cliBudget  time.Duration
	httpBudget time.Duration
}

// Option configures a Planner.
type Option func(*Planner)

// WithCredentials sets the credential source.
func WithCredentials(c CredentialSource) Option {
	return func(p *Planner) { p.creds = c }
}

// WithCookies sets the browser cookie source.
func WithCookies(c CookieSource) Option {
	return func(p *Planner) { p.cookies = c }
}

// WithHTTP sets the HTTP client.
func WithHTTP(d Doer) Option {
	return func(p *Planner) { p.http = d }
}

// WithRunner sets the CLI command runner.
func WithRunner(r CommandRunner) Option {
	return func(p *Planner) { p.cli = r }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Planner) { p.logger = l }
}

// WithLookup overrides provider resolution, used by tests.
func WithLookup(fn func(key string) (provider.Provider, bool)) Option {
	return func(p *Planner) { p.lookup = fn }
}

// WithLockRetryDelay overrides the locked-store retry backoff.
func WithLockRetryDelay(d time.Duration) Option {
	return func(p *Planner) { p.lockDelay = d }
}

// WithCLIBudget overrides the per-attempt timeout for cli sources.
func WithCLIBudget(d time.Duration) Option {
	return func(p *Planner) {
		if d > 0 {
			p.cliBudget = d
		}
	}
}

// WithHTTPBudget overrides the per-attempt timeout for oauth sources.
func WithHTTPBudget(d time.Duration) Option {
	return func(p *Planner) {
		if d > 0 {
			p.httpBudget = d
		}
	}
}

// NewPlanner creates a planner. Credentials, cookies, HTTP and CLI
// collaborators default to nil and must be supplied for the sources that
// need them; a missing collaborator makes those sources unavailable.
func NewPlanner(opts ...Option) *Planner {
	p := &Planner{
		dog:        watchdog.New(),
		logger:     logging.NewLogger(),
		now:        time.Now,
		lookup:     provider.Lookup,
		lockDelay:  lockRetryDelay,
		cliBudget:  defaultCLIBudget,
		httpBudget: defaultHTTPBudget,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FetchRequest describes one usage fetch. PrevSession carries the session
// state from the provider's previous snapshot so the session start survives
// polls that report consumption without a boundary signal.
type FetchRequest struct {
	Provider     string
	Preference   usage.Preference
	AccountLabel string
	Browser      browser.Browser
	WebBudget    time.Duration
	PrevSession  *usage.SessionQuotaState
}

// Fetch acquires usage for one provider. The attempt slice records every
// source tried, in order, whether or not the fetch succeeded. On total
// failure the returned error is an *AggregateError carrying the same
// attempts.
func (p *Planner) Fetch(ctx context.Context, req FetchRequest) (*usage.Snapshot, []Attempt, error) {
	prov, ok := p.lookup(req.Provider)
	if !ok {
		return nil, nil, fmt.Errorf("unknown provider %q", req.Provider)
	}

	pref := req.Preference
	if pref == "" {
		pref = usage.PreferAuto
	}
	if !pref.Valid() {
		return nil, nil, fmt.Errorf("invalid source preference %q", pref)
	}

	order, err := expandPreference(prov, pref)
	if err != nil {
		return nil, nil, err
	}

	var attempts []Attempt
	for _, source := range order {
		if ctx.Err() != nil {
			attempts = append(attempts, Attempt{
				ID:      uuid.NewString(),
				Source:  source,
				Outcome: OutcomeCancelled,
				Err:     ctx.Err(),
			})
			break
		}

		attempt, raw := p.attempt(ctx, prov, source, req)
		attempts = append(attempts, attempt)

		if attempt.Outcome == OutcomeSuccess {
			snap := p.normalize(prov, source, req, raw)
			p.logger.InfoWithContext(ctx, "usage fetch succeeded",
				"provider", req.Provider, "source", string(source),
				"attempt_id", attempt.ID)
			return snap, attempts, nil
		}

		p.logger.WarnWithContext(ctx, "source attempt failed",
			"provider", req.Provider, "source", string(source),
			"outcome", string(attempt.Outcome), "attempt_id", attempt.ID)

		// A probe already in flight owns this provider; falling through to
		// other sources would race it.
		var busy *errors.ErrAlreadyRunning
		if stderrors.As(attempt.Err, &busy) {
			break
		}
	}
	return nil, attempts, &AggregateError{Provider: req.Provider, Attempts: attempts}
}

// expandPreference maps a preference onto the provider's supported sources.
// Auto follows the fixed fallback order; an explicit preference is a single
// attempt with no fallback.
func expandPreference(prov provider.Provider, pref usage.Preference) ([]usage.SourceKind, error) {
	supported := make(map[usage.SourceKind]bool)
	for _, s := range prov.Sources() {
		supported[s] = true
	}

	if pref == usage.PreferAuto {
		var order []usage.SourceKind
		for _, s := range usage.AutoOrder {
			if supported[s] {
				order = append(order, s)
			}
		}
		if len(order) == 0 {
			return nil, fmt.Errorf("provider %s declares no sources", prov.Identity().Key)
		}
		return order, nil
	}

	source := usage.SourceKind(pref)
	if !supported[source] {
		return nil, &errors.ErrUnsupportedSource{
			Provider: prov.Identity().Key,
			Source:   string(source),
		}
	}
	return []usage.SourceKind{source}, nil
}

// attempt runs one source try end to end and classifies the outcome.
func (p *Planner) attempt(ctx context.Context, prov provider.Provider, source usage.SourceKind, req FetchRequest) (Attempt, *provider.RawUsage) {
	attempt := Attempt{ID: uuid.NewString(), Source: source}
	started := p.now()
	defer func() { attempt.Elapsed = p.now().Sub(started) }()

	creds, outcome, err := p.resolveCredentials(prov, source, req)
	if outcome != OutcomeSuccess {
		attempt.Outcome = outcome
		attempt.Err = err
		return attempt, nil
	}

	provReq, err := prov.BuildRequest(source, creds)
	if err != nil {
		attempt.Outcome = OutcomeSourceUnavailable
		attempt.Err = err
		return attempt, nil
	}

	var body []byte
	var respHeader http.Header
	switch source {
	case usage.SourceCli:
		cliCtx, cancel := context.WithTimeout(ctx, p.cliBudget)
		body, outcome, err = p.runCLI(cliCtx, provReq)
		cancel()
	case usage.SourceWeb:
		body, outcome, attempt.Extended, err = p.runWeb(ctx, prov.Identity().Key, provReq, req.WebBudget)
	default:
		httpCtx, cancel := context.WithTimeout(ctx, p.httpBudget)
		body, respHeader, outcome, err = p.runHTTP(httpCtx, prov.Identity().Key, provReq)
		cancel()
	}
	if outcome != OutcomeSuccess {
		attempt.Outcome = outcome
		attempt.Err = err
		return attempt, nil
	}

	raw, err := prov.ParseResponse(source, body)
	if err != nil {
		attempt.Outcome = OutcomeParseFailure
		attempt.Err = err
		return attempt, nil
	}

	// Some endpoints report their quota figures in rate-limit headers
	// rather than the body; use them when the body parse came back empty.
	if len(raw.Windows) == 0 && respHeader != nil {
		raw.Windows = headers.Windows(respHeader, p.now())
	}

	attempt.Outcome = OutcomeSuccess
	return attempt, raw
}

// resolveCredentials copies the secret material an attempt needs before any
// I/O starts. Missing material makes the source unavailable, not failed.
func (p *Planner) resolveCredentials(prov provider.Provider, source usage.SourceKind, req FetchRequest) (provider.Credentials, OutcomeKind, error) {
	switch source {
	case usage.SourceOauth:
		if p.creds == nil {
			return provider.Credentials{}, OutcomeSourceUnavailable,
				fmt.Errorf("no credential store configured")
		}
		var rec credstore.Record
		var ok bool
		if req.AccountLabel != "" {
			rec, ok = p.creds.Get(req.Provider, req.AccountLabel)
		} else {
			rec, ok = p.creds.Active(req.Provider)
		}
		if !ok {
			return provider.Credentials{}, OutcomeSourceUnavailable,
				&errors.ErrUnknownAccount{Provider: req.Provider, Label: req.AccountLabel}
		}
		if rec.Expired(p.now()) {
			return provider.Credentials{}, OutcomeAuthFailure,
				fmt.Errorf("stored credential for %s expired", req.Provider)
		}
		return provider.Credentials{Secret: rec.Secret}, OutcomeSuccess, nil

	case usage.SourceWeb:
		spec, ok := prov.CookieSpec()
		if !ok {
			return provider.Credentials{}, OutcomeSourceUnavailable,
				&errors.ErrUnsupportedSource{Provider: req.Provider, Source: string(source)}
		}
		if p.cookies == nil {
			return provider.Credentials{}, OutcomeSourceUnavailable,
				fmt.Errorf("no cookie source configured")
		}
		bundle, err := p.extractCookies(req.Browser, spec)
		if err != nil {
			return provider.Credentials{}, OutcomeSourceUnavailable, err
		}
		values := make(map[string]string, len(bundle.Values))
		for name, value := range bundle.Values {
			values[name] = value
		}
		bundle.Wipe()
		if len(values) == 0 {
			return provider.Credentials{}, OutcomeSourceUnavailable,
				fmt.Errorf("no %s session cookies found for %s", spec.Domain, req.Provider)
		}
		return provider.Credentials{Cookies: values}, OutcomeSuccess, nil

	default:
		// CLI tools hold their own credentials.
		return provider.Credentials{}, OutcomeSuccess, nil
	}
}

// extractCookies retries exactly once when the browser holds the store lock;
// a momentary lock during a browser write is common and transient.
func (p *Planner) extractCookies(b browser.Browser, spec provider.CookieSpec) (*browser.CookieBundle, error) {
	if b == "" {
		b = browser.Chrome
	}
	bundle, err := p.cookies.Extract(b, spec.Domain, spec.Names)
	var locked *errors.ErrStoreLocked
	if stderrors.As(err, &locked) {
		time.Sleep(p.lockDelay)
		bundle, err = p.cookies.Extract(b, spec.Domain, spec.Names)
	}
	return bundle, err
}

func (p *Planner) runHTTP(ctx context.Context, providerKey string, provReq *provider.Request) ([]byte, http.Header, OutcomeKind, error) {
	if p.http == nil {
		return nil, nil, OutcomeSourceUnavailable, fmt.Errorf("no http client configured")
	}

	var bodyReader io.Reader
	if len(provReq.Body) > 0 {
		bodyReader = bytes.NewReader(provReq.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, provReq.Method, provReq.URL, bodyReader)
	if err != nil {
		return nil, nil, OutcomeSourceUnavailable, err
	}
	for name, value := range provReq.Headers {
		httpReq.Header.Set(name, value)
	}

	resp, err := p.http.Do(httpReq)
	if err != nil {
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, nil, OutcomeTimeout, ctx.Err()
		}
		if ctx.Err() != nil {
			return nil, nil, OutcomeCancelled, ctx.Err()
		}
		return nil, nil, OutcomeSourceUnavailable, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, nil, OutcomeAuthFailure, &errors.ErrAuthRejected{Provider: providerKey, Status: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, nil, OutcomeSourceUnavailable, fmt.Errorf("provider %s returned status %d", providerKey, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, OutcomeSourceUnavailable, err
	}
	return body, resp.Header, OutcomeSuccess, nil
}

// runWeb supervises the HTTP scrape under the watchdog; the probe reports
// progress once response headers arrive, which can earn the one soft
// deadline extension.
func (p *Planner) runWeb(ctx context.Context, providerKey string, provReq *provider.Request, budget time.Duration) ([]byte, OutcomeKind, bool, error) {
	if budget <= 0 {
		budget = defaultWebBudget
	}

	var body []byte
	var outcome OutcomeKind
	var attemptErr error

	result, err := p.dog.Run(ctx, providerKey, budget, func(probeCtx context.Context, progress func()) error {
		if p.http == nil {
			outcome = OutcomeSourceUnavailable
			attemptErr = fmt.Errorf("no http client configured")
			return attemptErr
		}
		var bodyReader io.Reader
		if len(provReq.Body) > 0 {
			bodyReader = bytes.NewReader(provReq.Body)
		}
		httpReq, reqErr := http.NewRequestWithContext(probeCtx, provReq.Method, provReq.URL, bodyReader)
		if reqErr != nil {
			outcome = OutcomeSourceUnavailable
			attemptErr = reqErr
			return reqErr
		}
		for name, value := range provReq.Headers {
			httpReq.Header.Set(name, value)
		}

		resp, doErr := p.http.Do(httpReq)
		if doErr != nil {
			outcome = OutcomeSourceUnavailable
			attemptErr = doErr
			return doErr
		}
		defer resp.Body.Close()
		progress()

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			outcome = OutcomeAuthFailure
			attemptErr = &errors.ErrAuthRejected{Provider: providerKey, Status: resp.StatusCode}
			return attemptErr
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			outcome = OutcomeSourceUnavailable
			attemptErr = fmt.Errorf("provider %s returned status %d", providerKey, resp.StatusCode)
			return attemptErr
		}

		data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if readErr != nil {
			outcome = OutcomeSourceUnavailable
			attemptErr = readErr
			return readErr
		}
		body = data
		outcome = OutcomeSuccess
		return nil
	})

	switch result.State {
	case watchdog.StateTimedOut:
		return nil, OutcomeTimeout, result.Extended, err
	case watchdog.StateCancelled:
		return nil, OutcomeCancelled, result.Extended, err
	}
	if err != nil {
		var busy *errors.ErrAlreadyRunning
		if stderrors.As(err, &busy) {
			return nil, OutcomeSourceUnavailable, result.Extended, err
		}
		if outcome == "" || outcome == OutcomeSuccess {
			outcome = OutcomeSourceUnavailable
		}
		return nil, outcome, result.Extended, attemptErr
	}
	return body, OutcomeSuccess, result.Extended, nil
}

func (p *Planner) runCLI(ctx context.Context, provReq *provider.Request) ([]byte, OutcomeKind, error) {
	if p.cli == nil {
		return nil, OutcomeSourceUnavailable, fmt.Errorf("no command runner configured")
	}

	out, err := p.cli.Run(ctx, provReq.Binary, provReq.Args)
	if err != nil {
		switch {
		case stderrors.Is(err, exec.ErrNotFound):
			return nil, OutcomeSourceUnavailable, err
		case stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded):
			return nil, OutcomeTimeout, err
		case stderrors.Is(err, context.Canceled) || stderrors.Is(ctx.Err(), context.Canceled):
			return nil, OutcomeCancelled, err
		}
		return nil, OutcomeSourceUnavailable, err
	}
	return out, OutcomeSuccess, nil
}

// normalize folds the raw payload into an immutable snapshot.
func (p *Planner) normalize(prov provider.Provider, source usage.SourceKind, req FetchRequest, raw *provider.RawUsage) *usage.Snapshot {
	now := p.now()
	label := req.AccountLabel
	if label == "" && p.creds != nil {
		if rec, ok := p.creds.Active(req.Provider); ok {
			label = rec.Label
		}
	}

	snap := &usage.Snapshot{
		ProviderKey:  prov.Identity().Key,
		AccountLabel: label,
		Source:       source,
		Windows:      usage.NormalizeWindows(raw.Windows),
		Session:      usage.ApplySession(req.PrevSession, raw.Session, now),
		FetchedAt:    now,
	}
	return snap
}
