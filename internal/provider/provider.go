// Package provider defines the capability interface for AI coding-assistant
// providers and a closed registry of adapters. Adapters are pure with
// respect to network I/O: they build requests and parse responses; transport
// execution, timeouts and cancellation belong to the fetch orchestrator.
package provider

import (
	"github.com/usagedeck/usagedeck/internal/errors"
	"github.com/usagedeck/usagedeck/internal/usage"
)

// Identity is an immutable provider descriptor created at startup.
type Identity struct {
	Key         string
	DisplayName string
	IconKey     string
}

// CookieSpec declares which browser cookies a web source needs to
// impersonate a signed-in dashboard session.
type CookieSpec struct {
	Domain string
	Names  []string
}

// Credentials carries the secret material resolved for one attempt. The
// orchestrator copies these out of the credential store before any I/O.
type Credentials struct {
	Secret  string
	Cookies map[string]string
}

// Request describes one source attempt. Web and OAuth attempts are HTTP
// calls; CLI attempts invoke a local binary. The adapter never executes it.
type Request struct {
	Source  usage.SourceKind
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	Binary  string
	Args    []string
}

// RawUsage is the provider-specific payload of a successful attempt,
// reduced to observations the normalization layer understands. It is
// consumed immediately and never cached.
type RawUsage struct {
	Windows []usage.WindowObservation
	Session *usage.SessionObservation
}

// Provider is the uniform capability interface each adapter implements.
type Provider interface {
	Identity() Identity
	Sources() []usage.SourceKind
	CookieSpec() (CookieSpec, bool)
	BuildRequest(source usage.SourceKind, creds Credentials) (*Request, error)
	ParseResponse(source usage.SourceKind, body []byte) (*RawUsage, error)
}

type buildFunc func(creds Credentials) (*Request, error)
type parseFunc func(body []byte) (*RawUsage, error)

// adapter is the single concrete Provider implementation; each registered
// provider is one configured instance.
type adapter struct {
	identity Identity
	sources  []usage.SourceKind
	cookies  *CookieSpec
	build    map[usage.SourceKind]buildFunc
	parse    map[usage.SourceKind]parseFunc
}

func (a *adapter) Identity() Identity { return a.identity }

func (a *adapter) Sources() []usage.SourceKind {
	out := make([]usage.SourceKind, len(a.sources))
	copy(out, a.sources)
	return out
}

func (a *adapter) CookieSpec() (CookieSpec, bool) {
	if a.cookies == nil {
		return CookieSpec{}, false
	}
	return *a.cookies, true
}

func (a *adapter) BuildRequest(source usage.SourceKind, creds Credentials) (*Request, error) {
	build, ok := a.build[source]
	if !ok {
		return nil, &errors.ErrUnsupportedSource{Provider: a.identity.Key, Source: string(source)}
	}
	req, err := build(creds)
	if err != nil {
		return nil, err
	}
	req.Source = source
	return req, nil
}

func (a *adapter) ParseResponse(source usage.SourceKind, body []byte) (*RawUsage, error) {
	parse, ok := a.parse[source]
	if !ok {
		return nil, &errors.ErrUnsupportedSource{Provider: a.identity.Key, Source: string(source)}
	}
	return parse(body)
}
