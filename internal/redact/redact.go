package redact

import (
	"regexp"
	"strings"
	"sync"
)

// Placeholder replaces every secret-shaped substring.
const Placeholder = "[redacted]"

// Built-in patterns for secret-shaped values that may leak into error
// strings or payload excerpts even when nobody registered them.
var builtinPatterns = []*regexp.Regexp{
	// JWTs
	regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{5,}\b`),
	// OpenAI/Anthropic-style prefixed keys
	regexp.MustCompile(`\b(?:sk|sess|pk|rk)-[A-Za-z0-9_-]{16,}\b`),
	// Cookie pairs for known session cookie names
	regexp.MustCompile(`(?i)\b(sessionKey|session-token|__Secure-next-auth\.session-token|_session)=[^;\s"]+`),
	// Bearer headers
	regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._~+/-]{16,}=*`),
	// Long unbroken base64/hex runs are almost always key material
	regexp.MustCompile(`\b[A-Fa-f0-9]{40,}\b`),
	regexp.MustCompile(`\b[A-Za-z0-9+/]{48,}={0,2}\b`),
}

// Redactor scrubs registered secrets and secret-shaped substrings from
// strings before they reach logs or error messages.
type Redactor struct {
	mu      sync.RWMutex
	secrets []string
}

// New creates a Redactor with only the built-in patterns active.
func New() *Redactor {
	return &Redactor{}
}

// Register adds an exact secret value to scrub. Short values are ignored:
// redacting them would turn common substrings into noise.
func (r *Redactor) Register(secret string) {
	secret = strings.TrimSpace(secret)
	if len(secret) < 6 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.secrets {
		if s == secret {
			return
		}
	}
	r.secrets = append(r.secrets, secret)
}

// Redact returns s with all registered secrets and built-in secret shapes
// replaced by the placeholder.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	secrets := r.secrets
	r.mu.RUnlock()

	for _, secret := range secrets {
		s = strings.ReplaceAll(s, secret, Placeholder)
	}
	for _, pattern := range builtinPatterns {
		s = pattern.ReplaceAllString(s, Placeholder)
	}
	return s
}

// RedactError is a convenience for scrubbing error text; nil stays nil-safe.
func (r *Redactor) RedactError(err error) string {
	if err == nil {
		return ""
	}
	return r.Redact(err.Error())
}
