package credstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/usagedeck/usagedeck/internal/errors"
	"github.com/usagedeck/usagedeck/internal/redact"
)

// Kind classifies the secret held by a credential record.
type Kind string

const (
	KindToken  Kind = "token"
	KindCookie Kind = "cookie"
	KindAPIKey Kind = "api-key"
)

// Record is one per-provider, per-account credential. Records are always
// copied out of the store; callers never share a reference with it.
type Record struct {
	Provider   string     `json:"-"`
	Label      string     `json:"label"`
	Kind       Kind       `json:"kind"`
	Secret     string     `json:"secret"`
	ObtainedAt time.Time  `json:"obtained_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the record carries a passed expiry.
func (r Record) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

type providerAccounts struct {
	Active  string   `json:"active,omitempty"`
	Records []Record `json:"records"`
}

type fileLayout struct {
	Version   int                          `json:"version"`
	Providers map[string]*providerAccounts `json:"providers"`
}

const layoutVersion = 2

// Store is the persisted multi-account credential registry. All mutation is
// funnelled through a single writer lock; reads copy records out so no lock
// is held while a caller uses one.
type Store struct {
	mu        sync.RWMutex
	path      string
	providers map[string]*providerAccounts
	redactor  *redact.Redactor
}

// New creates a store backed by the given file path. Secrets loaded or
// inserted are registered with the redactor so they can never reach logs.
func New(path string, redactor *redact.Redactor) *Store {
	return &Store{
		path:      path,
		providers: make(map[string]*providerAccounts),
		redactor:  redactor,
	}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted layout. A missing file is an empty store, not an
// error. A legacy single-credential-per-provider layout is migrated in memory
// and the persisted form is rewritten atomically before Load returns, so
// loading is idempotent.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.providers = make(map[string]*providerAccounts)
			return nil
		}
		return &errors.ErrCredentialStore{Path: s.path, Err: err}
	}

	var layout fileLayout
	if err := json.Unmarshal(data, &layout); err == nil && layout.Version >= layoutVersion && layout.Providers != nil {
		s.providers = layout.Providers
		s.registerSecretsLocked()
		return nil
	}

	migrated, err := migrateLegacy(data)
	if err != nil {
		return &errors.ErrCredentialStore{Path: s.path, Err: err}
	}
	s.providers = migrated
	s.registerSecretsLocked()
	return s.saveLocked()
}

func (s *Store) registerSecretsLocked() {
	if s.redactor == nil {
		return
	}
	for _, accounts := range s.providers {
		for _, rec := range accounts.Records {
			s.redactor.Register(rec.Secret)
		}
	}
}

// Accounts returns the ordered account labels for a provider.
func (s *Store) Accounts(provider string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts, ok := s.providers[provider]
	if !ok {
		return nil
	}
	labels := make([]string, 0, len(accounts.Records))
	for _, rec := range accounts.Records {
		labels = append(labels, rec.Label)
	}
	return labels
}

// Active returns a copy of the selected record for a provider. A missing
// credential is an ordinary (Record{}, false) miss: callers must treat it as
// "this source is unavailable", not a failure.
func (s *Store) Active(provider string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts, ok := s.providers[provider]
	if !ok || len(accounts.Records) == 0 {
		return Record{}, false
	}

	if accounts.Active != "" {
		for _, rec := range accounts.Records {
			if rec.Label == accounts.Active {
				rec.Provider = provider
				return rec, true
			}
		}
	}
	// No explicit selection: the most recently added record wins.
	rec := accounts.Records[len(accounts.Records)-1]
	rec.Provider = provider
	return rec, true
}

// Get returns a copy of a specific labelled record.
func (s *Store) Get(provider, label string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts, ok := s.providers[provider]
	if !ok {
		return Record{}, false
	}
	for _, rec := range accounts.Records {
		if rec.Label == label {
			rec.Provider = provider
			return rec, true
		}
	}
	return Record{}, false
}

// Upsert inserts or replaces a record by (provider, label) and persists. An
// existing label is overwritten in place so it is never duplicated.
func (s *Store) Upsert(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ObtainedAt.IsZero() {
		rec.ObtainedAt = time.Now().UTC()
	}
	if s.redactor != nil {
		s.redactor.Register(rec.Secret)
	}

	accounts, ok := s.providers[rec.Provider]
	if !ok {
		accounts = &providerAccounts{}
		s.providers[rec.Provider] = accounts
	}
	for i := range accounts.Records {
		if accounts.Records[i].Label == rec.Label {
			accounts.Records[i] = rec
			return s.saveLocked()
		}
	}
	accounts.Records = append(accounts.Records, rec)
	return s.saveLocked()
}

// Remove deletes a record and persists. Removing the active label clears the
// selection so Active falls back to the most recently added record.
func (s *Store) Remove(provider, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, ok := s.providers[provider]
	if !ok {
		return &errors.ErrUnknownAccount{Provider: provider, Label: label}
	}
	for i := range accounts.Records {
		if accounts.Records[i].Label == label {
			accounts.Records = append(accounts.Records[:i], accounts.Records[i+1:]...)
			if accounts.Active == label {
				accounts.Active = ""
			}
			if len(accounts.Records) == 0 {
				delete(s.providers, provider)
			}
			return s.saveLocked()
		}
	}
	return &errors.ErrUnknownAccount{Provider: provider, Label: label}
}

// SelectActive marks a label as the provider's active account.
func (s *Store) SelectActive(provider, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, ok := s.providers[provider]
	if !ok {
		return &errors.ErrUnknownAccount{Provider: provider, Label: label}
	}
	for _, rec := range accounts.Records {
		if rec.Label == label {
			accounts.Active = label
			return s.saveLocked()
		}
	}
	return &errors.ErrUnknownAccount{Provider: provider, Label: label}
}

// Providers returns every provider key that holds at least one record.
func (s *Store) Providers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.providers))
	for key := range s.providers {
		keys = append(keys, key)
	}
	return keys
}

// saveLocked writes the layout atomically: temp file in the same directory,
// then rename over the target.
func (s *Store) saveLocked() error {
	layout := fileLayout{Version: layoutVersion, Providers: s.providers}
	data, err := json.MarshalIndent(layout, "", "  ")
	if err != nil {
		return &errors.ErrCredentialStore{Path: s.path, Err: err}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return &errors.ErrCredentialStore{Path: s.path, Err: err}
	}
	tmp, err := os.CreateTemp(dir, ".credentials-*.tmp")
	if err != nil {
		return &errors.ErrCredentialStore{Path: s.path, Err: err}
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &errors.ErrCredentialStore{Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &errors.ErrCredentialStore{Path: s.path, Err: err}
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath)
		return &errors.ErrCredentialStore{Path: s.path, Err: err}
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return &errors.ErrCredentialStore{Path: s.path, Err: err}
	}
	return nil
}
