package credstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	uderrors "github.com/usagedeck/usagedeck/internal/errors"
	"github.com/usagedeck/usagedeck/internal/redact"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.json")
	s := New(path, redact.New())
	require.NoError(t, s.Load())
	return s
}

func TestLoadMissingFileIsEmptyStore(t *testing.T) {
	s := newTestStore(t)
	require.Empty(t, s.Providers())
	_, ok := s.Active("claude")
	require.False(t, ok)
}

func TestUpsertAndActiveDefaultsToMostRecent(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Upsert(Record{Provider: "claude", Label: "work", Kind: KindToken, Secret: "tok-work-1234567890"}))
	require.NoError(t, s.Upsert(Record{Provider: "claude", Label: "personal", Kind: KindToken, Secret: "tok-personal-1234567890"}))

	rec, ok := s.Active("claude")
	require.True(t, ok)
	require.Equal(t, "personal", rec.Label)
	require.Equal(t, []string{"work", "personal"}, s.Accounts("claude"))
}

func TestUpsertOverwritesExistingLabel(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Upsert(Record{Provider: "codex", Label: "default", Kind: KindCookie, Secret: "cookie-one-1234567890"}))
	require.NoError(t, s.Upsert(Record{Provider: "codex", Label: "default", Kind: KindCookie, Secret: "cookie-two-1234567890"}))

	require.Equal(t, []string{"default"}, s.Accounts("codex"))
	rec, ok := s.Active("codex")
	require.True(t, ok)
	require.Equal(t, "cookie-two-1234567890", rec.Secret)
}

func TestSelectActiveThenActiveReturnsSelection(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Upsert(Record{Provider: "claude", Label: "a", Kind: KindToken, Secret: "secret-aaaaaaaaaa"}))
	require.NoError(t, s.Upsert(Record{Provider: "claude", Label: "b", Kind: KindToken, Secret: "secret-bbbbbbbbbb"}))

	require.NoError(t, s.SelectActive("claude", "a"))
	rec, ok := s.Active("claude")
	require.True(t, ok)
	require.Equal(t, "a", rec.Label)

	var unknown *uderrors.ErrUnknownAccount
	err := s.SelectActive("claude", "missing")
	require.ErrorAs(t, err, &unknown)
}

func TestRemoveActiveLeavesNoStaleReference(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Upsert(Record{Provider: "claude", Label: "only", Kind: KindToken, Secret: "secret-onlyonlyonly"}))
	require.NoError(t, s.SelectActive("claude", "only"))

	require.NoError(t, s.Remove("claude", "only"))
	_, ok := s.Active("claude")
	require.False(t, ok)
	require.Empty(t, s.Accounts("claude"))
}

func TestActiveReturnsCopy(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Upsert(Record{Provider: "claude", Label: "x", Kind: KindToken, Secret: "secret-xxxxxxxxxxxx"}))

	rec, ok := s.Active("claude")
	require.True(t, ok)
	rec.Secret = "mutated"

	again, ok := s.Active("claude")
	require.True(t, ok)
	require.Equal(t, "secret-xxxxxxxxxxxx", again.Secret)
}

func TestLegacyMigration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")
	legacy := map[string]any{
		"claude": "sess-legacy-token-1234567890",
		"gemini": map[string]any{"kind": "api-key", "secret": "AIzaLegacyKey123456"},
	}
	data, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	s := New(path, redact.New())
	require.NoError(t, s.Load())

	rec, ok := s.Active("claude")
	require.True(t, ok)
	require.Equal(t, "default", rec.Label)
	require.Equal(t, "sess-legacy-token-1234567890", rec.Secret)

	rec, ok = s.Active("gemini")
	require.True(t, ok)
	require.Equal(t, KindAPIKey, rec.Kind)

	// The persisted form must now be the multi-account layout.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var layout fileLayout
	require.NoError(t, json.Unmarshal(raw, &layout))
	require.Equal(t, layoutVersion, layout.Version)
}

func TestMigrationIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"claude":"sess-abcdef-1234567890"}`), 0o600))

	s := New(path, redact.New())
	require.NoError(t, s.Load())
	first := snapshotRecords(t, s)

	require.NoError(t, s.Load())
	second := snapshotRecords(t, s)
	require.Equal(t, first, second)
}

func snapshotRecords(t *testing.T, s *Store) map[string][]Record {
	t.Helper()
	out := make(map[string][]Record)
	for _, provider := range s.Providers() {
		for _, label := range s.Accounts(provider) {
			rec, ok := s.Get(provider, label)
			require.True(t, ok)
			rec.ObtainedAt = time.Time{} // migration stamps wall-clock time
			out[provider] = append(out[provider], rec)
		}
	}
	return out
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")

	s := New(path, redact.New())
	require.NoError(t, s.Load())
	require.NoError(t, s.Upsert(Record{Provider: "qwen", Label: "cn", Kind: KindAPIKey, Secret: "sk-qwen-1234567890abcdef"}))
	require.NoError(t, s.SelectActive("qwen", "cn"))

	reopened := New(path, redact.New())
	require.NoError(t, reopened.Load())
	rec, ok := reopened.Active("qwen")
	require.True(t, ok)
	require.Equal(t, "cn", rec.Label)
	require.Equal(t, KindAPIKey, rec.Kind)
}
