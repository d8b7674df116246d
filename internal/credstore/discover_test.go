package credstore

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usagedeck/usagedeck/internal/redact"
)

func writeAuthFile(t *testing.T, home, relPath, content string) {
	t.Helper()
	path := filepath.Join(home, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func newTestImporter(t *testing.T) (*Importer, *Store, string) {
	t.Helper()
	dir := t.TempDir()
	store := New(filepath.Join(dir, "credentials.json"), redact.New())
	require.NoError(t, store.Load())
	im := NewImporter(store)
	im.SetHome(dir)
	return im, store, dir
}

func TestImportAllDiscoversClaudeOauth(t *testing.T) {
	im, store, home := newTestImporter(t)
	expiry := time.Now().Add(time.Hour).UnixMilli()
	writeAuthFile(t, home, ".claude/.credentials.json",
		`{"claudeAiOauth":{"accessToken":"sk-ant-oat01-discovered","expiresAt":`+
			strconv.FormatInt(expiry, 10)+`}}`)

	newCount, updatedCount, err := im.ImportAll()
	require.NoError(t, err)
	assert.Equal(t, 1, newCount)
	assert.Equal(t, 0, updatedCount)

	rec, ok := store.Get("claude", ImportedLabel)
	require.True(t, ok)
	assert.Equal(t, "sk-ant-oat01-discovered", rec.Secret)
	assert.Equal(t, KindToken, rec.Kind)
	require.NotNil(t, rec.ExpiresAt)
	assert.Equal(t, time.UnixMilli(expiry).UTC(), *rec.ExpiresAt)
}

func TestImportAllCodexFallsBackToAPIKey(t *testing.T) {
	im, store, home := newTestImporter(t)
	writeAuthFile(t, home, ".codex/auth.json", `{"OPENAI_API_KEY":"sk-proj-fallback-key"}`)

	newCount, _, err := im.ImportAll()
	require.NoError(t, err)
	assert.Equal(t, 1, newCount)

	rec, ok := store.Get("codex", ImportedLabel)
	require.True(t, ok)
	assert.Equal(t, "sk-proj-fallback-key", rec.Secret)
}

func TestImportAllPrefersCodexOauthToken(t *testing.T) {
	im, store, home := newTestImporter(t)
	writeAuthFile(t, home, ".codex/auth.json",
		`{"tokens":{"access_token":"oauth-token-wins"},"OPENAI_API_KEY":"sk-ignored"}`)

	_, _, err := im.ImportAll()
	require.NoError(t, err)

	rec, ok := store.Get("codex", ImportedLabel)
	require.True(t, ok)
	assert.Equal(t, "oauth-token-wins", rec.Secret)
}

func TestImportAllSkipsUnchangedSecrets(t *testing.T) {
	im, _, home := newTestImporter(t)
	writeAuthFile(t, home, ".gemini/oauth_creds.json", `{"access_token":"gemini-token-stable"}`)

	newCount, updatedCount, err := im.ImportAll()
	require.NoError(t, err)
	assert.Equal(t, 1, newCount)
	assert.Equal(t, 0, updatedCount)

	newCount, updatedCount, err = im.ImportAll()
	require.NoError(t, err)
	assert.Equal(t, 0, newCount)
	assert.Equal(t, 0, updatedCount)
}

func TestImportAllUpdatesRotatedToken(t *testing.T) {
	im, store, home := newTestImporter(t)
	writeAuthFile(t, home, ".qwen/oauth_creds.json", `{"access_token":"qwen-token-v1"}`)

	_, _, err := im.ImportAll()
	require.NoError(t, err)

	writeAuthFile(t, home, ".qwen/oauth_creds.json", `{"access_token":"qwen-token-v2"}`)
	newCount, updatedCount, err := im.ImportAll()
	require.NoError(t, err)
	assert.Equal(t, 0, newCount)
	assert.Equal(t, 1, updatedCount)

	rec, ok := store.Get("qwen", ImportedLabel)
	require.True(t, ok)
	assert.Equal(t, "qwen-token-v2", rec.Secret)
}

func TestImportAllIgnoresMissingAndMalformedFiles(t *testing.T) {
	im, store, home := newTestImporter(t)
	writeAuthFile(t, home, ".claude/.credentials.json", `not json at all`)

	newCount, updatedCount, err := im.ImportAll()
	require.NoError(t, err)
	assert.Equal(t, 0, newCount)
	assert.Equal(t, 0, updatedCount)
	assert.Empty(t, store.Providers())
}

func TestImportAllLeavesManualAccountsAlone(t *testing.T) {
	im, store, home := newTestImporter(t)
	require.NoError(t, store.Upsert(Record{
		Provider: "claude", Label: "work", Kind: KindToken, Secret: "manual-secret",
	}))
	writeAuthFile(t, home, ".claude/.credentials.json",
		`{"claudeAiOauth":{"accessToken":"discovered-secret"}}`)

	_, _, err := im.ImportAll()
	require.NoError(t, err)

	manual, ok := store.Get("claude", "work")
	require.True(t, ok)
	assert.Equal(t, "manual-secret", manual.Secret)
	assert.ElementsMatch(t, []string{"work", ImportedLabel}, store.Accounts("claude"))
}
