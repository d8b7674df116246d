package browser

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	uderrors "github.com/usagedeck/usagedeck/internal/errors"
)

type fakeDecryptor struct {
	fail bool
}

func (d *fakeDecryptor) Decrypt(_ Browser, encrypted []byte) (string, error) {
	if d.fail {
		return "", errors.New("keychain unavailable")
	}
	// Fixtures prefix values with "v10" the way Chromium does.
	if len(encrypted) > 3 {
		return string(encrypted[3:]), nil
	}
	return string(encrypted), nil
}

func writeChromiumFixture(t *testing.T, rows [][3]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Cookies")
	db, err := sql.Open("sqlite", "file:"+path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE cookies (host_key TEXT, name TEXT, value TEXT, encrypted_value BLOB)`)
	require.NoError(t, err)
	for _, row := range rows {
		_, err = db.Exec(`INSERT INTO cookies (host_key, name, value, encrypted_value) VALUES (?, ?, '', ?)`,
			row[0], row[1], []byte("v10"+row[2]))
		require.NoError(t, err)
	}
	return path
}

func TestExtractChromiumCookies(t *testing.T) {
	path := writeChromiumFixture(t, [][3]string{
		{".claude.ai", "sessionKey", "sk-ant-session-value"},
		{".claude.ai", "other", "irrelevant"},
		{".example.com", "sessionKey", "wrong-domain"},
	})

	e := NewExtractor(&fakeDecryptor{})
	e.OverrideStorePath(Chrome, path)

	bundle, err := e.Extract(Chrome, "claude.ai", []string{"sessionKey"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"sessionKey": "sk-ant-session-value"}, bundle.Values)
}

func TestExtractBrowserNotFound(t *testing.T) {
	e := NewExtractor(&fakeDecryptor{})
	e.OverrideStorePath(Chrome, filepath.Join(t.TempDir(), "missing", "Cookies"))

	_, err := e.Extract(Chrome, "claude.ai", []string{"sessionKey"})
	var notFound *uderrors.ErrBrowserNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestExtractDecryptionFailed(t *testing.T) {
	path := writeChromiumFixture(t, [][3]string{
		{".claude.ai", "sessionKey", "sk-ant-session-value"},
	})

	e := NewExtractor(&fakeDecryptor{fail: true})
	e.OverrideStorePath(Chrome, path)

	_, err := e.Extract(Chrome, "claude.ai", []string{"sessionKey"})
	var decrypt *uderrors.ErrDecryptionFailed
	require.ErrorAs(t, err, &decrypt)
}

func TestExtractFirefoxPlaintext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.sqlite")
	db, err := sql.Open("sqlite", "file:"+path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE moz_cookies (host TEXT, name TEXT, value TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO moz_cookies (host, name, value) VALUES ('.chatgpt.com', '__Secure-next-auth.session-token', 'plain-session')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	e := NewExtractor(&fakeDecryptor{})
	e.OverrideStorePath(Firefox, path)

	bundle, err := e.Extract(Firefox, "chatgpt.com", []string{"__Secure-next-auth.session-token"})
	require.NoError(t, err)
	require.Equal(t, "plain-session", bundle.Values["__Secure-next-auth.session-token"])
}

func TestHostMatches(t *testing.T) {
	require.True(t, hostMatches(".claude.ai", "claude.ai"))
	require.True(t, hostMatches("claude.ai", "claude.ai"))
	require.True(t, hostMatches("app.claude.ai", "claude.ai"))
	require.False(t, hostMatches("notclaude.ai", "claude.ai"))
}

func TestBundleWipe(t *testing.T) {
	bundle := &CookieBundle{Values: map[string]string{"a": "1", "b": "2"}}
	bundle.Wipe()
	require.Empty(t, bundle.Values)
}

func TestIsLockedErr(t *testing.T) {
	require.True(t, isLockedErr(errors.New("SQLITE_BUSY: database is locked")))
	require.False(t, isLockedErr(errors.New("no such table: cookies")))
}
