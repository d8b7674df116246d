// Package browser extracts session cookies from a locally installed
// browser's cookie store so web dashboard sources can impersonate a
// signed-in session. Decryption of Chromium's encrypted values is delegated
// to an OS secret-storage primitive supplied by the caller; this package is
// a data source, not a security subsystem.
package browser

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	uderrors "github.com/usagedeck/usagedeck/internal/errors"
)

// Browser names a supported cookie store.
type Browser string

const (
	Chrome   Browser = "chrome"
	Chromium Browser = "chromium"
	Brave    Browser = "brave"
	Edge     Browser = "edge"
	Firefox  Browser = "firefox"
)

// Known lists every supported browser.
var Known = []Browser{Chrome, Chromium, Brave, Edge, Firefox}

// Decryptor decrypts a Chromium encrypted_value blob using OS secret
// storage. Implementations live outside this core.
type Decryptor interface {
	Decrypt(browser Browser, encrypted []byte) (string, error)
}

// CookieBundle holds decrypted cookie values for one extraction attempt. It
// is owned by the attempt that requested it, never persisted, and should be
// wiped as soon as the attempt completes.
type CookieBundle struct {
	Browser Browser
	Domain  string
	Values  map[string]string
}

// Wipe overwrites and drops the decrypted values.
func (b *CookieBundle) Wipe() {
	for name := range b.Values {
		b.Values[name] = ""
		delete(b.Values, name)
	}
}

// Header renders the bundle as a Cookie header value.
func (b *CookieBundle) Header() string {
	pairs := make([]string, 0, len(b.Values))
	for name, value := range b.Values {
		pairs = append(pairs, name+"="+value)
	}
	return strings.Join(pairs, "; ")
}

// Extractor locates and reads browser cookie stores. It is a pure,
// single-shot operation: the StoreLocked retry policy belongs to the caller.
type Extractor struct {
	decryptor Decryptor
	overrides map[Browser]string
}

// NewExtractor creates an extractor using the given decryption primitive.
func NewExtractor(decryptor Decryptor) *Extractor {
	return &Extractor{
		decryptor: decryptor,
		overrides: make(map[Browser]string),
	}
}

// OverrideStorePath pins a browser's cookie store to an explicit path,
// bypassing platform discovery. Used by configuration and tests.
func (e *Extractor) OverrideStorePath(browser Browser, path string) {
	e.overrides[browser] = path
}

// Extract returns the named cookie values for a domain from the browser's
// store. Failures are typed: ErrBrowserNotFound when no store exists,
// ErrStoreLocked when the browser is writing the store, ErrDecryptionFailed
// when the OS primitive cannot recover a value.
func (e *Extractor) Extract(browser Browser, domain string, names []string) (*CookieBundle, error) {
	path, ok := e.storePath(browser)
	if !ok {
		return nil, &uderrors.ErrBrowserNotFound{Browser: string(browser)}
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro&_pragma=busy_timeout(200)")
	if err != nil {
		return nil, fmt.Errorf("open cookie store: %w", err)
	}
	defer db.Close()

	var rows *sql.Rows
	if browser == Firefox {
		rows, err = db.Query(`SELECT host, name, value, x'' FROM moz_cookies`)
	} else {
		rows, err = db.Query(`SELECT host_key, name, value, encrypted_value FROM cookies`)
	}
	if err != nil {
		if isLockedErr(err) {
			return nil, &uderrors.ErrStoreLocked{Browser: string(browser), Path: path}
		}
		return nil, fmt.Errorf("query cookie store: %w", err)
	}
	defer rows.Close()

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}

	bundle := &CookieBundle{
		Browser: browser,
		Domain:  domain,
		Values:  make(map[string]string, len(names)),
	}
	for rows.Next() {
		var host, name, plain string
		var encrypted []byte
		if err := rows.Scan(&host, &name, &plain, &encrypted); err != nil {
			return nil, fmt.Errorf("scan cookie row: %w", err)
		}
		if !wanted[name] || !hostMatches(host, domain) {
			continue
		}

		value := plain
		if value == "" && len(encrypted) > 0 {
			value, err = e.decryptor.Decrypt(browser, encrypted)
			if err != nil {
				return nil, &uderrors.ErrDecryptionFailed{Browser: string(browser), Err: err}
			}
		}
		if value != "" {
			bundle.Values[name] = value
		}
	}
	if err := rows.Err(); err != nil {
		if isLockedErr(err) {
			return nil, &uderrors.ErrStoreLocked{Browser: string(browser), Path: path}
		}
		return nil, fmt.Errorf("read cookie store: %w", err)
	}
	return bundle, nil
}

// StorePath reports where the browser's cookie store was found, if anywhere.
func (e *Extractor) StorePath(browser Browser) (string, bool) {
	return e.storePath(browser)
}

func (e *Extractor) storePath(browser Browser) (string, bool) {
	if path, ok := e.overrides[browser]; ok {
		if _, err := os.Stat(path); err != nil {
			return "", false
		}
		return path, true
	}
	for _, candidate := range defaultStorePaths(browser) {
		if candidate == "" {
			continue
		}
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// hostMatches accepts exact hosts and dotted parent-domain entries the way
// browsers store them (".claude.ai" matches "claude.ai").
func hostMatches(host, domain string) bool {
	host = strings.TrimPrefix(host, ".")
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func isLockedErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "locking protocol")
}
