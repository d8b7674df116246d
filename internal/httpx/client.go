// Package httpx provides the HTTP client used for provider attempts. Web
// dashboard scrapes optionally present a browser-like TLS fingerprint so
// they behave the way a signed-in browser session would.
package httpx

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
)

// Client wraps http.Client with rotating browser headers for dashboard
// scraping. OAuth API calls pass through untouched apart from transport.
type Client struct {
	client     *http.Client
	userAgents []string
	langs      []string
	rng        *rand.Rand
	mu         sync.Mutex
	defaultUA  string
}

// Options configures the client.
type Options struct {
	// Timeout is the per-request ceiling. The orchestrator applies its own
	// per-attempt deadlines through context; this is a safety net.
	Timeout time.Duration
	// BrowserTLS enables the Chrome TLS fingerprint on HTTPS dials.
	BrowserTLS bool
}

// New creates a client. Zero Options give a 20s timeout and a plain
// transport.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}

	return &Client{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: newTransport(opts.BrowserTLS),
		},
		userAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		},
		langs:     []string{"en-US,en;q=0.9", "en-GB,en;q=0.8"},
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		defaultUA: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}

// Do executes the request with browser-shaped defaults for any header the
// caller did not set.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	c.applyHeaders(req)
	return c.client.Do(req)
}

func (c *Client) applyHeaders(req *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ua := c.defaultUA
	lang := "en-US,en;q=0.9"
	if len(c.userAgents) > 0 {
		ua = c.userAgents[c.rng.Intn(len(c.userAgents))]
	}
	if len(c.langs) > 0 {
		lang = c.langs[c.rng.Intn(len(c.langs))]
	}

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", ua)
	}
	if req.Header.Get("Accept-Language") == "" {
		req.Header.Set("Accept-Language", lang)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json, text/plain, */*")
	}
}

func newTransport(browserTLS bool) http.RoundTripper {
	if !browserTLS {
		return &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
		}
	}

	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			rawConn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host := addr
			if strings.Contains(addr, ":") {
				host, _, _ = net.SplitHostPort(addr)
			}
			config := &utls.Config{
				ServerName: host,
				NextProtos: []string{"h2", "http/1.1"},
			}
			uconn := utls.UClient(rawConn, config, utls.HelloChrome_120)
			if err := uconn.Handshake(); err != nil {
				_ = rawConn.Close()
				return nil, err
			}
			return uconn, nil
		},
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
	}
}
