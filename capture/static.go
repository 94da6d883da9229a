package capture

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	tls "github.com/refraction-networking/utls"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// RawResponse is an unrendered HTTP response: headers plus body. The
// technology detector and the static capture path both consume it.
type RawResponse struct {
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// staticFetcher performs HTTP requests with a Chrome TLS fingerprint so
// origins that fingerprint clients serve the same bytes they serve a
// real browser.
type staticFetcher struct {
	defaultProxy string
}

func newStaticFetcher(defaultProxy string) *staticFetcher {
	return &staticFetcher{defaultProxy: defaultProxy}
}

// ChromeTransport returns an HTTP transport whose TLS handshake carries
// a Chrome fingerprint. proxy may be empty.
func ChromeTransport(proxy string) *http.Transport {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialTLSChrome(ctx, network, addr)
		},
		ForceAttemptHTTP2: false,
	}
	if proxy != "" {
		if proxyURL, err := url.Parse(proxy); err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return transport
}

// UserAgent is the Chrome user agent sent with every fingerprinted
// request.
func UserAgent() string { return chromeUA }

// fetch retrieves the URL via plain HTTP with a Chrome TLS fingerprint.
func (f *staticFetcher) fetch(ctx context.Context, targetURL string) (*RawResponse, error) {
	client := &http.Client{Transport: ChromeTransport(f.defaultProxy)}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("static fetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("static fetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20)) // 10 MB cap
	if err != nil {
		return nil, fmt.Errorf("static fetch: read body: %w", err)
	}

	return &RawResponse{
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		Body:       body,
	}, nil
}

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to
// http/1.1 only, so Go's http.Transport never has to frame HTTP/2 over
// the utls connection. Computed once at init time.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// dialTLSChrome establishes a TLS connection using a Chrome fingerprint.
func dialTLSChrome(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{}
	rawConn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls.UClient(rawConn, &tls.Config{ServerName: host}, tls.HelloCustom)
	if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
		rawConn.Close()
		return nil, fmt.Errorf("static fetch: apply tls spec: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// captureStatic produces a snapshot without a browser. No enrichment
// phases run; the snapshot carries the served HTML, headers, and a TTFB
// estimate only.
func (c *Capturer) captureStatic(ctx context.Context, sourceURL string) (*PageSnapshot, error) {
	raw, err := c.fetcher.fetch(ctx, sourceURL)
	if err != nil {
		return nil, categorizeError(err, "static fetch of target URL failed")
	}
	if raw.StatusCode >= 400 {
		return nil, categorizeError(
			fmt.Errorf("HTTP %d", raw.StatusCode),
			fmt.Sprintf("origin returned status %d", raw.StatusCode),
		)
	}

	return &PageSnapshot{
		SourceURL:  sourceURL,
		FinalURL:   raw.FinalURL,
		HTML:       string(raw.Body),
		StatusCode: raw.StatusCode,
		Headers:    raw.Headers,
		Globals:    map[string]bool{},
		Warnings:   []string{"browser automation disabled: enrichment phases skipped"},
	}, nil
}
