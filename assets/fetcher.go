package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/siteforge/siteforge/capture"
	"github.com/siteforge/siteforge/config"
)

// FetchedAsset is one downloaded resource, body plus the resolved
// content type.
type FetchedAsset struct {
	URL         string
	ContentType string
	Body        []byte
}

// Fetcher downloads page resources over a connection-pooled client with
// a Chrome TLS fingerprint, retrying transient failures with exponential
// backoff.
type Fetcher struct {
	client      *http.Client
	retries     int
	backoffBase time.Duration
	maxBytes    int64
}

func NewFetcher(cfg config.FetcherConfig, proxy string) *Fetcher {
	transport := capture.ChromeTransport(proxy)
	transport.MaxIdleConnsPerHost = 8
	return &Fetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		retries:     cfg.Retries,
		backoffBase: cfg.BackoffBase,
		maxBytes:    cfg.MaxAssetBytes,
	}
}

// Fetch downloads a single resource. Transient failures (network errors
// and 5xx / 429 responses) are retried; 4xx responses other than 429 are
// permanent.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchedAsset, error) {
	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			backoff := f.backoffBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		asset, retryable, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			return asset, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return nil, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (*FetchedAsset, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("asset fetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", capture.UserAgent())
	req.Header.Set("Accept", "*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("asset fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, retryable, fmt.Errorf("asset fetch %s: HTTP %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, true, fmt.Errorf("asset fetch %s: read body: %w", rawURL, err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, false, fmt.Errorf("asset fetch %s: exceeds %d byte limit", rawURL, f.maxBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(body)
		if i := strings.IndexByte(contentType, ';'); i >= 0 {
			contentType = strings.TrimSpace(contentType[:i])
		}
	}

	return &FetchedAsset{URL: rawURL, ContentType: contentType, Body: body}, false, nil
}
