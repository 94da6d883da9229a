package assets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/siteforge/siteforge/config"
	"github.com/siteforge/siteforge/models"
)

func testConfig() config.FetcherConfig {
	return config.FetcherConfig{
		Timeout:          5 * time.Second,
		Retries:          2,
		BackoffBase:      time.Millisecond,
		MaxAssetBytes:    1 << 20,
		Parallelism:      4,
		FailureThreshold: 0.30,
	}
}

func newExtractor() *Extractor {
	cfg := testConfig()
	return NewExtractor(NewFetcher(cfg, ""), cfg)
}

func TestExtract_DownloadsAndRewrites(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/css/site.css":
			w.Header().Set("Content-Type", "text/css")
			fmt.Fprint(w, "body{background:url(/img/bg.png)}")
		case "/img/bg.png", "/img/logo.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte("\x89PNG\r\n\x1a\n"))
		case "/app.js":
			w.Header().Set("Content-Type", "application/javascript")
			fmt.Fprint(w, "console.log(1)")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	html := `<html><head>
<link rel="stylesheet" href="/css/site.css">
<script src="/app.js"></script>
</head><body>
<img src="/img/logo.png" srcset="/img/logo.png 1x, /img/logo.png 2x">
<div style="background:url('/img/bg.png')"></div>
<a href="/about">about</a>
</body></html>`

	res, err := newExtractor().Extract(context.Background(), srv.URL+"/", html)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	// logo, bg, css, js; srcset and inline style dedupe against src.
	if len(res.Assets) != 4 {
		t.Fatalf("got %d assets, want 4: %+v", len(res.Assets), res.Assets)
	}
	for _, a := range res.Assets {
		if !strings.HasPrefix(a.LocalPath, "assets/") {
			t.Errorf("local path %q not under assets/", a.LocalPath)
		}
		if a.ByteSize == 0 {
			t.Errorf("asset %s has zero size", a.OriginalURL)
		}
	}

	if strings.Contains(res.HTML, `src="/app.js"`) {
		t.Error("script src not rewritten")
	}
	if strings.Contains(res.HTML, `src="/img/logo.png"`) {
		t.Error("img src not rewritten")
	}
	if strings.Contains(res.HTML, "url(&#39;/img/bg.png&#39;)") || strings.Contains(res.HTML, "url('/img/bg.png')") {
		t.Error("inline style url not rewritten")
	}
	// Page links are navigation, not assets.
	if !strings.Contains(res.HTML, `href="/about"`) {
		t.Error("anchor href must be left alone")
	}
	if len(res.Issues) != 0 {
		t.Errorf("unexpected issues: %+v", res.Issues)
	}
	if len(res.Stylesheets) != 1 {
		t.Errorf("got %d stylesheet bodies, want 1", len(res.Stylesheets))
	}
	for _, css := range res.Stylesheets {
		if !strings.Contains(css, "background:url") {
			t.Errorf("stylesheet body = %q", css)
		}
	}
}

func TestExtract_StylesheetInternalRefsDownloadedAndRewritten(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/css/site.css":
			w.Header().Set("Content-Type", "text/css")
			fmt.Fprint(w, `@import url("theme/extra.css");h1{background:url(../img/hero.jpg)}`)
		case "/css/theme/extra.css":
			w.Header().Set("Content-Type", "text/css")
			fmt.Fprint(w, `@font-face{src:url("fonts/brand.woff2")}`)
		case "/img/hero.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte("\xff\xd8\xff"))
		case "/css/theme/fonts/brand.woff2":
			w.Header().Set("Content-Type", "font/woff2")
			w.Write([]byte("wOF2"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	html := `<html><head><link rel="stylesheet" href="/css/site.css"></head><body></body></html>`

	res, err := newExtractor().Extract(context.Background(), srv.URL+"/", html)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	// site.css + extra.css + hero.jpg + brand.woff2.
	if len(res.Assets) != 4 {
		t.Fatalf("got %d assets, want 4: %+v", len(res.Assets), res.Assets)
	}
	byURL := map[string]string{}
	for _, a := range res.Assets {
		byURL[a.OriginalURL] = a.LocalPath
	}
	heroLocal, ok := byURL[srv.URL+"/img/hero.jpg"]
	if !ok {
		t.Fatal("hero.jpg referenced only from CSS was not downloaded")
	}
	fontLocal, ok := byURL[srv.URL+"/css/theme/fonts/brand.woff2"]
	if !ok {
		t.Fatal("brand.woff2 referenced from imported CSS was not downloaded")
	}

	// Relative refs resolve against the stylesheet, not the page, and
	// the stored bodies carry page-relative local paths.
	site := res.Stylesheets[byURL[srv.URL+"/css/site.css"]]
	if !strings.Contains(site, "url("+heroLocal+")") {
		t.Errorf("site.css body = %q, want url(%s)", site, heroLocal)
	}
	extra := res.Stylesheets[byURL[srv.URL+"/css/theme/extra.css"]]
	if !strings.Contains(extra, "url("+fontLocal+")") {
		t.Errorf("extra.css body = %q, want url(%s)", extra, fontLocal)
	}
	for lp, css := range res.Stylesheets {
		if strings.Contains(css, srv.URL) {
			t.Errorf("stylesheet %s still references the origin: %q", lp, css)
		}
	}
}

func TestExtract_PartialFailureDegradesToIssue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("\x89PNG\r\n\x1a\n"))
	}))
	defer srv.Close()

	html := `<body>
<img src="/a.png"><img src="/b.png"><img src="/c.png">
<img src="/d.png"><img src="/missing.png">
</body>`

	res, err := newExtractor().Extract(context.Background(), srv.URL+"/", html)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(res.Assets) != 4 {
		t.Errorf("got %d assets, want 4", len(res.Assets))
	}
	if len(res.Issues) != 1 {
		t.Fatalf("got %d issues, want 1", len(res.Issues))
	}
	if res.Issues[0].Kind != models.IssueAssetFetch {
		t.Errorf("issue kind = %s", res.Issues[0].Kind)
	}
	// The failed reference keeps its original URL.
	if !strings.Contains(res.HTML, "/missing.png") {
		t.Error("failed reference was rewritten")
	}
}

func TestExtract_SystemicFailureFailsJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	html := `<body><img src="/a.png"><img src="/b.png"><img src="/c.png"><img src="/d.png"></body>`

	_, err := newExtractor().Extract(context.Background(), srv.URL+"/", html)
	var ce *models.CloneError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CloneError, got %v", err)
	}
	if ce.Code != models.ErrCodeAssetFetch || !ce.Fatal {
		t.Errorf("got code=%s fatal=%v, want fatal ASSET_FETCH_FAILED", ce.Code, ce.Fatal)
	}
}

func TestFetcher_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "flaky", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "text/css")
		fmt.Fprint(w, "a{}")
	}))
	defer srv.Close()

	f := NewFetcher(testConfig(), "")
	asset, err := f.Fetch(context.Background(), srv.URL+"/site.css")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("handler called %d times, want 3", got)
	}
	if asset.ContentType != "text/css" {
		t.Errorf("content type = %q", asset.ContentType)
	}
}

func TestFetcher_PermanentFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(testConfig(), "")
	if _, err := f.Fetch(context.Background(), srv.URL+"/gone.png"); err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("handler called %d times, want 1", got)
	}
}

func TestFetcher_SniffsMissingContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
	}))
	defer srv.Close()

	f := NewFetcher(testConfig(), "")
	asset, err := f.Fetch(context.Background(), srv.URL+"/blob")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if asset.ContentType != "image/png" {
		t.Errorf("content type = %q, want image/png", asset.ContentType)
	}
}

func TestResolveRef(t *testing.T) {
	base, err := url.Parse("https://example.com/blog/post/")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"/img/a.png", "https://example.com/img/a.png", true},
		{"style.css", "https://example.com/blog/post/style.css", true},
		{"//cdn.example.com/lib.js", "https://cdn.example.com/lib.js", true},
		{"data:image/png;base64,AAAA", "", false},
		{"javascript:void(0)", "", false},
		{"#section", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := resolveRef(base, tt.raw)
		if ok != tt.ok || got != tt.want {
			t.Errorf("resolveRef(%q) = %q, %v; want %q, %v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLocalPath_ExtensionFromContentType(t *testing.T) {
	p := localPath("https://example.com/api/blob", "image/webp")
	if !strings.HasSuffix(p, ".webp") {
		t.Errorf("path %q missing sniffed extension", p)
	}
	p2 := localPath("https://example.com/site.css?v=3", "text/css")
	if !strings.HasSuffix(p2, "site.css") {
		t.Errorf("path %q should keep original filename", p2)
	}
}
