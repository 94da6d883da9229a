package assets

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/semaphore"

	"github.com/siteforge/siteforge/config"
	"github.com/siteforge/siteforge/models"
)

// Extractor walks a captured document, downloads every referenced
// resource, and rewrites the references to local paths. Individual
// fetch failures degrade to issues; a failure rate above the configured
// threshold fails the whole extraction, since that pattern means the
// origin is blocking us rather than missing a file.
type Extractor struct {
	fetcher     *Fetcher
	parallelism int64
	threshold   float64
}

// Result is the outcome of one extraction pass. Stylesheets carries
// the downloaded CSS bodies keyed by local path; the optimizer's
// critical-CSS pass reads them.
type Result struct {
	HTML        string
	Assets      []models.AssetRecord
	Issues      []models.Issue
	Stylesheets map[string]string
}

func NewExtractor(fetcher *Fetcher, cfg config.FetcherConfig) *Extractor {
	return &Extractor{
		fetcher:     fetcher,
		parallelism: cfg.Parallelism,
		threshold:   cfg.FailureThreshold,
	}
}

// reference is one discovered asset URL and how to write it back.
type reference struct {
	abs string // resolved absolute URL
}

var reCSSURL = regexp.MustCompile(`url\(\s*['"]?([^'")\s]+)['"]?\s*\)`)

// assetLinkRels marks the <link> rel values that point at downloadable
// resources rather than at other documents.
var assetLinkRels = map[string]bool{
	"stylesheet":       true,
	"icon":             true,
	"shortcut icon":    true,
	"apple-touch-icon": true,
	"manifest":         true,
	"preload":          true,
	"prefetch":         true,
}

// Extract downloads all assets referenced by the document and returns
// the rewritten HTML. baseURL must be the final (post-redirect) page
// URL so relative references resolve the way the browser resolved them.
func (e *Extractor) Extract(ctx context.Context, baseURL, html string) (*Result, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, models.NewCloneError(models.ErrCodeValidation, "invalid base URL for asset extraction", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, models.NewCloneError(models.ErrCodeAssetFetch, "parse captured HTML", err)
	}

	refs := e.collect(doc, base)
	if len(refs) == 0 {
		return &Result{HTML: html}, nil
	}

	dl, err := e.download(ctx, refs)
	if err != nil {
		return nil, err
	}
	if err := e.resolveStylesheetRefs(ctx, dl); err != nil {
		return nil, err
	}

	e.rewrite(doc, base, dl.local)

	out, err := doc.Html()
	if err != nil {
		return nil, models.NewCloneError(models.ErrCodeAssetFetch, "serialize rewritten HTML", err)
	}
	return &Result{HTML: out, Assets: dl.records, Issues: dl.issues, Stylesheets: dl.stylesheets}, nil
}

// collect walks the document once and returns the deduplicated set of
// absolute asset URLs.
func (e *Extractor) collect(doc *goquery.Document, base *url.URL) []reference {
	seen := map[string]bool{}
	var refs []reference
	add := func(raw string) {
		abs, ok := resolveRef(base, raw)
		if !ok || seen[abs] {
			return
		}
		seen[abs] = true
		refs = append(refs, reference{abs: abs})
	}

	doc.Find("img, source, video, audio, embed, iframe, script").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			add(src)
		}
		if poster, ok := s.Attr("poster"); ok {
			add(poster)
		}
		if srcset, ok := s.Attr("srcset"); ok {
			for _, u := range srcsetURLs(srcset) {
				add(u)
			}
		}
	})

	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		rel, _ := s.Attr("rel")
		if !assetLinkRels[strings.ToLower(strings.TrimSpace(rel))] {
			return
		}
		if href, ok := s.Attr("href"); ok {
			add(href)
		}
	})

	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		for _, m := range reCSSURL.FindAllStringSubmatch(style, -1) {
			add(m[1])
		}
	})
	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		for _, m := range reCSSURL.FindAllStringSubmatch(s.Text(), -1) {
			add(m[1])
		}
	})

	return refs
}

type downloadSet struct {
	local       map[string]string // absolute URL → local path
	records     []models.AssetRecord
	issues      []models.Issue
	stylesheets map[string]string // local path → CSS body
	cssURLs     map[string]string // local path → absolute stylesheet URL
}

// download fetches all references with bounded parallelism.
func (e *Extractor) download(ctx context.Context, refs []reference) (*downloadSet, error) {
	sem := semaphore.NewWeighted(e.parallelism)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
		ds = &downloadSet{
			local:       make(map[string]string, len(refs)),
			stylesheets: map[string]string{},
			cssURLs:     map[string]string{},
		}
		failed int
	)

	for _, ref := range refs {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, models.NewCloneError(models.ErrCodeCancelled, "asset extraction cancelled", err)
		}
		wg.Add(1)
		go func(ref reference) {
			defer wg.Done()
			defer sem.Release(1)

			asset, err := e.fetcher.Fetch(ctx, ref.abs)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				ds.issues = append(ds.issues, models.Issue{
					Kind:     models.IssueAssetFetch,
					Severity: "warning",
					Message:  fmt.Sprintf("failed to download %s", ref.abs),
					Detail:   err.Error(),
				})
				return
			}
			lp := localPath(ref.abs, asset.ContentType)
			ds.local[ref.abs] = lp
			if asset.ContentType == "text/css" {
				ds.stylesheets[lp] = string(asset.Body)
				ds.cssURLs[lp] = ref.abs
			}
			ds.records = append(ds.records, models.AssetRecord{
				LocalPath:   lp,
				OriginalURL: ref.abs,
				ByteSize:    int64(len(asset.Body)),
				MimeType:    asset.ContentType,
			})
		}(ref)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil, models.NewCloneError(models.ErrCodeCancelled, "asset extraction cancelled", ctx.Err())
	}

	// A handful of 404s is normal on real sites. A large failure
	// fraction means the origin is refusing the client entirely.
	if len(refs) >= 4 && float64(failed)/float64(len(refs)) > e.threshold {
		return nil, models.NewCloneError(
			models.ErrCodeAssetFetch,
			fmt.Sprintf("%d of %d assets failed to download", failed, len(refs)),
			nil,
		)
	}

	sort.Slice(ds.records, func(i, j int) bool { return ds.records[i].OriginalURL < ds.records[j].OriginalURL })
	return ds, nil
}

// resolveStylesheetRefs downloads the resources referenced from inside
// downloaded stylesheets (fonts, background images, @import chains) and
// rewrites those references to local paths. url() refs resolve against
// the stylesheet's own URL, not the page URL. The rewritten references
// are page-relative: stylesheet bodies are consumed inlined into the
// document, they are never served from their own directory.
func (e *Extractor) resolveStylesheetRefs(ctx context.Context, ds *downloadSet) error {
	requested := map[string]bool{}
	scanned := map[string]bool{}

	// @import can chain stylesheets; three levels covers real sites.
	for depth := 0; depth < 3; depth++ {
		var refs []reference
		for lp, absURL := range ds.cssURLs {
			if scanned[lp] {
				continue
			}
			scanned[lp] = true
			cssBase, err := url.Parse(absURL)
			if err != nil {
				continue
			}
			for _, m := range reCSSURL.FindAllStringSubmatch(ds.stylesheets[lp], -1) {
				abs, ok := resolveRef(cssBase, m[1])
				if !ok || requested[abs] {
					continue
				}
				if _, done := ds.local[abs]; done {
					continue
				}
				requested[abs] = true
				refs = append(refs, reference{abs: abs})
			}
		}
		if len(refs) == 0 {
			break
		}

		sub, err := e.download(ctx, refs)
		if err != nil {
			return err
		}
		for abs, lp := range sub.local {
			ds.local[abs] = lp
		}
		for lp, body := range sub.stylesheets {
			ds.stylesheets[lp] = body
		}
		for lp, abs := range sub.cssURLs {
			ds.cssURLs[lp] = abs
		}
		ds.records = append(ds.records, sub.records...)
		ds.issues = append(ds.issues, sub.issues...)
	}

	for lp, absURL := range ds.cssURLs {
		cssBase, err := url.Parse(absURL)
		if err != nil {
			continue
		}
		ds.stylesheets[lp] = reCSSURL.ReplaceAllStringFunc(ds.stylesheets[lp], func(m string) string {
			sub := reCSSURL.FindStringSubmatch(m)
			if abs, ok := resolveRef(cssBase, sub[1]); ok {
				if local, ok := ds.local[abs]; ok {
					return fmt.Sprintf("url(%s)", local)
				}
			}
			return m
		})
	}

	sort.Slice(ds.records, func(i, j int) bool { return ds.records[i].OriginalURL < ds.records[j].OriginalURL })
	return nil
}

// rewrite walks the document a second time replacing every reference
// that downloaded successfully with its local path. Failed references
// keep their original URLs.
func (e *Extractor) rewrite(doc *goquery.Document, base *url.URL, local map[string]string) {
	lookup := func(raw string) (string, bool) {
		abs, ok := resolveRef(base, raw)
		if !ok {
			return "", false
		}
		lp, ok := local[abs]
		return lp, ok
	}

	doc.Find("img, source, video, audio, embed, iframe, script").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			if lp, ok := lookup(src); ok {
				s.SetAttr("src", lp)
			}
		}
		if poster, ok := s.Attr("poster"); ok {
			if lp, ok := lookup(poster); ok {
				s.SetAttr("poster", lp)
			}
		}
		if srcset, ok := s.Attr("srcset"); ok {
			s.SetAttr("srcset", rewriteSrcset(srcset, lookup))
		}
	})

	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		rel, _ := s.Attr("rel")
		if !assetLinkRels[strings.ToLower(strings.TrimSpace(rel))] {
			return
		}
		if href, ok := s.Attr("href"); ok {
			if lp, ok := lookup(href); ok {
				s.SetAttr("href", lp)
			}
		}
	})

	rewriteCSS := func(css string) string {
		return reCSSURL.ReplaceAllStringFunc(css, func(m string) string {
			sub := reCSSURL.FindStringSubmatch(m)
			if lp, ok := lookup(sub[1]); ok {
				return fmt.Sprintf("url(%s)", lp)
			}
			return m
		})
	}
	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		s.SetAttr("style", rewriteCSS(style))
	})
	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		s.SetText(rewriteCSS(s.Text()))
	})
}

// resolveRef resolves raw against base and reports whether the result
// is a fetchable http(s) URL.
func resolveRef(base *url.URL, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return "", false
	}
	lower := strings.ToLower(raw)
	for _, scheme := range []string{"data:", "blob:", "javascript:", "mailto:", "tel:", "about:"} {
		if strings.HasPrefix(lower, scheme) {
			return "", false
		}
	}
	u, err := base.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}

// srcsetURLs extracts the URL component of every srcset candidate.
func srcsetURLs(srcset string) []string {
	var urls []string
	for _, candidate := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(candidate))
		if len(fields) > 0 {
			urls = append(urls, fields[0])
		}
	}
	return urls
}

// rewriteSrcset rewrites each candidate URL in place, preserving the
// width/density descriptors.
func rewriteSrcset(srcset string, lookup func(string) (string, bool)) string {
	candidates := strings.Split(srcset, ",")
	out := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		fields := strings.Fields(strings.TrimSpace(candidate))
		if len(fields) == 0 {
			continue
		}
		if lp, ok := lookup(fields[0]); ok {
			fields[0] = lp
		}
		out = append(out, strings.Join(fields, " "))
	}
	return strings.Join(out, ", ")
}

// extByType maps sniffed content types to file extensions for URLs that
// carry none of their own.
var extByType = map[string]string{
	"text/css":               ".css",
	"text/javascript":        ".js",
	"application/javascript": ".js",
	"image/png":              ".png",
	"image/jpeg":             ".jpg",
	"image/gif":              ".gif",
	"image/webp":             ".webp",
	"image/svg+xml":          ".svg",
	"image/x-icon":           ".ico",
	"font/woff2":             ".woff2",
	"font/woff":              ".woff",
	"font/ttf":               ".ttf",
	"application/json":       ".json",
	"text/html":              ".html",
}

// localPath derives a stable local path for an asset URL. The hash
// prefix keeps same-named files from distinct directories apart.
func localPath(absURL, contentType string) string {
	sum := sha1.Sum([]byte(absURL))
	prefix := hex.EncodeToString(sum[:4])

	name := "asset"
	if u, err := url.Parse(absURL); err == nil {
		if b := path.Base(u.Path); b != "" && b != "/" && b != "." {
			name = b
		}
	}
	if path.Ext(name) == "" {
		if ext, ok := extByType[contentType]; ok {
			name += ext
		}
	}
	return "assets/" + prefix + "_" + name
}
