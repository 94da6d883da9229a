// Package optimize rewrites the captured document for delivery
// performance. Transforms run in a fixed order and each fails soft: a
// transform that errors records a warning and the pipeline keeps the
// document it had. Optimization never fails a job.
package optimize

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tdewolff/minify/v2"
	mcss "github.com/tdewolff/minify/v2/css"
	mhtml "github.com/tdewolff/minify/v2/html"
	mjs "github.com/tdewolff/minify/v2/js"

	"github.com/siteforge/siteforge/config"
)

// inlineBudget caps how much CSS the critical-path transform inlines.
// Stylesheets over this size keep their link and get deferred instead.
const inlineBudget = 14 << 10

// Input carries the document plus the downloaded stylesheet bodies the
// CSS transforms operate on.
type Input struct {
	HTML        string
	Stylesheets map[string]string // local path → css text
}

// Result is the optimized document and the record of what ran.
type Result struct {
	HTML     string
	Applied  []string
	Warnings []string
}

type Engine struct {
	cfg config.OptimizerConfig
	m   *minify.M
}

func New(cfg config.OptimizerConfig) *Engine {
	m := minify.New()
	m.AddFunc("text/html", mhtml.Minify)
	m.AddFunc("text/css", mcss.Minify)
	m.AddFunc("application/javascript", mjs.Minify)
	return &Engine{cfg: cfg, m: m}
}

// transform mutates the parsed document in place.
type transform struct {
	name    string
	enabled bool
	apply   func(doc *goquery.Document, in Input) error
}

// Optimize runs the enabled transforms in order. On any failure the
// document from the last successful transform survives.
func (e *Engine) Optimize(in Input) Result {
	res := Result{HTML: in.HTML}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(in.HTML))
	if err != nil {
		res.Warnings = append(res.Warnings, "parse document: "+err.Error())
		return res
	}

	transforms := []transform{
		{"critical-css", e.cfg.CriticalCSS, e.criticalCSS},
		{"defer-loading", e.cfg.DeferLoading, e.deferLoading},
		{"image-decoding", e.cfg.ImageRewrite, e.imageDecoding},
		{"srcset-sizes", e.cfg.Srcset, e.srcsetSizes},
		{"lazy-load", e.cfg.LazyLoad, e.lazyLoad},
		{"font-display", e.cfg.FontSubset, e.fontDisplay},
	}
	for _, t := range transforms {
		if !t.enabled {
			continue
		}
		if err := t.apply(doc, in); err != nil {
			slog.Warn("optimization transform failed", "transform", t.name, "error", err)
			res.Warnings = append(res.Warnings, t.name+": "+err.Error())
			continue
		}
		res.Applied = append(res.Applied, t.name)
	}

	out, err := doc.Html()
	if err != nil {
		res.Warnings = append(res.Warnings, "serialize document: "+err.Error())
		return res
	}
	res.HTML = out

	if e.cfg.Minify {
		minified, err := e.m.String("text/html", out)
		if err != nil {
			slog.Warn("optimization transform failed", "transform", "minify", "error", err)
			res.Warnings = append(res.Warnings, "minify: "+err.Error())
		} else {
			res.HTML = minified
			res.Applied = append(res.Applied, "minify")
		}
	}

	return res
}

// criticalCSS inlines small stylesheets into <style> blocks, removing
// their render-blocking link. Large stylesheets are left for the defer
// transform.
func (e *Engine) criticalCSS(doc *goquery.Document, in Input) error {
	if len(in.Stylesheets) == 0 {
		return nil
	}
	doc.Find(`link[rel="stylesheet"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		css, ok := in.Stylesheets[href]
		if !ok || len(css) > inlineBudget {
			return
		}
		if minified, err := e.m.String("text/css", css); err == nil {
			css = minified
		}
		s.ReplaceWithHtml("<style>" + css + "</style>")
	})
	return nil
}

// deferLoading defers render-blocking resources: parser-blocking
// scripts get the defer attribute, remaining stylesheet links get the
// media-swap pattern so they load without blocking first paint.
func (e *Engine) deferLoading(doc *goquery.Document, _ Input) error {
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		if _, ok := s.Attr("async"); ok {
			return
		}
		if _, ok := s.Attr("defer"); ok {
			return
		}
		if t, _ := s.Attr("type"); t == "module" {
			return
		}
		s.SetAttr("defer", "")
	})
	doc.Find(`link[rel="stylesheet"]`).Each(func(_ int, s *goquery.Selection) {
		if media, _ := s.Attr("media"); media != "" && media != "all" {
			return
		}
		s.SetAttr("media", "print")
		s.SetAttr("onload", "this.media='all'")
	})
	return nil
}

// imageDecoding marks images for off-main-thread decode.
func (e *Engine) imageDecoding(doc *goquery.Document, _ Input) error {
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if _, ok := s.Attr("decoding"); !ok {
			s.SetAttr("decoding", "async")
		}
	})
	return nil
}

// srcsetSizes adds a sizes hint to responsive images that declare
// candidates but no layout width, which otherwise forces the browser
// to assume 100vw at the largest candidate.
func (e *Engine) srcsetSizes(doc *goquery.Document, _ Input) error {
	doc.Find("img[srcset]").Each(func(_ int, s *goquery.Selection) {
		if _, ok := s.Attr("sizes"); !ok {
			s.SetAttr("sizes", "(max-width: 768px) 100vw, 1280px")
		}
	})
	return nil
}

// lazyLoad defers offscreen media. The first images in document order
// stay eager since they are likely the LCP candidates.
func (e *Engine) lazyLoad(doc *goquery.Document, _ Input) error {
	const eagerCount = 2
	doc.Find("img").Each(func(i int, s *goquery.Selection) {
		if i < eagerCount {
			return
		}
		if _, ok := s.Attr("loading"); !ok {
			s.SetAttr("loading", "lazy")
		}
	})
	doc.Find("iframe").Each(func(_ int, s *goquery.Selection) {
		if _, ok := s.Attr("loading"); !ok {
			s.SetAttr("loading", "lazy")
		}
	})
	return nil
}

var (
	reFontFace    = regexp.MustCompile(`@font-face\s*\{[^}]*\}`)
	reFontDisplay = regexp.MustCompile(`font-display\s*:`)
	reUnicode     = regexp.MustCompile(`unicode-range\s*:`)
)

// fontDisplay patches @font-face rules in inline styles: swap display
// so text renders before fonts arrive, and a latin unicode-range so
// browsers skip downloading faces no glyph on the page needs.
func (e *Engine) fontDisplay(doc *goquery.Document, _ Input) error {
	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		css := s.Text()
		if !strings.Contains(css, "@font-face") {
			return
		}
		patched := reFontFace.ReplaceAllStringFunc(css, func(rule string) string {
			if !reFontDisplay.MatchString(rule) {
				rule = strings.TrimSuffix(rule, "}") + "font-display:swap;}"
			}
			if !reUnicode.MatchString(rule) {
				rule = strings.TrimSuffix(rule, "}") + "unicode-range:U+0000-00FF,U+0131,U+0152-0153,U+2000-206F;}"
			}
			return rule
		})
		if patched != css {
			s.SetText(patched)
		}
	})
	return nil
}

// Summary renders the applied-transform list for logs.
func (r Result) Summary() string {
	return fmt.Sprintf("%d transforms applied, %d warnings", len(r.Applied), len(r.Warnings))
}
