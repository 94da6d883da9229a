// Package detect classifies a captured page's technology stack from three
// independent evidence sources: response headers, static HTML signatures,
// and runtime behavior. Absence of matches yields an empty profile, never
// an error.
package detect

import (
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/siteforge/siteforge/models"
)

// Detector matches the built-in signature table. Safe for concurrent use;
// all state is immutable after construction.
type Detector struct {
	sigs []signature
}

// New creates a Detector over the built-in signature table.
func New() *Detector {
	return &Detector{sigs: signatures}
}

// evidence accumulates per-technology signals across passes.
type evidence struct {
	sig        signature
	confidence int
	version    string
}

// Detect runs the header, static-HTML, and behavioral passes and returns
// the merged confidence-scored profile, sorted by confidence descending.
// globals may be nil when no live DOM was available (static capture).
//
// Conflicting detections — two mutually-exclusive CMS signatures both
// firing — are retained side by side; the analysis pipeline surfaces the
// conflict, not the detector.
func (d *Detector) Detect(headers map[string][]string, html string, globals map[string]bool) []models.Technology {
	found := map[string]*evidence{}
	add := func(sig signature, conf int, version string) {
		ev, ok := found[sig.Name]
		if !ok {
			ev = &evidence{sig: sig}
			found[sig.Name] = ev
		}
		ev.confidence = mergeConfidence(ev.confidence, conf)
		if version != "" && ev.version == "" {
			ev.version = version
		}
	}

	doc, docErr := goquery.NewDocumentFromReader(strings.NewReader(html))

	var generator string
	var scriptSrcs []string
	if docErr == nil {
		generator, _ = doc.Find(`meta[name="generator"]`).Attr("content")
		doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
			if src, ok := s.Attr("src"); ok {
				scriptSrcs = append(scriptSrcs, src)
			}
		})
	}

	for _, sig := range d.sigs {
		// Pass 1: header signatures.
		for name, pattern := range sig.Headers {
			values, ok := headerValues(headers, name)
			if !ok {
				continue
			}
			if pattern == nil {
				add(sig, confHeader, "")
				continue
			}
			for _, v := range values {
				if m := pattern.FindStringSubmatch(v); m != nil {
					add(sig, confHeader, submatchVersion(m))
				}
			}
		}

		// Pass 2: static HTML signatures.
		if sig.Generator != nil && generator != "" {
			if m := sig.Generator.FindStringSubmatch(generator); m != nil {
				add(sig, confGenerator, submatchVersion(m))
			}
		}
		for _, pattern := range sig.HTML {
			if m := pattern.FindStringSubmatch(html); m != nil {
				add(sig, confHTML, submatchVersion(m))
				break
			}
		}
		for _, pattern := range sig.Scripts {
			for _, src := range scriptSrcs {
				if m := pattern.FindStringSubmatch(src); m != nil {
					add(sig, confScript, submatchVersion(m))
					break
				}
			}
		}

		// Pass 3: behavioral signatures (live DOM globals).
		for _, g := range sig.Globals {
			if globals[g] {
				add(sig, confBehavioral, "")
				break
			}
		}
	}

	out := make([]models.Technology, 0, len(found))
	for _, ev := range found {
		out = append(out, models.Technology{
			Name:       ev.sig.Name,
			Category:   ev.sig.Category,
			Version:    ev.version,
			Confidence: ev.confidence,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// mergeConfidence combines two independent signals. Each additional
// signal shrinks the remaining doubt proportionally, so confidence rises
// with corroboration but never exceeds 100.
func mergeConfidence(a, b int) int {
	c := 100 - (100-a)*(100-b)/100
	if c > 100 {
		c = 100
	}
	return c
}

// submatchVersion returns the first capture group of a match, when the
// pattern defines one and it looks like a version number.
func submatchVersion(m []string) string {
	if len(m) < 2 {
		return ""
	}
	v := strings.TrimSpace(m[1])
	if v == "" || !versionShape.MatchString(v) {
		return ""
	}
	return v
}

var versionShape = regexp.MustCompile(`^\d+(\.\d+)*$`)

// headerValues looks up a header case-insensitively.
func headerValues(headers map[string][]string, name string) ([]string, bool) {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}
