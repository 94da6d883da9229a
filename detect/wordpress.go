package detect

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/siteforge/siteforge/models"
)

var (
	reThemePath  = regexp.MustCompile(`/wp-content/themes/([a-zA-Z0-9_-]+)/`)
	rePluginPath = regexp.MustCompile(`/wp-content/plugins/([a-zA-Z0-9_-]+)/`)
	reWPVersion  = regexp.MustCompile(`(?i)WordPress\s*([\d.]+)`)
	reVerQuery   = regexp.MustCompile(`[?&]ver=([\d.]+)`)
)

// WordPressProfile is the CMS-detection subset served by
// POST /api/detect-wordpress, usable without a full capture.
type WordPressProfile struct {
	IsWordPress  bool
	Version      string
	Theme        string
	Plugins      []string
	Technologies []models.Technology
}

// DetectWordPress runs the full detector and extracts WordPress-specific
// hints: version from the generator meta, active theme and plugins from
// wp-content asset paths.
func (d *Detector) DetectWordPress(headers map[string][]string, html string) *WordPressProfile {
	techs := d.Detect(headers, html, nil)

	profile := &WordPressProfile{Technologies: techs}
	for _, t := range techs {
		if t.Name == "WordPress" && t.Confidence >= 50 {
			profile.IsWordPress = true
			profile.Version = t.Version
		}
	}
	if !profile.IsWordPress {
		return profile
	}

	if profile.Version == "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
			if gen, ok := doc.Find(`meta[name="generator"]`).Attr("content"); ok {
				if m := reWPVersion.FindStringSubmatch(gen); m != nil {
					profile.Version = m[1]
				}
			}
		}
	}
	if profile.Version == "" {
		// Core assets carry ?ver=<wp-version> on default installs.
		if m := reVerQuery.FindStringSubmatch(html); m != nil {
			profile.Version = m[1]
		}
	}

	if m := reThemePath.FindStringSubmatch(html); m != nil {
		profile.Theme = m[1]
	}

	seen := map[string]struct{}{}
	for _, m := range rePluginPath.FindAllStringSubmatch(html, -1) {
		if _, dup := seen[m[1]]; dup {
			continue
		}
		seen[m[1]] = struct{}{}
		profile.Plugins = append(profile.Plugins, m[1])
	}

	return profile
}
