package detect

import (
	"testing"

	"github.com/siteforge/siteforge/models"
)

const wpHTML = `<!DOCTYPE html><html><head>
<meta name="generator" content="WordPress 6.4.2">
<link rel="stylesheet" href="/wp-content/themes/astra/style.css?ver=6.4.2">
<script src="/wp-content/plugins/elementor/assets/js/frontend.min.js"></script>
<script src="/wp-includes/js/jquery/jquery.min.js"></script>
</head><body class="elementor-section home">
<div class="elementor-widget"></div>
</body></html>`

func findTech(techs []models.Technology, name string) (models.Technology, bool) {
	for _, t := range techs {
		if t.Name == name {
			return t, true
		}
	}
	return models.Technology{}, false
}

func TestDetect_WordPressSignals(t *testing.T) {
	d := New()
	headers := map[string][]string{
		"Server":     {"nginx/1.24.0"},
		"X-Pingback": {"https://example.com/xmlrpc.php"},
	}

	techs := d.Detect(headers, wpHTML, map[string]bool{"wp": true, "jQuery": true})

	wp, ok := findTech(techs, "WordPress")
	if !ok {
		t.Fatal("WordPress not detected")
	}
	if wp.Version != "6.4.2" {
		t.Errorf("WordPress version = %q, want 6.4.2", wp.Version)
	}
	// Generator + html + script + header + behavioral should corroborate
	// to near-certainty.
	if wp.Confidence < 95 {
		t.Errorf("WordPress confidence = %d, want >= 95", wp.Confidence)
	}

	if _, ok := findTech(techs, "Elementor"); !ok {
		t.Error("Elementor not detected")
	}
	if nginx, ok := findTech(techs, "Nginx"); !ok {
		t.Error("Nginx not detected")
	} else if nginx.Version != "1.24.0" {
		t.Errorf("Nginx version = %q, want 1.24.0", nginx.Version)
	}
}

func TestDetect_ConfidenceBounds(t *testing.T) {
	d := New()
	headers := map[string][]string{
		"Server":          {"cloudflare"},
		"Cf-Ray":          {"abc123-FRA"},
		"Cf-Cache-Status": {"HIT"},
	}

	techs := d.Detect(headers, wpHTML, map[string]bool{"wp": true, "elementorFrontend": true})
	for _, tech := range techs {
		if tech.Confidence < 0 || tech.Confidence > 100 {
			t.Errorf("%s confidence %d out of [0,100]", tech.Name, tech.Confidence)
		}
	}
}

func TestDetect_EmptyOnNoMatches(t *testing.T) {
	d := New()
	techs := d.Detect(map[string][]string{}, "<html><body>plain page</body></html>", nil)
	if len(techs) != 0 {
		t.Errorf("expected empty profile, got %d entries", len(techs))
	}
}

func TestDetect_ConflictingCMSRetained(t *testing.T) {
	// Two mutually-exclusive CMS signatures firing must both survive.
	html := `<html><head>
<meta name="generator" content="Webflow">
</head><body>
<div class="w-container" data-wf-page="x"></div>
<link href="/wp-content/themes/foo/style.css">
</body></html>`

	d := New()
	techs := d.Detect(map[string][]string{}, html, nil)

	if _, ok := findTech(techs, "Webflow"); !ok {
		t.Error("Webflow dropped")
	}
	if _, ok := findTech(techs, "WordPress"); !ok {
		t.Error("WordPress dropped")
	}
}

func TestMergeConfidence(t *testing.T) {
	tests := []struct {
		name string
		a, b int
		want int
	}{
		{"zero plus signal", 0, 70, 70},
		{"two signals corroborate", 70, 50, 85},
		{"never exceeds ceiling", 90, 90, 99},
		{"full certainty stays", 100, 70, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mergeConfidence(tt.a, tt.b); got != tt.want {
				t.Errorf("mergeConfidence(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestDetectWordPress_ThemeAndPlugins(t *testing.T) {
	d := New()
	profile := d.DetectWordPress(map[string][]string{}, wpHTML)

	if !profile.IsWordPress {
		t.Fatal("IsWordPress = false")
	}
	if profile.Version != "6.4.2" {
		t.Errorf("version = %q, want 6.4.2", profile.Version)
	}
	if profile.Theme != "astra" {
		t.Errorf("theme = %q, want astra", profile.Theme)
	}
	if len(profile.Plugins) != 1 || profile.Plugins[0] != "elementor" {
		t.Errorf("plugins = %v, want [elementor]", profile.Plugins)
	}
}

func TestDetectWordPress_NonWordPressSite(t *testing.T) {
	d := New()
	profile := d.DetectWordPress(map[string][]string{}, `<html><head><meta name="generator" content="Webflow"></head><body></body></html>`)

	if profile.IsWordPress {
		t.Error("IsWordPress = true for a Webflow site")
	}
	if profile.Theme != "" || len(profile.Plugins) != 0 {
		t.Error("theme/plugins extracted for a non-WordPress site")
	}
}
