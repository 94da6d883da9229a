package optimize

import (
	"strings"
	"testing"

	"github.com/siteforge/siteforge/config"
)

func allOn() config.OptimizerConfig {
	return config.OptimizerConfig{
		CriticalCSS:  true,
		DeferLoading: true,
		Minify:       true,
		ImageRewrite: true,
		Srcset:       true,
		LazyLoad:     true,
		FontSubset:   true,
	}
}

const pageHTML = `<!DOCTYPE html><html><head>
<link rel="stylesheet" href="assets/aa11_site.css">
<link rel="stylesheet" href="assets/bb22_huge.css">
<script src="assets/cc33_app.js"></script>
<script src="assets/dd44_analytics.js" async></script>
<style>@font-face { font-family: "Brand"; src: url(assets/ee55_brand.woff2); }</style>
</head><body>
<img src="assets/hero.png" srcset="assets/hero.png 1x, assets/hero@2x.png 2x">
<img src="assets/second.png">
<img src="assets/third.png">
<iframe src="https://maps.example.com/embed"></iframe>
</body></html>`

func stylesheets() map[string]string {
	return map[string]string{
		"assets/aa11_site.css": "body { color: #222222; }",
		"assets/bb22_huge.css": "h1 { margin: 0px; }" + strings.Repeat("/* pad */", 4000),
	}
}

func TestOptimize_AllTransforms(t *testing.T) {
	res := New(allOn()).Optimize(Input{HTML: pageHTML, Stylesheets: stylesheets()})

	if len(res.Warnings) != 0 {
		t.Fatalf("warnings: %v", res.Warnings)
	}
	want := []string{"critical-css", "defer-loading", "image-decoding", "srcset-sizes", "lazy-load", "font-display", "minify"}
	if len(res.Applied) != len(want) {
		t.Fatalf("applied = %v, want %v", res.Applied, want)
	}
	for i := range want {
		if res.Applied[i] != want[i] {
			t.Errorf("applied[%d] = %q, want %q", i, res.Applied[i], want[i])
		}
	}

	// Small stylesheet inlined, its link gone; large one deferred.
	if strings.Contains(res.HTML, "aa11_site.css") {
		t.Error("small stylesheet link not inlined")
	}
	if !strings.Contains(res.HTML, "color:#222") {
		t.Error("inlined CSS not minified")
	}
	if !strings.Contains(res.HTML, "bb22_huge.css") {
		t.Error("large stylesheet link removed")
	}
	if !strings.Contains(res.HTML, "this.media='all'") {
		t.Error("large stylesheet not deferred")
	}

	if !strings.Contains(res.HTML, "defer") {
		t.Error("blocking script not deferred")
	}
	if !strings.Contains(res.HTML, "loading=lazy") && !strings.Contains(res.HTML, `loading="lazy"`) {
		t.Error("lazy loading not applied")
	}
	if !strings.Contains(res.HTML, "font-display:swap") {
		t.Error("font-display not patched")
	}
	if !strings.Contains(res.HTML, "unicode-range:U+0000-00FF") {
		t.Error("unicode-range not added")
	}
	if !strings.Contains(res.HTML, "sizes=") {
		t.Error("sizes hint not added")
	}
}

func TestOptimize_FirstImagesStayEager(t *testing.T) {
	res := New(allOn()).Optimize(Input{HTML: pageHTML})

	heroIdx := strings.Index(res.HTML, "hero.png")
	lazyIdx := strings.Index(res.HTML, "loading=")
	if lazyIdx != -1 && heroIdx != -1 && lazyIdx < heroIdx {
		t.Error("first image was lazy-loaded")
	}
}

func TestOptimize_DisabledTransformsSkipped(t *testing.T) {
	cfg := config.OptimizerConfig{Minify: true}
	res := New(cfg).Optimize(Input{HTML: pageHTML, Stylesheets: stylesheets()})

	if len(res.Applied) != 1 || res.Applied[0] != "minify" {
		t.Errorf("applied = %v, want [minify]", res.Applied)
	}
	if !strings.Contains(res.HTML, "aa11_site.css") {
		t.Error("stylesheet inlined with critical-css disabled")
	}
	if strings.Contains(res.HTML, "loading=") {
		t.Error("lazy loading applied while disabled")
	}
}

func TestOptimize_NeverFailsOnBrokenInput(t *testing.T) {
	res := New(allOn()).Optimize(Input{HTML: "<div><p>unclosed"})
	if res.HTML == "" {
		t.Error("result HTML empty")
	}
}

func TestOptimize_AsyncScriptsUntouched(t *testing.T) {
	cfg := config.OptimizerConfig{DeferLoading: true}
	res := New(cfg).Optimize(Input{HTML: pageHTML})

	analytics := res.HTML[strings.Index(res.HTML, "dd44_analytics"):]
	analytics = analytics[:strings.Index(analytics, ">")]
	if strings.Contains(analytics, "defer") {
		t.Errorf("async script also got defer: %q", analytics)
	}
}
