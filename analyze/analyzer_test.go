package analyze

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/siteforge/siteforge/capture"
	"github.com/siteforge/siteforge/config"
	"github.com/siteforge/siteforge/models"
)

func analysisConfig() config.AnalysisConfig {
	return config.AnalysisConfig{
		PerformanceWeight:   0.35,
		SEOWeight:           0.25,
		SecurityWeight:      0.25,
		AccessibilityWeight: 0.15,
	}
}

func TestClassify_Thresholds(t *testing.T) {
	tests := []struct {
		metric string
		value  float64
		want   models.Rating
	}{
		{"lcp", 2000, models.RatingGood},
		{"lcp", 2500, models.RatingGood},
		{"lcp", 3000, models.RatingNeedsImprovement},
		{"lcp", 4500, models.RatingPoor},
		{"fcp", 1800, models.RatingGood},
		{"fcp", 2900, models.RatingNeedsImprovement},
		{"ttfb", 100, models.RatingGood},
		{"ttfb", 2000, models.RatingPoor},
		{"inp", 300, models.RatingNeedsImprovement},
		{"cls", 0.05, models.RatingGood},
		{"cls", 0.2, models.RatingNeedsImprovement},
		{"cls", 0.3, models.RatingPoor},
	}
	for _, tt := range tests {
		if got := classify(tt.metric, tt.value); got.Rating != tt.want {
			t.Errorf("classify(%s, %v) = %s, want %s", tt.metric, tt.value, got.Rating, tt.want)
		}
	}
}

func TestComputeWebVitals_CLSAndTBT(t *testing.T) {
	snap := &capture.PageSnapshot{
		Timing: capture.TimingSamples{TTFBMs: 200, FCPMs: 900, LCPMs: 1400, DOMContentLoadedMs: 1100},
		LayoutShifts: []capture.LayoutShift{
			{Value: 0.08, TimeMs: 300},
			{Value: 0.05, TimeMs: 700},
		},
		LongTasks: []models.LongTask{
			{StartMs: 500, DurationMs: 120},
			{StartMs: 900, DurationMs: 80},
		},
	}

	vitals, additional := computeWebVitals(snap)

	if got := vitals.CLS.Value; got < 0.129 || got > 0.131 {
		t.Errorf("CLS = %v, want 0.13", got)
	}
	if vitals.CLS.Rating != models.RatingNeedsImprovement {
		t.Errorf("CLS rating = %s", vitals.CLS.Rating)
	}
	// (120-50) + (80-50)
	if additional.TBT != 100 {
		t.Errorf("TBT = %v, want 100", additional.TBT)
	}
	// Last long task ends at 980, before DOMContentLoaded.
	if additional.TTI != 1100 {
		t.Errorf("TTI = %v, want 1100", additional.TTI)
	}
	if vitals.LCP.Rating != models.RatingGood {
		t.Errorf("LCP rating = %s", vitals.LCP.Rating)
	}
}

func TestCompositeScore_RedistributesDisabledWeight(t *testing.T) {
	cfg := analysisConfig()

	full := &models.CategoryScores{
		Performance:   intPtr(80),
		SEO:           intPtr(60),
		Security:      intPtr(100),
		Accessibility: intPtr(40),
	}
	// .35*80 + .25*60 + .25*100 + .15*40 = 74
	if got := compositeScore(cfg, full); got != 74 {
		t.Errorf("overall = %d, want 74", got)
	}

	only := &models.CategoryScores{Performance: intPtr(80)}
	if got := compositeScore(cfg, only); got != 80 {
		t.Errorf("single-category overall = %d, want 80", got)
	}

	none := &models.CategoryScores{}
	if got := compositeScore(cfg, none); got != 0 {
		t.Errorf("empty overall = %d, want 0", got)
	}
}

var goodPageHTML = `<!DOCTYPE html><html lang="en"><head>
<title>Handmade ceramics from a small studio</title>
<meta name="description" content="We throw, glaze, and fire small-batch ceramic tableware in our studio, and ship every piece worldwide.">
<meta name="viewport" content="width=device-width, initial-scale=1">
<link rel="canonical" href="https://example.com/">
<meta property="og:title" content="Handmade ceramics">
<script type="application/ld+json">{"@type":"Organization"}</script>
</head><body>
<main><h1>Handmade ceramics</h1><h2>Our process</h2>
<img src="/wheel.jpg" alt="a potter at the wheel">
<p>` + strings.Repeat("clay glazes kilns wheels firing schedules and studio practice ", 40) + `</p>
</main>
<nav><a href="/shop">shop</a></nav>
</body></html>`

func TestAuditSEO_CleanPageScoresHigh(t *testing.T) {
	res, err := auditSEO("https://example.com/", goodPageHTML)
	if err != nil {
		t.Fatalf("auditSEO: %v", err)
	}
	if res.score < 90 {
		t.Errorf("score = %d, want >= 90; issues: %+v", res.score, res.issues)
	}
}

func TestAuditSEO_FlagsMissingBasics(t *testing.T) {
	res, err := auditSEO("https://example.com/", `<html><head></head><body><h3>hi</h3><img src="a.png"></body></html>`)
	if err != nil {
		t.Fatalf("auditSEO: %v", err)
	}
	if res.score >= 70 {
		t.Errorf("score = %d, want < 70", res.score)
	}
	wantMessages := []string{"no <title>", "no meta description", "no <h1>"}
	for _, want := range wantMessages {
		found := false
		for _, issue := range res.issues {
			if strings.Contains(issue.Message, want) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("no issue mentioning %q; issues: %+v", want, res.issues)
		}
	}
}

func TestAuditSEO_MultibyteTitleCountsRunes(t *testing.T) {
	// 28 CJK characters: 84 bytes but well inside the 10-60 bound.
	title := strings.Repeat("日本語の", 7)
	html := `<html><head><title>` + title + `</title></head><body><h1>h</h1></body></html>`
	res, err := auditSEO("https://example.com/", html)
	if err != nil {
		t.Fatalf("auditSEO: %v", err)
	}
	for _, issue := range res.issues {
		if strings.Contains(issue.Message, "title is") {
			t.Errorf("title length flagged: %+v", issue)
		}
	}
}

func TestAuditSecurity_PlainHTTPAndMissingHeaders(t *testing.T) {
	res := auditSecurity("http://example.com/", http.Header{}, "<html></html>", nil)
	if res.score > 50 {
		t.Errorf("score = %d, want <= 50", res.score)
	}
	foundHTTP := false
	for _, issue := range res.issues {
		if issue.Severity == "critical" && strings.Contains(issue.Message, "plain HTTP") {
			foundHTTP = true
		}
	}
	if !foundHTTP {
		t.Errorf("missing plain-HTTP finding; issues: %+v", res.issues)
	}
}

func TestAuditSecurity_VulnerableLibrary(t *testing.T) {
	techs := []models.Technology{{Name: "jQuery", Category: "library", Version: "1.12.4", Confidence: 90}}
	res := auditSecurity("https://example.com/", fullSecurityHeaders(), "<html></html>", techs)

	found := false
	for _, issue := range res.issues {
		if strings.Contains(issue.Message, "jQuery 1.12.4") {
			found = true
		}
	}
	if !found {
		t.Errorf("vulnerable jQuery not flagged; issues: %+v", res.issues)
	}

	safe := []models.Technology{{Name: "jQuery", Category: "library", Version: "3.7.1", Confidence: 90}}
	res = auditSecurity("https://example.com/", fullSecurityHeaders(), "<html></html>", safe)
	if len(res.issues) != 0 {
		t.Errorf("current jQuery flagged: %+v", res.issues)
	}
}

func TestAuditSecurity_EmbeddedCredential(t *testing.T) {
	html := `<script>var config = {api_key: "sk9Xq2LmZ8vRtY4wNpB7cJd3KfGh6QaE"};</script>`
	res := auditSecurity("https://example.com/", fullSecurityHeaders(), html, nil)

	found := false
	for _, issue := range res.issues {
		if issue.Severity == "critical" {
			found = true
		}
	}
	if !found {
		t.Errorf("embedded credential not flagged; issues: %+v", res.issues)
	}
}

func TestShannonEntropy(t *testing.T) {
	if e := shannonEntropy("aaaaaaaaaaaaaaaaaaaa"); e != 0 {
		t.Errorf("uniform string entropy = %v, want 0", e)
	}
	if e := shannonEntropy("sk9Xq2LmZ8vRtY4wNpB7cJd3KfGh6QaE"); e < 4.0 {
		t.Errorf("random token entropy = %v, want >= 4.0", e)
	}
}

func TestVersionLess(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"1.12.4", "3.5.0", true},
		{"3.5.0", "3.5.0", false},
		{"3.7.1", "3.5.0", false},
		{"4.3", "4.3.1", true},
		{"5.8.3-alpha", "5.8.3", false},
	}
	for _, tt := range tests {
		if got := versionLess(tt.a, tt.b); got != tt.want {
			t.Errorf("versionLess(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestAuditAccessibility_UnlabeledControls(t *testing.T) {
	html := `<html lang="en"><body><main>
<form><input type="text" name="q"><input type="email" id="em"><label for="em">Email</label></form>
<button></button>
</main></body></html>`

	res, err := auditAccessibility(html)
	if err != nil {
		t.Fatalf("auditAccessibility: %v", err)
	}
	foundLabels, foundName := false, false
	for _, issue := range res.issues {
		if strings.Contains(issue.Message, "1 form controls") {
			foundLabels = true
		}
		if strings.Contains(issue.Message, "no accessible name") {
			foundName = true
		}
	}
	if !foundLabels {
		t.Errorf("unlabeled input not flagged; issues: %+v", res.issues)
	}
	if !foundName {
		t.Errorf("nameless button not flagged; issues: %+v", res.issues)
	}
}

func TestRun_DisabledAnalysesLeaveNilCategories(t *testing.T) {
	a := New(analysisConfig(), nil)
	snap := &capture.PageSnapshot{
		FinalURL: "https://example.com/",
		HTML:     goodPageHTML,
		Headers:  fullSecurityHeaders(),
		Timing:   capture.TimingSamples{TTFBMs: 200, FCPMs: 900, LCPMs: 1400},
	}

	m := a.Run(context.Background(), Input{
		Snapshot: snap,
		Options:  models.CloneOptions{PerformanceAnalysis: true},
	})
	if m == nil {
		t.Fatal("metrics nil with performance analysis enabled")
	}
	if m.Scores.Performance == nil {
		t.Error("performance score nil")
	}
	if m.Scores.SEO != nil || m.Scores.Security != nil {
		t.Error("disabled categories must stay nil")
	}
	if m.Scores.Overall != *m.Scores.Performance {
		t.Errorf("overall = %d, want %d", m.Scores.Overall, *m.Scores.Performance)
	}

	if m := a.Run(context.Background(), Input{Snapshot: snap, Options: models.CloneOptions{}}); m != nil {
		t.Error("metrics not nil with all analyses disabled")
	}
}

func TestRun_CompatibilityWarning(t *testing.T) {
	a := New(analysisConfig(), nil)
	snap := &capture.PageSnapshot{FinalURL: "https://example.com/", HTML: goodPageHTML, Headers: fullSecurityHeaders()}
	techs := []models.Technology{
		{Name: "WordPress", Category: "cms", Confidence: 90},
		{Name: "Webflow", Category: "cms", Confidence: 60},
		{Name: "jQuery", Category: "library", Confidence: 90},
	}

	m := a.Run(context.Background(), Input{
		Snapshot:     snap,
		Technologies: techs,
		Options:      models.CloneOptions{SecurityScan: true},
	})
	found := false
	for _, issue := range m.Issues {
		if issue.Kind == models.IssueCompatibility {
			found = true
		}
	}
	if !found {
		t.Errorf("compatibility warning missing; issues: %+v", m.Issues)
	}
}

func fullSecurityHeaders() http.Header {
	h := http.Header{}
	for _, sh := range securityHeaders {
		h.Set(sh.name, "set")
	}
	return h
}
