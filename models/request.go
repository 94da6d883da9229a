package models

// CaptureRequest is the payload for POST /api/capture.
//
// The boolean toggles are pointers so that "absent" can default to the
// documented value rather than false.
type CaptureRequest struct {
	// URL is the page to clone. Required.
	URL string `json:"url" binding:"required,url"`

	// IncludeAssets downloads and rewrites every referenced resource.
	// Default: true.
	IncludeAssets *bool `json:"include_assets,omitempty"`

	// UseBrowserAutomation drives a headless browser through the full
	// multi-phase capture. When false, a plain HTTP fetch produces a
	// static snapshot without enrichment phases. Default: true.
	UseBrowserAutomation *bool `json:"use_browser_automation,omitempty"`

	// CaptureResponsive re-renders the page at a fixed set of viewport
	// widths and records per-breakpoint computed styles. Default: false.
	CaptureResponsive bool `json:"capture_responsive,omitempty"`

	// CaptureInteractive probes hover/focus/active states per interactive
	// element. Default: false.
	CaptureInteractive bool `json:"capture_interactive,omitempty"`

	// CaptureAnimations samples computed styles over time to recover
	// transitions and keyframes. Default: false.
	CaptureAnimations bool `json:"capture_animations,omitempty"`

	// CaptureStyleAnalysis records per-element resolved styles for the
	// converter preprocessing pass. Default: true.
	CaptureStyleAnalysis *bool `json:"capture_style_analysis,omitempty"`

	// CaptureNavigation records in-site navigation targets. Default: false.
	CaptureNavigation bool `json:"capture_navigation,omitempty"`

	// Analysis toggles. All default to true; disabled analyses are
	// omitted from the report, never blocking the others.
	PerformanceAnalysis *bool `json:"performance_analysis,omitempty"`
	SEOAnalysis         *bool `json:"seo_analysis,omitempty"`
	SecurityScan        *bool `json:"security_scan,omitempty"`
	TechnologyDetection *bool `json:"technology_detection,omitempty"`

	// TargetFormat requests a builder-format conversion of the captured
	// page. Allowed: "gutenberg", "shortcode", "widgets", "crm", "markdown".
	TargetFormat string `json:"target_format,omitempty" binding:"omitempty,oneof=gutenberg shortcode widgets crm markdown"`

	// Timeout bounds the initial page load in seconds. Default: 30. Max: 120.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=120"`

	// WebhookURL receives a signed completion event for this job.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`
}

// Options resolves the request into an immutable CloneOptions snapshot,
// applying documented defaults for absent fields.
func (r *CaptureRequest) Options() CloneOptions {
	return CloneOptions{
		IncludeAssets:        boolOr(r.IncludeAssets, true),
		UseBrowserAutomation: boolOr(r.UseBrowserAutomation, true),
		CaptureResponsive:    r.CaptureResponsive,
		CaptureInteractive:   r.CaptureInteractive,
		CaptureAnimations:    r.CaptureAnimations,
		CaptureStyleAnalysis: boolOr(r.CaptureStyleAnalysis, true),
		CaptureNavigation:    r.CaptureNavigation,
		PerformanceAnalysis:  boolOr(r.PerformanceAnalysis, true),
		SEOAnalysis:          boolOr(r.SEOAnalysis, true),
		SecurityScan:         boolOr(r.SecurityScan, true),
		TechnologyDetection:  boolOr(r.TechnologyDetection, true),
		TargetFormat:         r.TargetFormat,
		TimeoutSeconds:       r.Timeout,
		WebhookURL:           r.WebhookURL,
	}
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

// DetectRequest is the payload for POST /api/detect-wordpress.
type DetectRequest struct {
	URL string `json:"url" binding:"required,url"`
}

// StyleRequest is the payload for POST /api/get-style.
type StyleRequest struct {
	URL      string `json:"url" binding:"required,url"`
	Selector string `json:"selector" binding:"required"`
}

// VisibleRequest is the payload for POST /api/is-visible.
type VisibleRequest struct {
	URL      string `json:"url" binding:"required,url"`
	Selector string `json:"selector" binding:"required"`
}
