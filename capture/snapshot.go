package capture

import (
	"net/http"

	"github.com/siteforge/siteforge/models"
)

// TimingSamples are the navigation timings recorded during the initial
// load, in milliseconds relative to navigation start.
type TimingSamples struct {
	TTFBMs             float64 `json:"ttfb_ms"`
	FCPMs              float64 `json:"fcp_ms"`
	LCPMs              float64 `json:"lcp_ms"`
	DOMContentLoadedMs float64 `json:"dom_content_loaded_ms"`
	LoadMs             float64 `json:"load_ms"`
}

// LayoutShift is one layout-shift event observed while content loaded.
type LayoutShift struct {
	Value  float64 `json:"value"`
	TimeMs float64 `json:"time_ms"`
}

// BreakpointStyles holds the computed styles captured at one viewport
// width, keyed by element path then CSS property.
type BreakpointStyles struct {
	Width  int                          `json:"width"`
	Styles map[string]map[string]string `json:"styles"`
}

// InteractiveDelta records the computed-style changes of one element in a
// synthesized interactive state.
type InteractiveDelta struct {
	Selector string            `json:"selector"`
	State    string            `json:"state"` // "hover", "focus", "active"
	Changed  map[string]string `json:"changed"`
}

// AnimationSample is one computed-style sample taken at a time offset,
// used to recover transitions and keyframes.
type AnimationSample struct {
	Selector string            `json:"selector"`
	OffsetMs float64           `json:"offset_ms"`
	Props    map[string]string `json:"props"`
}

// PageSnapshot is the hand-off from the capture orchestrator to every
// downstream stage. After the asset rewriter returns it, the snapshot is
// treated as immutable; the analysis/optimize/convert fan-out reads it
// concurrently.
type PageSnapshot struct {
	SourceURL  string
	FinalURL   string
	HTML       string
	StatusCode int
	Headers    http.Header

	Timing       TimingSamples
	LayoutShifts []LayoutShift
	LongTasks    []models.LongTask
	Network      []models.NetworkRequest

	// ElementStyles maps element paths to their resolved computed styles
	// at the default viewport. Populated when style analysis is enabled;
	// the converter preprocessing pass inlines from it.
	ElementStyles map[string]map[string]string

	Breakpoints []BreakpointStyles
	Interactive []InteractiveDelta
	Animations  []AnimationSample

	// Globals records which framework-specific global bindings were
	// present at runtime, feeding the detector's behavioral pass.
	Globals map[string]bool

	// NavigationLinks are same-site navigation targets, recorded when
	// navigation capture is enabled.
	NavigationLinks []string

	// Warnings lists enrichment phases that were skipped after exceeding
	// their budget. Soft degradation, never fatal.
	Warnings []string
}
