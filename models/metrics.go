package models

// Rating is the three-tier classification applied to every vital.
type Rating string

const (
	RatingGood             Rating = "good"
	RatingNeedsImprovement Rating = "needs-improvement"
	RatingPoor             Rating = "poor"
)

// MetricValue pairs a measured value with its threshold classification.
type MetricValue struct {
	Value  float64 `json:"value"`
	Rating Rating  `json:"rating"`
}

// CoreWebVitals holds the user-experience metric estimates derived from
// capture-phase timing samples. LCP/INP/FCP/TTFB are milliseconds; CLS is
// the unitless cumulative layout shift score.
type CoreWebVitals struct {
	LCP  MetricValue `json:"lcp"`
	INP  MetricValue `json:"inp"`
	CLS  MetricValue `json:"cls"`
	FCP  MetricValue `json:"fcp"`
	TTFB MetricValue `json:"ttfb"`
}

// AdditionalMetrics holds secondary timing estimates in milliseconds.
type AdditionalMetrics struct {
	TBT        float64 `json:"tbt"`
	TTI        float64 `json:"tti"`
	SpeedIndex float64 `json:"speed_index"`
}

// ResourceEntry is one fetched asset counted toward page weight.
type ResourceEntry struct {
	URL      string `json:"url"`
	Type     string `json:"type"`
	ByteSize int64  `json:"byte_size"`
}

// NetworkRequest is one request observed during capture.
type NetworkRequest struct {
	URL          string  `json:"url"`
	Method       string  `json:"method"`
	ResourceType string  `json:"resource_type"`
	Status       int     `json:"status"`
	DurationMs   float64 `json:"duration_ms"`
	ByteSize     int64   `json:"byte_size"`
}

// LongTask is one main-thread task over 50ms observed during capture.
type LongTask struct {
	StartMs    float64 `json:"start_ms"`
	DurationMs float64 `json:"duration_ms"`
}

// ResourceMetrics aggregates the network-level view of the page.
type ResourceMetrics struct {
	TotalPageSize   int64            `json:"total_page_size"`
	Resources       []ResourceEntry  `json:"resources"`
	NetworkRequests []NetworkRequest `json:"network_requests"`
	LongTasks       []LongTask       `json:"long_tasks"`
}

// LighthouseScores are the four 0-100 category scores returned by the
// pluggable audit collaborator.
type LighthouseScores struct {
	Performance   int `json:"performance"`
	Accessibility int `json:"accessibility"`
	BestPractices int `json:"best_practices"`
	SEO           int `json:"seo"`
}

// CategoryScores holds the composite 0-100 scores. A nil category means
// that analysis was disabled or failed (AnalysisError recorded).
type CategoryScores struct {
	Performance   *int `json:"performance"`
	SEO           *int `json:"seo"`
	Security      *int `json:"security"`
	Accessibility *int `json:"accessibility"`
	Overall       int  `json:"overall"`
}

// PerformanceMetrics is the full analysis result, written exactly once on
// successful completion of the analysis pipeline.
type PerformanceMetrics struct {
	CoreWebVitals     CoreWebVitals     `json:"core_web_vitals"`
	AdditionalMetrics AdditionalMetrics `json:"additional_metrics"`
	ResourceMetrics   ResourceMetrics   `json:"resource_metrics"`
	Issues            []Issue           `json:"issues"`
	Recommendations   []string          `json:"recommendations"`
	Scores            CategoryScores    `json:"scores"`
	Lighthouse        *LighthouseScores `json:"lighthouse,omitempty"`
}
