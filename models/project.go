package models

import "time"

// Status is the pipeline state of a CloneProject.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusCapturing  Status = "capturing"
	StatusExtracting Status = "extracting"
	StatusAnalyzing  Status = "analyzing"
	StatusConverting Status = "converting"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// statusRank orders the states along the pipeline. Transitions must move
// forward through this ordering; the only backward transition permitted is
// into failed.
var statusRank = map[Status]int{
	StatusQueued:     0,
	StatusCapturing:  1,
	StatusExtracting: 2,
	StatusAnalyzing:  3,
	StatusConverting: 4,
	StatusCompleted:  5,
	StatusFailed:     6,
}

// Terminal reports whether the status ends the job lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next is a legal
// state-machine transition.
func (s Status) CanTransitionTo(next Status) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	return statusRank[next] > statusRank[s]
}

// IssueKind classifies a non-fatal problem recorded on a project.
type IssueKind string

const (
	IssueAssetFetch     IssueKind = "AssetFetchError"
	IssueAnalysis       IssueKind = "AnalysisError"
	IssueConversion     IssueKind = "ConversionError"
	IssueCaptureWarning IssueKind = "CaptureWarning"
	IssueSEO            IssueKind = "SEOIssue"
	IssueSecurity       IssueKind = "SecurityFinding"
	IssuePerformance    IssueKind = "PerformanceIssue"
	IssueAccessibility  IssueKind = "AccessibilityIssue"
	IssueCompatibility  IssueKind = "CompatibilityWarning"
)

// Issue is a non-fatal problem surfaced to the analysis report. Fatal
// failures never become issues; they set FailureReason instead.
type Issue struct {
	Kind     IssueKind `json:"kind"`
	Severity string    `json:"severity"` // "info", "warning", "error", "critical"
	Message  string    `json:"message"`
	Detail   string    `json:"detail,omitempty"`
}

// AssetRecord describes one downloaded resource of a captured page.
type AssetRecord struct {
	LocalPath   string `json:"local_path"`
	OriginalURL string `json:"original_url"`
	ByteSize    int64  `json:"byte_size"`
	MimeType    string `json:"mime_type"`
}

// Technology is one confidence-scored entry of the detected stack.
type Technology struct {
	Name       string `json:"name"`
	Category   string `json:"category"` // "cms", "framework", "hosting", "cdn", "analytics", "server", "library", "page-builder"
	Version    string `json:"version,omitempty"`
	Confidence int    `json:"confidence"` // 0-100
}

// ConversionReport summarises a builder-format conversion.
type ConversionReport struct {
	TargetFormat      string   `json:"target_format"`
	ElementsConverted int      `json:"elements_converted"`
	FallbacksUsed     int      `json:"fallbacks_used"`
	Warnings          []string `json:"warnings,omitempty"`
}

// CloneOptions is the immutable configuration snapshot captured at job start.
type CloneOptions struct {
	IncludeAssets        bool `json:"include_assets"`
	UseBrowserAutomation bool `json:"use_browser_automation"`
	CaptureResponsive    bool `json:"capture_responsive"`
	CaptureInteractive   bool `json:"capture_interactive"`
	CaptureAnimations    bool `json:"capture_animations"`
	CaptureStyleAnalysis bool `json:"capture_style_analysis"`
	CaptureNavigation    bool `json:"capture_navigation"`

	PerformanceAnalysis bool `json:"performance_analysis"`
	SEOAnalysis         bool `json:"seo_analysis"`
	SecurityScan        bool `json:"security_scan"`
	TechnologyDetection bool `json:"technology_detection"`

	// TargetFormat selects an optional builder-format conversion
	// ("gutenberg", "shortcode", "widgets", "crm", "markdown").
	// Empty skips conversion.
	TargetFormat string `json:"target_format,omitempty"`

	// TimeoutSeconds bounds the initial page load. 0 uses the server default.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`

	// WebhookURL, when set, receives a signed event on job completion.
	WebhookURL string `json:"webhook_url,omitempty"`
}

// CloneProject is the root aggregate every pipeline stage reads and writes.
// Each stage owns its designated fields; the store enforces the discipline.
type CloneProject struct {
	ID        string       `json:"id"`
	SourceURL string       `json:"source"`
	Status    Status       `json:"status"`
	Progress  int          `json:"progress"` // 0-100
	Options   CloneOptions `json:"options"`

	OriginalHTML  string `json:"original_html,omitempty"`
	OptimizedHTML string `json:"optimized_html,omitempty"`

	// ConvertedContent is the serialized builder-format document, present
	// when the job requested a target format.
	ConvertedContent string `json:"converted_content,omitempty"`

	Assets            []AssetRecord       `json:"assets"`
	Metrics           *PerformanceMetrics `json:"metrics,omitempty"`
	TechnologyProfile []Technology        `json:"technology_profile"`
	ConversionReport  *ConversionReport   `json:"conversion_report,omitempty"`
	Issues            []Issue             `json:"issues"`

	FailureReason string     `json:"failure_reason,omitempty"`
	Archived      bool       `json:"archived"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Clone returns a deep copy so callers never hold references into the
// store's record while a stage writer mutates it.
func (p *CloneProject) Clone() *CloneProject {
	cp := *p
	cp.Assets = append([]AssetRecord(nil), p.Assets...)
	cp.TechnologyProfile = append([]Technology(nil), p.TechnologyProfile...)
	cp.Issues = append([]Issue(nil), p.Issues...)
	if p.Metrics != nil {
		m := *p.Metrics
		cp.Metrics = &m
	}
	if p.ConversionReport != nil {
		r := *p.ConversionReport
		cp.ConversionReport = &r
	}
	if p.DeletedAt != nil {
		t := *p.DeletedAt
		cp.DeletedAt = &t
	}
	return &cp
}
