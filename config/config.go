package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Capture   CaptureConfig
	Fetcher   FetcherConfig
	Analysis  AnalysisConfig
	Optimizer OptimizerConfig
	Pipeline  PipelineConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance and the session pool.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MinSessions is the minimum number of pages kept warm in the pool.
	MinSessions int // default: 2

	// MaxSessions is the session pool capacity. This is also the worker
	// pool bound: each capture job holds one session for its duration.
	MaxSessions int // default: 6

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// DefaultProxy is the proxy URL applied to the browser and fetcher.
	DefaultProxy string
}

// CaptureConfig controls the multi-phase capture sequence.
type CaptureConfig struct {
	// NavigationTimeout bounds the initial page load. Exceeding it is
	// fatal for the job.
	NavigationTimeout time.Duration // default: 30s

	// MaxTimeout caps the client-supplied timeout.
	MaxTimeout time.Duration // default: 120s

	// PhaseBudget bounds each enrichment phase (responsive, scroll,
	// interactive, animations). Exceeding it degrades, never fails.
	PhaseBudget time.Duration // default: 10s

	// ScrollMaxIterations bounds the lazy-load scroll loop.
	ScrollMaxIterations int // default: 12

	// ResponsiveWidths are the viewport widths rendered for breakpoint
	// style variants.
	ResponsiveWidths []int // default: [375, 768, 1280, 1920]

	// Stealth enables anti-bot-detection evasions before navigation.
	Stealth bool // default: true
}

// FetcherConfig controls per-asset HTTP fetching.
type FetcherConfig struct {
	// Timeout is the per-request deadline.
	Timeout time.Duration // default: 20s

	// Retries is the fixed retry count after the first attempt.
	Retries int // default: 3

	// BackoffBase is the first retry delay; each retry doubles it.
	BackoffBase time.Duration // default: 500ms

	// MaxAssetBytes caps a single downloaded resource.
	MaxAssetBytes int64 // default: 50 MB

	// Parallelism bounds concurrent fetches per job.
	Parallelism int64 // default: 8

	// FailureThreshold is the fraction of failed assets above which the
	// job fails with a systemic error (source unreachable / CDN blocking).
	FailureThreshold float64 // default: 0.30
}

// AnalysisConfig holds the composite-scoring weights. The weights are
// policy, not contract; they must sum to 1.0.
type AnalysisConfig struct {
	PerformanceWeight   float64 // default: 0.35
	SEOWeight           float64 // default: 0.25
	SecurityWeight      float64 // default: 0.25
	AccessibilityWeight float64 // default: 0.15
}

// OptimizerConfig toggles individual optimization transforms.
type OptimizerConfig struct {
	CriticalCSS   bool // default: true
	DeferLoading  bool // default: true
	Minify        bool // default: true
	ImageRewrite  bool // default: true
	Srcset        bool // default: true
	LazyLoad      bool // default: true
	FontSubset    bool // default: true
}

// PipelineConfig controls the job queue.
type PipelineConfig struct {
	// QueueDepth bounds queued-but-unstarted jobs.
	QueueDepth int // default: 64

	// WebhookSecret signs completion webhooks when set.
	WebhookSecret string
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("SITEFORGE_HOST", "0.0.0.0"),
			Port: envIntOr("SITEFORGE_PORT", 8080),
			Mode: envOr("SITEFORGE_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("SITEFORGE_HEADLESS", true),
			MinSessions:  envIntOr("SITEFORGE_MIN_SESSIONS", 2),
			MaxSessions:  envIntOr("SITEFORGE_MAX_SESSIONS", 6),
			NoSandbox:    envBoolOr("SITEFORGE_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("SITEFORGE_BROWSER_BIN"),
			DefaultProxy: os.Getenv("SITEFORGE_PROXY"),
		},
		Capture: CaptureConfig{
			NavigationTimeout:   envDurationOr("SITEFORGE_NAV_TIMEOUT", 30*time.Second),
			MaxTimeout:          envDurationOr("SITEFORGE_MAX_TIMEOUT", 120*time.Second),
			PhaseBudget:         envDurationOr("SITEFORGE_PHASE_BUDGET", 10*time.Second),
			ScrollMaxIterations: envIntOr("SITEFORGE_SCROLL_MAX_ITER", 12),
			ResponsiveWidths:    envIntSliceOr("SITEFORGE_RESPONSIVE_WIDTHS", []int{375, 768, 1280, 1920}),
			Stealth:             envBoolOr("SITEFORGE_STEALTH", true),
		},
		Fetcher: FetcherConfig{
			Timeout:          envDurationOr("SITEFORGE_FETCH_TIMEOUT", 20*time.Second),
			Retries:          envIntOr("SITEFORGE_FETCH_RETRIES", 3),
			BackoffBase:      envDurationOr("SITEFORGE_FETCH_BACKOFF", 500*time.Millisecond),
			MaxAssetBytes:    envInt64Or("SITEFORGE_MAX_ASSET_BYTES", 50<<20),
			Parallelism:      envInt64Or("SITEFORGE_FETCH_PARALLELISM", 8),
			FailureThreshold: envFloatOr("SITEFORGE_FAILURE_THRESHOLD", 0.30),
		},
		Analysis: AnalysisConfig{
			PerformanceWeight:   envFloatOr("SITEFORGE_WEIGHT_PERFORMANCE", 0.35),
			SEOWeight:           envFloatOr("SITEFORGE_WEIGHT_SEO", 0.25),
			SecurityWeight:      envFloatOr("SITEFORGE_WEIGHT_SECURITY", 0.25),
			AccessibilityWeight: envFloatOr("SITEFORGE_WEIGHT_ACCESSIBILITY", 0.15),
		},
		Optimizer: OptimizerConfig{
			CriticalCSS:  envBoolOr("SITEFORGE_OPT_CRITICAL_CSS", true),
			DeferLoading: envBoolOr("SITEFORGE_OPT_DEFER", true),
			Minify:       envBoolOr("SITEFORGE_OPT_MINIFY", true),
			ImageRewrite: envBoolOr("SITEFORGE_OPT_IMAGES", true),
			Srcset:       envBoolOr("SITEFORGE_OPT_SRCSET", true),
			LazyLoad:     envBoolOr("SITEFORGE_OPT_LAZYLOAD", true),
			FontSubset:   envBoolOr("SITEFORGE_OPT_FONT_SUBSET", true),
		},
		Pipeline: PipelineConfig{
			QueueDepth:    envIntOr("SITEFORGE_QUEUE_DEPTH", 64),
			WebhookSecret: os.Getenv("SITEFORGE_WEBHOOK_SECRET"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("SITEFORGE_AUTH_ENABLED", true),
			APIKeys: envSliceOr("SITEFORGE_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("SITEFORGE_RATE_RPS", 5.0),
			Burst:             envIntOr("SITEFORGE_RATE_BURST", 10),
		},
		Log: LogConfig{
			Level:  envOr("SITEFORGE_LOG_LEVEL", "info"),
			Format: envOr("SITEFORGE_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envInt64Or(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}

func envIntSliceOr(key string, fallback []int) []int {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]int, 0, len(parts))
		for _, p := range parts {
			if i, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
				result = append(result, i)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
