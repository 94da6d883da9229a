package capture

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/stealth"
	"github.com/siteforge/siteforge/config"
	"github.com/siteforge/siteforge/models"
)

// Capturer manages the global browser lifecycle and the session pool.
// It is safe for concurrent use.
type Capturer struct {
	browser    *rod.Browser
	pool       *SessionPool
	browserCfg config.BrowserConfig
	captureCfg config.CaptureConfig
	fetcher    *staticFetcher
}

// NewCapturer launches a headless browser and initialises the reusable
// session pool.
func NewCapturer(browserCfg config.BrowserConfig, captureCfg config.CaptureConfig) (*Capturer, error) {
	l := launcher.New().
		Headless(browserCfg.Headless).
		NoSandbox(browserCfg.NoSandbox)

	if browserCfg.BrowserBin != "" {
		l = l.Bin(browserCfg.BrowserBin)
	}
	if browserCfg.DefaultProxy != "" {
		l = l.Proxy(browserCfg.DefaultProxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewCloneError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewCloneError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}

	pool := NewSessionPool(browser, browserCfg.MinSessions, browserCfg.MaxSessions)
	slog.Info("session pool created", "min", browserCfg.MinSessions, "max", browserCfg.MaxSessions)

	return &Capturer{
		browser:    browser,
		pool:       pool,
		browserCfg: browserCfg,
		captureCfg: captureCfg,
		fetcher:    newStaticFetcher(browserCfg.DefaultProxy),
	}, nil
}

// Stats returns a snapshot of the session pool's current state.
func (c *Capturer) Stats() models.SessionStats {
	max, active := c.pool.Stats()
	return models.SessionStats{MaxSessions: max, ActiveSessions: active}
}

// MaxSessions is the browser session budget, which also bounds the job
// worker pool.
func (c *Capturer) MaxSessions() int {
	return c.browserCfg.MaxSessions
}

// Close drains the session pool and kills the browser process. Call on
// graceful shutdown to prevent zombie Chrome processes.
func (c *Capturer) Close() {
	slog.Info("capturer shutting down: draining session pool")
	c.pool.Stop()
	slog.Info("capturer shutting down: closing browser")
	c.browser.MustClose()
	slog.Info("capturer shutdown complete")
}

// FetchRaw retrieves the target over plain HTTP (Chrome TLS fingerprint)
// without rendering. The technology detector consumes this concurrently
// with the browser capture since it only needs headers and raw HTML.
func (c *Capturer) FetchRaw(ctx context.Context, url string) (*RawResponse, error) {
	return c.fetcher.fetch(ctx, url)
}

// Capture drives the multi-phase capture sequence and returns the page
// snapshot, or fails if the initial load cannot complete.
//
// Lifecycle:
//
//  1. Timeout guard          – hard deadline on the entire operation
//  2. Static path            – plain HTTP snapshot when automation is off
//  3. Acquire session        – borrow a tab from the pool (blocks at capacity)
//  4. DEFER: cleanup         – about:blank + return to pool (leak prevention)
//  5. Stealth + observers    – both MUST be installed before navigation
//  6. Navigate               – phase (a); the only fatal phase
//  7. Settle + timings       – DOM stable, then read the Performance API
//  8. Enrichment phases      – scroll (c), responsive (b), interactive (d),
//     animations (e); each individually time-boxed and soft-degrading
//  9. Extraction             – rendered HTML, element styles, globals
func (c *Capturer) Capture(ctx context.Context, sourceURL string, opts models.CloneOptions) (*PageSnapshot, error) {
	// ── 1. Timeout guard ─────────────────────────────────────────────
	timeout := time.Duration(opts.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = c.captureCfg.NavigationTimeout
	}
	if timeout > c.captureCfg.MaxTimeout {
		timeout = c.captureCfg.MaxTimeout
	}

	// ── 2. Static path ───────────────────────────────────────────────
	if !opts.UseBrowserAutomation {
		staticCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return c.captureStatic(staticCtx, sourceURL)
	}

	// ── 3. Acquire session ───────────────────────────────────────────
	sess, err := c.pool.Get()
	if err != nil {
		return nil, models.NewCloneError(models.ErrCodeBrowserCrash, "failed to acquire browser session", err)
	}
	captureOK := false

	// ── 4. CRITICAL DEFER: prevent DOM memory leak + guarantee return.
	// about:blank uses the original page reference so cleanup succeeds
	// even after the request context has expired.
	defer func() {
		if navErr := sess.page.Navigate("about:blank"); navErr != nil {
			slog.Warn("cleanup: failed to navigate to about:blank", "error", navErr)
		}
		c.pool.Put(sess, captureOK)
	}()

	// ── 5. Stealth + observers (before navigation!) ──────────────────
	if c.captureCfg.Stealth {
		if _, evalErr := sess.page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		}
	}
	if _, evalErr := sess.page.EvalOnNewDocument(observerJS); evalErr != nil {
		slog.Warn("metrics observer injection failed", "error", evalErr)
	}

	// ── 6. Navigate (phase a, fatal on failure) ──────────────────────
	navCtx, navCancel := context.WithTimeout(ctx, timeout)
	defer navCancel()
	p := sess.page.Context(navCtx)

	if navErr := p.Navigate(sourceURL); navErr != nil {
		return nil, categorizeError(navErr, "navigation to target URL failed")
	}

	// ── 7. Settle, then read timings ─────────────────────────────────
	if stableErr := p.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", stableErr)
	}

	snap := &PageSnapshot{
		SourceURL: sourceURL,
		Globals:   map[string]bool{},
	}
	collectTimings(p, snap)

	// ── 8. Enrichment phases, each time-boxed and soft ───────────────
	budget := c.captureCfg.PhaseBudget

	c.runPhase(ctx, p, snap, "scroll", budget, func(pp *rod.Page) error {
		return scrollUntilQuiet(pp, c.captureCfg.ScrollMaxIterations)
	})

	if opts.CaptureResponsive {
		c.runPhase(ctx, p, snap, "responsive", budget, func(pp *rod.Page) error {
			return captureBreakpoints(pp, c.captureCfg.ResponsiveWidths, snap)
		})
	}
	if opts.CaptureInteractive {
		c.runPhase(ctx, p, snap, "interactive", budget, func(pp *rod.Page) error {
			return captureInteractiveStates(pp, snap)
		})
	}
	if opts.CaptureAnimations {
		c.runPhase(ctx, p, snap, "animations", budget, func(pp *rod.Page) error {
			return captureAnimationSamples(pp, snap)
		})
	}

	// ── 9. Extraction ────────────────────────────────────────────────
	rawHTML, htmlErr := p.HTML()
	if htmlErr != nil {
		return nil, categorizeError(htmlErr, "failed to extract page HTML")
	}
	snap.HTML = rawHTML
	snap.FinalURL = evalStringOrEmpty(p, `() => window.location.href`)
	if snap.FinalURL == "" {
		snap.FinalURL = sourceURL
	}

	collectRecordedMetrics(p, snap)
	collectGlobals(p, snap)
	if opts.CaptureStyleAnalysis {
		collectElementStyles(p, snap)
	}
	if opts.CaptureNavigation {
		collectNavigationLinks(p, snap)
	}

	// Headers come from a raw fetch because CDP network events conflict
	// with the observer setup on newer Chromium builds.
	if raw, rawErr := c.fetcher.fetch(ctx, sourceURL); rawErr == nil {
		snap.Headers = raw.Headers
		if snap.StatusCode == 0 {
			snap.StatusCode = raw.StatusCode
		}
	}

	captureOK = true
	return snap, nil
}

// runPhase executes one enrichment phase under its budget. Overrunning
// the budget or erroring records a warning and skips the enrichment.
func (c *Capturer) runPhase(ctx context.Context, p *rod.Page, snap *PageSnapshot, name string, budget time.Duration, fn func(*rod.Page) error) {
	phaseCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	err := fn(p.Context(phaseCtx))
	if err != nil {
		slog.Warn("capture phase degraded", "phase", name, "error", err)
		snap.Warnings = append(snap.Warnings, "phase "+name+" skipped: "+err.Error())
	}
}

// evalStringOrEmpty evaluates a JS expression and returns the string
// result, swallowing any errors.
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// categorizeError wraps raw errors into typed CloneErrors so the pipeline
// and API layer can distinguish timeouts from unreachable origins.
func categorizeError(err error, msg string) *models.CloneError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewCloneError(models.ErrCodeTimeout, msg+": timeout exceeded", err)
	case errors.Is(err, context.Canceled):
		return models.NewCloneError(models.ErrCodeCancelled, "capture cancelled", err)
	case isNetworkErr(err):
		return models.NewCloneError(models.ErrCodeNetwork, msg+": origin unreachable", err)
	default:
		return models.NewCloneError(models.ErrCodeNetwork, msg, err)
	}
}

func isNetworkErr(err error) bool {
	s := err.Error()
	return strings.Contains(s, "ERR_NAME_NOT_RESOLVED") ||
		strings.Contains(s, "ERR_CONNECTION_REFUSED") ||
		strings.Contains(s, "ERR_INTERNET_DISCONNECTED") ||
		strings.Contains(s, "no such host")
}
