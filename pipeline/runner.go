// Package pipeline sequences a clone job through its stages: capture,
// technology detection, asset extraction, the analyze/optimize
// fan-out, and builder-format conversion. The runner owns job
// concurrency and the status state machine; stage internals live in
// their packages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/siteforge/siteforge/analyze"
	"github.com/siteforge/siteforge/assets"
	"github.com/siteforge/siteforge/capture"
	"github.com/siteforge/siteforge/config"
	"github.com/siteforge/siteforge/convert"
	"github.com/siteforge/siteforge/detect"
	"github.com/siteforge/siteforge/events"
	"github.com/siteforge/siteforge/models"
	"github.com/siteforge/siteforge/optimize"
	"github.com/siteforge/siteforge/store"
	"github.com/siteforge/siteforge/webhook"
)

// Capturer is the capture stage dependency. *capture.Capturer
// satisfies it; tests substitute a stub.
type Capturer interface {
	Capture(ctx context.Context, sourceURL string, opts models.CloneOptions) (*capture.PageSnapshot, error)
}

// Extractor is the asset extraction dependency.
type Extractor interface {
	Extract(ctx context.Context, baseURL, html string) (*assets.Result, error)
}

// Deps wires the runner's collaborators.
type Deps struct {
	Store     *store.Store
	Capturer  Capturer
	Detector  *detect.Detector
	Extractor Extractor
	Analyzer  *analyze.Analyzer
	Optimizer *optimize.Engine
	Registry  *convert.Registry
	Sink      events.Sink

	// Workers bounds concurrently running jobs; align it with the
	// browser session budget.
	Workers int

	CaptureCfg    config.CaptureConfig
	WebhookSecret string
}

// Runner executes clone jobs. Submit is non-blocking: the job runs on
// its own goroutine once a worker slot frees up.
type Runner struct {
	deps Deps
	sem  *semaphore.Weighted
	wg   sync.WaitGroup

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewRunner(deps Deps) *Runner {
	if deps.Workers <= 0 {
		deps.Workers = 1
	}
	return &Runner{
		deps:    deps,
		sem:     semaphore.NewWeighted(int64(deps.Workers)),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Submit starts the job for a project. Exactly one job may be active
// per project; a concurrent submit returns a conflict error.
func (r *Runner) Submit(projectID string) error {
	if !r.deps.Store.AcquireJob(projectID) {
		return models.NewCloneError(models.ErrCodeConflict, "a job is already active for this project", nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancels[projectID] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.deps.Store.ReleaseJob(projectID)
		defer func() {
			r.mu.Lock()
			delete(r.cancels, projectID)
			r.mu.Unlock()
			cancel()
		}()
		r.run(ctx, projectID)
	}()
	return nil
}

// Cancel stops a running job. The job fails with a cancelled reason at
// its next stage boundary.
func (r *Runner) Cancel(projectID string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[projectID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Shutdown waits for running jobs to finish, up to the context
// deadline.
func (r *Runner) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) run(ctx context.Context, id string) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.fail(id, models.NewCloneError(models.ErrCodeCancelled, "cancelled while queued", err))
		return
	}
	defer r.sem.Release(1)

	p, err := r.deps.Store.Get(id)
	if err != nil {
		slog.Error("job refers to missing project", "project_id", id, "error", err)
		return
	}
	opts := p.Options

	timeout := r.deps.CaptureCfg.MaxTimeout
	if opts.TimeoutSeconds > 0 {
		requested := time.Duration(opts.TimeoutSeconds) * time.Second
		if requested < timeout {
			timeout = requested
		}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	log := slog.With("project_id", id, "url", p.SourceURL)
	log.Info("clone job started")

	// ── 1. Capture ──────────────────────────────────────────────────
	if !r.advance(ctx, id, models.StatusCapturing, events.StageCapture, 5) {
		return
	}
	snap, err := r.deps.Capturer.Capture(ctx, p.SourceURL, opts)
	if err != nil {
		r.fail(id, err)
		return
	}
	r.deps.Store.SetOriginalHTML(id, snap.HTML)
	for _, w := range snap.Warnings {
		r.deps.Sink.Issue(id, models.Issue{
			Kind:     models.IssueCaptureWarning,
			Severity: "info",
			Message:  w,
		})
	}
	r.progress(id, events.StageCapture, 30)

	// ── 2. Technology detection ─────────────────────────────────────
	// Runs alongside asset extraction; it only reads the raw response.
	var techs []models.Technology
	detected := make(chan struct{})
	if opts.TechnologyDetection {
		go func() {
			defer close(detected)
			techs = r.deps.Detector.Detect(snap.Headers, snap.HTML, snap.Globals)
		}()
	} else {
		close(detected)
	}

	// ── 3. Asset extraction ─────────────────────────────────────────
	if !r.advance(ctx, id, models.StatusExtracting, events.StageExtract, 40) {
		return
	}
	pageHTML := snap.HTML
	var stylesheets map[string]string
	if opts.IncludeAssets {
		res, err := r.deps.Extractor.Extract(ctx, snap.FinalURL, snap.HTML)
		if err != nil {
			r.fail(id, err)
			return
		}
		if len(res.Assets) > 0 {
			r.deps.Store.AppendAssets(id, res.Assets...)
		}
		for _, issue := range res.Issues {
			r.deps.Sink.Issue(id, issue)
		}
		pageHTML = res.HTML
		stylesheets = res.Stylesheets

		// The clone artifact is the rewritten document; the raw capture
		// stored above only stands in until extraction finishes. Every
		// downloaded reference now points into assets/.
		r.deps.Store.SetOriginalHTML(id, pageHTML)
	}

	<-detected
	if opts.TechnologyDetection {
		r.deps.Store.SetTechnologyProfile(id, techs)
		r.progress(id, events.StageDetect, 50)
	}
	r.progress(id, events.StageExtract, 60)

	// ── 4. Analyze / optimize fan-out ───────────────────────────────
	// Both read the frozen snapshot and rewritten HTML; neither writes
	// the other's fields, so they run in parallel.
	if !r.advance(ctx, id, models.StatusAnalyzing, events.StageAnalyze, 65) {
		return
	}
	current, err := r.deps.Store.Get(id)
	if err != nil {
		r.fail(id, err)
		return
	}

	var (
		fanout    sync.WaitGroup
		metrics   *models.PerformanceMetrics
		optimized optimize.Result
	)
	fanout.Add(2)
	go func() {
		defer fanout.Done()
		metrics = r.deps.Analyzer.Run(ctx, analyze.Input{
			Snapshot:     snap,
			Assets:       current.Assets,
			Technologies: techs,
			Options:      opts,
		})
		r.progress(id, events.StageAnalyze, 75)
	}()
	go func() {
		defer fanout.Done()
		optimized = r.deps.Optimizer.Optimize(optimize.Input{
			HTML:        pageHTML,
			Stylesheets: stylesheets,
		})
		r.progress(id, events.StageOptimize, 75)
	}()
	fanout.Wait()

	if metrics != nil {
		if err := r.deps.Store.SetMetrics(id, metrics); err != nil {
			log.Warn("metrics write rejected", "error", err)
		}
		for _, issue := range metrics.Issues {
			r.deps.Sink.Issue(id, issue)
		}
	}
	r.deps.Store.SetOptimizedHTML(id, optimized.HTML)
	for _, w := range optimized.Warnings {
		r.deps.Sink.Issue(id, models.Issue{
			Kind:     models.IssuePerformance,
			Severity: "info",
			Message:  "optimization skipped: " + w,
		})
	}
	r.progress(id, events.StageAnalyze, 85)

	// ── 5. Conversion ───────────────────────────────────────────────
	if !r.advance(ctx, id, models.StatusConverting, events.StageConvert, 90) {
		return
	}
	// Conversion is an enrichment: a converter that cannot produce any
	// output records the failure on the project, it never fails the job.
	if opts.TargetFormat != "" {
		r.runConversion(id, opts.TargetFormat, pageHTML, snap.ElementStyles)
	}

	// ── 6. Complete ─────────────────────────────────────────────────
	if err := r.deps.Store.SetStatus(id, models.StatusCompleted); err != nil {
		log.Error("completion transition rejected", "error", err)
		return
	}
	r.progress(id, events.StageConvert, 100)
	log.Info("clone job completed", "duration", time.Since(start))
	r.notify(id, "clone.completed")
}

// runConversion maps the rewritten page to the requested builder format
// and stores the export. Total failure is recorded as a conversion issue.
func (r *Runner) runConversion(id, format, pageHTML string, styles map[string]map[string]string) {
	conv, ok := r.deps.Registry.Get(format)
	if !ok {
		r.conversionFailed(id, fmt.Sprintf("unknown target format %q", format))
		return
	}
	tree, err := convert.Preprocess(pageHTML, styles)
	if err != nil {
		r.conversionFailed(id, "structural tree build failed: "+err.Error())
		return
	}
	out, err := conv.Convert(tree)
	if err != nil {
		r.conversionFailed(id, "conversion produced no output: "+err.Error())
		return
	}
	r.deps.Store.SetConvertedOutput(id, out.Content, &out.Report)
	for _, w := range out.Report.Warnings {
		r.deps.Sink.Issue(id, models.Issue{
			Kind:     models.IssueConversion,
			Severity: "warning",
			Message:  w,
		})
	}
}

func (r *Runner) conversionFailed(id, message string) {
	slog.Warn("conversion failed", "project_id", id, "reason", message)
	r.deps.Sink.Issue(id, models.Issue{
		Kind:     models.IssueConversion,
		Severity: "error",
		Message:  models.ErrCodeConversion + ": " + message,
	})
}

// advance moves the state machine forward, checking for cancellation
// at the stage boundary. Returns false when the job must stop.
func (r *Runner) advance(ctx context.Context, id string, next models.Status, stage string, percent int) bool {
	if ctx.Err() != nil {
		reason := "cancelled"
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = "job timeout exceeded"
		}
		r.failWithReason(id, models.ErrCodeCancelled, reason)
		return false
	}
	if err := r.deps.Store.SetStatus(id, next); err != nil {
		slog.Error("status transition rejected", "project_id", id, "next", next, "error", err)
		return false
	}
	r.progress(id, stage, percent)
	return true
}

func (r *Runner) progress(id, stage string, percent int) {
	r.deps.Store.SetProgress(id, percent)
	r.deps.Sink.Publish(events.Progress{JobID: id, Stage: stage, Percent: percent})
}

// fail marks the job failed, deriving the reason from the error's
// taxonomy code when it carries one.
func (r *Runner) fail(id string, err error) {
	var ce *models.CloneError
	if errors.As(err, &ce) {
		r.failWithReason(id, ce.Code, ce.Message)
		return
	}
	r.failWithReason(id, models.ErrCodeInternal, err.Error())
}

func (r *Runner) failWithReason(id, code, message string) {
	reason := code + ": " + message
	if err := r.deps.Store.Fail(id, reason); err != nil {
		slog.Error("failure transition rejected", "project_id", id, "error", err)
		return
	}
	slog.Warn("clone job failed", "project_id", id, "reason", reason)
	r.notify(id, "clone.failed")
}

// notify delivers the completion webhook when the job requested one.
func (r *Runner) notify(id, eventType string) {
	p, err := r.deps.Store.Get(id)
	if err != nil || p.Options.WebhookURL == "" {
		return
	}
	webhook.DeliverAsync(p.Options.WebhookURL, r.deps.WebhookSecret, &webhook.Event{
		Type:      eventType,
		ProjectID: id,
		Timestamp: time.Now().Unix(),
		Data: map[string]any{
			"status":         p.Status,
			"source":         p.SourceURL,
			"failure_reason": p.FailureReason,
		},
	})
}
