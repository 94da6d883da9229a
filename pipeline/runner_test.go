package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

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
)

const capturedHTML = `<!DOCTYPE html><html lang="en"><head><title>Studio</title></head><body>
<section><h1>Welcome</h1><p>A small studio site.</p></section>
</body></html>`

type stubCapturer struct {
	snap    *capture.PageSnapshot
	err     error
	started chan struct{} // closed on first call, when set
	release chan struct{} // blocks the capture until closed, when set
}

func (c *stubCapturer) Capture(ctx context.Context, sourceURL string, _ models.CloneOptions) (*capture.PageSnapshot, error) {
	if c.started != nil {
		close(c.started)
	}
	if c.release != nil {
		select {
		case <-c.release:
		case <-ctx.Done():
			return nil, models.NewCloneError(models.ErrCodeCancelled, "capture cancelled", ctx.Err())
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.snap, nil
}

type stubExtractor struct {
	res *assets.Result
	err error
}

func (e *stubExtractor) Extract(_ context.Context, _, html string) (*assets.Result, error) {
	if e.err != nil {
		return nil, e.err
	}
	if e.res != nil {
		return e.res, nil
	}
	return &assets.Result{HTML: html}, nil
}

func testSnapshot() *capture.PageSnapshot {
	return &capture.PageSnapshot{
		SourceURL:  "https://example.com/",
		FinalURL:   "https://example.com/",
		HTML:       capturedHTML,
		StatusCode: 200,
		Timing:     capture.TimingSamples{TTFBMs: 150, FCPMs: 800, LCPMs: 1200, DOMContentLoadedMs: 900},
		Globals:    map[string]bool{},
	}
}

func newTestRunner(t *testing.T, s *store.Store, cap Capturer, ext Extractor) *Runner {
	t.Helper()
	sink := events.NewChannelSink(256, func(jobID string, issue models.Issue) {
		s.AppendIssue(jobID, issue)
	})
	return NewRunner(Deps{
		Store:     s,
		Capturer:  cap,
		Detector:  detect.New(),
		Extractor: ext,
		Analyzer: analyze.New(config.AnalysisConfig{
			PerformanceWeight:   0.35,
			SEOWeight:           0.25,
			SecurityWeight:      0.25,
			AccessibilityWeight: 0.15,
		}, nil),
		Optimizer:  optimize.New(config.OptimizerConfig{Minify: true}),
		Registry:   convert.DefaultRegistry(),
		Sink:       sink,
		Workers:    2,
		CaptureCfg: config.CaptureConfig{MaxTimeout: 10 * time.Second},
	})
}

func waitStatus(t *testing.T, s *store.Store, id string, want models.Status) *models.CloneProject {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		p, err := s.Get(id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if p.Status == want {
			return p
		}
		if p.Status.Terminal() {
			t.Fatalf("job ended in %s (reason %q), want %s", p.Status, p.FailureReason, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for status %s", want)
	return nil
}

func TestRun_CompletesThroughAllStages(t *testing.T) {
	s := store.New()
	p := s.Create("https://example.com/", models.CloneOptions{
		IncludeAssets:       true,
		TechnologyDetection: true,
		PerformanceAnalysis: true,
		SEOAnalysis:         true,
		SecurityScan:        true,
		TargetFormat:        "markdown",
	})

	r := newTestRunner(t, s, &stubCapturer{snap: testSnapshot()}, &stubExtractor{
		res: &assets.Result{
			HTML:   capturedHTML,
			Assets: []models.AssetRecord{{LocalPath: "assets/a_logo.png", OriginalURL: "https://example.com/logo.png", ByteSize: 10, MimeType: "image/png"}},
		},
	})

	if err := r.Submit(p.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got := waitStatus(t, s, p.ID, models.StatusCompleted)

	if got.Progress != 100 {
		t.Errorf("progress = %d", got.Progress)
	}
	if got.OriginalHTML == "" {
		t.Error("original HTML not stored")
	}
	if got.OptimizedHTML == "" {
		t.Error("optimized HTML not stored")
	}
	if got.Metrics == nil {
		t.Fatal("metrics not written")
	}
	if got.Metrics.Scores.Performance == nil {
		t.Error("performance score missing")
	}
	if len(got.Assets) != 1 {
		t.Errorf("assets = %d, want 1", len(got.Assets))
	}
	if !strings.Contains(got.ConvertedContent, "# Welcome") {
		t.Errorf("converted content = %q", got.ConvertedContent)
	}
	if got.ConversionReport == nil || got.ConversionReport.TargetFormat != "markdown" {
		t.Errorf("conversion report = %+v", got.ConversionReport)
	}
}

func TestRun_StoresRewrittenHTMLAsOriginal(t *testing.T) {
	s := store.New()
	p := s.Create("https://example.com/", models.CloneOptions{IncludeAssets: true})

	captured := `<html><head><title>Studio</title></head><body><img src="https://example.com/logo.png"></body></html>`
	rewritten := strings.Replace(captured, "https://example.com/logo.png", "assets/a1b2_logo.png", 1)

	snap := testSnapshot()
	snap.HTML = captured
	r := newTestRunner(t, s, &stubCapturer{snap: snap}, &stubExtractor{
		res: &assets.Result{
			HTML:   rewritten,
			Assets: []models.AssetRecord{{LocalPath: "assets/a1b2_logo.png", OriginalURL: "https://example.com/logo.png", ByteSize: 10, MimeType: "image/png"}},
		},
	})

	if err := r.Submit(p.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got := waitStatus(t, s, p.ID, models.StatusCompleted)

	// The stored document must point at the local copies, not the origin.
	if !strings.Contains(got.OriginalHTML, "assets/a1b2_logo.png") {
		t.Errorf("original HTML = %q, want local asset path", got.OriginalHTML)
	}
	if strings.Contains(got.OriginalHTML, "https://example.com/logo.png") {
		t.Errorf("original HTML still references the origin URL: %q", got.OriginalHTML)
	}
}

func TestSubmit_SecondJobConflicts(t *testing.T) {
	s := store.New()
	p := s.Create("https://example.com/", models.CloneOptions{})

	cap := &stubCapturer{snap: testSnapshot(), release: make(chan struct{})}
	r := newTestRunner(t, s, cap, &stubExtractor{})

	if err := r.Submit(p.ID); err != nil {
		t.Fatalf("first Submit: %v", err)
	}

	err := r.Submit(p.ID)
	var ce *models.CloneError
	if !errors.As(err, &ce) || ce.Code != models.ErrCodeConflict {
		t.Fatalf("second Submit = %v, want %s", err, models.ErrCodeConflict)
	}

	close(cap.release)
	waitStatus(t, s, p.ID, models.StatusCompleted)
}

func TestRun_CaptureFailureFailsJob(t *testing.T) {
	s := store.New()
	p := s.Create("https://nope.invalid/", models.CloneOptions{})

	r := newTestRunner(t, s, &stubCapturer{
		err: models.NewCloneError(models.ErrCodeNetwork, "could not resolve host", nil),
	}, &stubExtractor{})

	if err := r.Submit(p.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := s.Get(p.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status == models.StatusFailed {
			if !strings.Contains(got.FailureReason, models.ErrCodeNetwork) {
				t.Errorf("failure reason = %q", got.FailureReason)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never failed; status %s", got.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCancel_FailsJobWithCancelledReason(t *testing.T) {
	s := store.New()
	p := s.Create("https://example.com/", models.CloneOptions{})

	cap := &stubCapturer{snap: testSnapshot(), started: make(chan struct{}), release: make(chan struct{})}
	r := newTestRunner(t, s, cap, &stubExtractor{})

	if err := r.Submit(p.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-cap.started

	if !r.Cancel(p.ID) {
		t.Fatal("Cancel returned false for a running job")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := s.Get(p.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status == models.StatusFailed {
			if !strings.Contains(got.FailureReason, models.ErrCodeCancelled) {
				t.Errorf("failure reason = %q", got.FailureReason)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never failed; status %s", got.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRun_ConversionFailureDoesNotFailJob(t *testing.T) {
	s := store.New()
	p := s.Create("https://example.com/", models.CloneOptions{TargetFormat: "wix"})

	r := newTestRunner(t, s, &stubCapturer{snap: testSnapshot()}, &stubExtractor{})
	if err := r.Submit(p.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got := waitStatus(t, s, p.ID, models.StatusCompleted)

	if got.ConvertedContent != "" {
		t.Errorf("converted content = %q, want none", got.ConvertedContent)
	}
	found := false
	for _, issue := range got.Issues {
		if issue.Kind == models.IssueConversion && strings.Contains(issue.Message, models.ErrCodeConversion) {
			found = true
		}
	}
	if !found {
		t.Errorf("no conversion issue recorded; issues = %+v", got.Issues)
	}
}
