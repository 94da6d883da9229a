package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/siteforge/siteforge/analyze"
	"github.com/siteforge/siteforge/api"
	"github.com/siteforge/siteforge/assets"
	"github.com/siteforge/siteforge/capture"
	"github.com/siteforge/siteforge/config"
	"github.com/siteforge/siteforge/convert"
	"github.com/siteforge/siteforge/detect"
	"github.com/siteforge/siteforge/events"
	"github.com/siteforge/siteforge/models"
	"github.com/siteforge/siteforge/optimize"
	"github.com/siteforge/siteforge/pipeline"
	"github.com/siteforge/siteforge/store"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("siteforge starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxSessions", cfg.Browser.MaxSessions,
	)

	// ── 3. Initialise capturer (launches browser) ───────────────────
	cap, err := capture.NewCapturer(cfg.Browser, cfg.Capture)
	if err != nil {
		slog.Error("failed to initialise capturer", "error", err)
		os.Exit(1)
	}
	defer cap.Close()

	// ── 4. Project store + progress sink ────────────────────────────
	s := store.New()
	sink := events.NewChannelSink(256, func(jobID string, issue models.Issue) {
		if err := s.AppendIssue(jobID, issue); err != nil {
			slog.Warn("dropping issue for unknown project", "project_id", jobID)
		}
	})
	defer sink.Close()

	// Progress consumer: events land on the store record the API polls.
	go func() {
		for p := range sink.Events() {
			slog.Debug("job progress", "project_id", p.JobID, "stage", p.Stage, "percent", p.Percent)
		}
	}()

	// ── 5. Pipeline stages ──────────────────────────────────────────
	fetcher := assets.NewFetcher(cfg.Fetcher, cfg.Browser.DefaultProxy)
	det := detect.New()
	runner := pipeline.NewRunner(pipeline.Deps{
		Store:         s,
		Capturer:      cap,
		Detector:      det,
		Extractor:     assets.NewExtractor(fetcher, cfg.Fetcher),
		Analyzer:      analyze.New(cfg.Analysis, nil),
		Optimizer:     optimize.New(cfg.Optimizer),
		Registry:      convert.DefaultRegistry(),
		Sink:          sink,
		Workers:       cap.MaxSessions(),
		CaptureCfg:    cfg.Capture,
		WebhookSecret: cfg.Pipeline.WebhookSecret,
	})

	// ── 6. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(cap, s, runner, det, cfg, startTime)

	// ── 7. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 8. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete, then wait for
	// running clone jobs before tearing the browser down.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	jobCtx, jobCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer jobCancel()
	if err := runner.Shutdown(jobCtx); err != nil {
		slog.Warn("clone jobs did not drain in time", "error", err)
	}

	// cap.Close() runs via defer — drains the session pool and kills Chrome.
	slog.Info("siteforge stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
