// Package analyze turns a page snapshot into the performance, SEO,
// security, and accessibility report. Every sub-audit fails soft: an
// audit that errors records an AnalysisError issue and leaves its
// category score nil, and the composite redistributes its weight.
package analyze

import (
	"context"
	"log/slog"
	"strings"

	"github.com/siteforge/siteforge/capture"
	"github.com/siteforge/siteforge/config"
	"github.com/siteforge/siteforge/models"
)

// Input is everything the analysis fan-out stage reads. The snapshot
// is immutable by the time it arrives here.
type Input struct {
	Snapshot     *capture.PageSnapshot
	Assets       []models.AssetRecord
	Technologies []models.Technology
	Options      models.CloneOptions
}

type Analyzer struct {
	cfg     config.AnalysisConfig
	auditor Auditor
}

func New(cfg config.AnalysisConfig, auditor Auditor) *Analyzer {
	if auditor == nil {
		auditor = NewDerivedAuditor()
	}
	return &Analyzer{cfg: cfg, auditor: auditor}
}

// Run executes the enabled audits and assembles the metrics record.
// Returns nil when every analysis toggle is off.
func (a *Analyzer) Run(ctx context.Context, in Input) *models.PerformanceMetrics {
	opts := in.Options
	if !opts.PerformanceAnalysis && !opts.SEOAnalysis && !opts.SecurityScan {
		return nil
	}

	snap := in.Snapshot
	m := &models.PerformanceMetrics{}

	if opts.PerformanceAnalysis {
		vitals, additional := computeWebVitals(snap)
		m.CoreWebVitals = vitals
		m.AdditionalMetrics = additional
		m.ResourceMetrics = collectResourceMetrics(snap, in.Assets)
		m.Scores.Performance = intPtr(performanceScore(vitals, additional))
		a.flagPerformanceIssues(m)
	}

	if opts.SEOAnalysis {
		if seo, err := auditSEO(snap.FinalURL, snap.HTML); err != nil {
			a.recordFailure(m, "seo", err)
		} else {
			m.Scores.SEO = intPtr(seo.score)
			m.Issues = append(m.Issues, seo.issues...)
			m.Recommendations = append(m.Recommendations, seo.recommendations...)
		}

		if a11y, err := auditAccessibility(snap.HTML); err != nil {
			a.recordFailure(m, "accessibility", err)
		} else {
			m.Scores.Accessibility = intPtr(a11y.score)
			m.Issues = append(m.Issues, a11y.issues...)
			m.Recommendations = append(m.Recommendations, a11y.recommendations...)
		}
	}

	if opts.SecurityScan {
		sec := auditSecurity(snap.FinalURL, snap.Headers, snap.HTML, in.Technologies)
		m.Scores.Security = intPtr(sec.score)
		m.Issues = append(m.Issues, sec.issues...)
		m.Recommendations = append(m.Recommendations, sec.recommendations...)
	}

	if warn := compatibilityWarning(in.Technologies); warn != nil {
		m.Issues = append(m.Issues, *warn)
	}

	m.Scores.Overall = compositeScore(a.cfg, &m.Scores)

	if ls, err := a.auditor.Audit(ctx, snap.FinalURL, &m.Scores); err != nil {
		slog.Warn("lighthouse audit failed", "url", snap.FinalURL, "error", err)
	} else {
		m.Lighthouse = ls
	}

	return m
}

// flagPerformanceIssues turns poor vitals into actionable issues.
func (a *Analyzer) flagPerformanceIssues(m *models.PerformanceMetrics) {
	checks := []struct {
		name   string
		metric models.MetricValue
		advice string
	}{
		{"LCP", m.CoreWebVitals.LCP, "reduce render-blocking resources and preload the largest element"},
		{"CLS", m.CoreWebVitals.CLS, "reserve space for images and embeds to stop layout shifts"},
		{"INP", m.CoreWebVitals.INP, "break up long main-thread tasks"},
		{"FCP", m.CoreWebVitals.FCP, "inline critical CSS and defer the rest"},
		{"TTFB", m.CoreWebVitals.TTFB, "add caching or a CDN in front of the origin"},
	}
	for _, c := range checks {
		if c.metric.Rating == models.RatingPoor {
			m.Issues = append(m.Issues, models.Issue{
				Kind:     models.IssuePerformance,
				Severity: "warning",
				Message:  c.name + " rates poor",
			})
			m.Recommendations = append(m.Recommendations, c.advice)
		}
	}
}

// recordFailure degrades one failed sub-audit to an issue.
func (a *Analyzer) recordFailure(m *models.PerformanceMetrics, audit string, err error) {
	slog.Warn("analysis sub-audit failed", "audit", audit, "error", err)
	m.Issues = append(m.Issues, models.Issue{
		Kind:     models.IssueAnalysis,
		Severity: "error",
		Message:  audit + " audit failed",
		Detail:   err.Error(),
	})
}

// compatibilityWarning fires when two content-management stacks were
// both detected with real confidence. Converted output can only follow
// one of them, so the result needs review.
func compatibilityWarning(techs []models.Technology) *models.Issue {
	var cms []string
	for _, t := range techs {
		if (t.Category == "cms" || t.Category == "page-builder") && t.Confidence >= 50 {
			cms = append(cms, t.Name)
		}
	}
	if len(cms) < 2 {
		return nil
	}
	return &models.Issue{
		Kind:     models.IssueCompatibility,
		Severity: "warning",
		Message:  "multiple content platforms detected: " + strings.Join(cms, ", "),
		Detail:   "conversion targets a single platform; verify the generated output",
	}
}
