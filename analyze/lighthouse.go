package analyze

import (
	"context"

	"github.com/siteforge/siteforge/models"
)

// Auditor produces Lighthouse-style category scores for a page.
// Deployments with a real Lighthouse runner plug it in here; the
// default derives the scores from the audits this package already ran,
// so the field is always populated.
type Auditor interface {
	Audit(ctx context.Context, pageURL string, scores *models.CategoryScores) (*models.LighthouseScores, error)
}

// derivedAuditor is the default Auditor. It mirrors the internal
// category scores into the Lighthouse shape instead of launching an
// external audit.
type derivedAuditor struct{}

func NewDerivedAuditor() Auditor { return derivedAuditor{} }

func (derivedAuditor) Audit(_ context.Context, _ string, scores *models.CategoryScores) (*models.LighthouseScores, error) {
	ls := &models.LighthouseScores{}
	if scores.Performance != nil {
		ls.Performance = *scores.Performance
	}
	if scores.Accessibility != nil {
		ls.Accessibility = *scores.Accessibility
	}
	if scores.SEO != nil {
		ls.SEO = *scores.SEO
	}
	if scores.Security != nil {
		// Best-practices is the closest Lighthouse category to the
		// security audit.
		ls.BestPractices = *scores.Security
	}
	return ls, nil
}
