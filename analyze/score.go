package analyze

import (
	"math"

	"github.com/siteforge/siteforge/config"
	"github.com/siteforge/siteforge/models"
)

// compositeScore folds the category scores into the overall 0-100
// score. Disabled or failed categories are nil; their weight is
// redistributed across the categories that did run, so a job with only
// performance analysis enabled still scores on a 0-100 scale.
func compositeScore(cfg config.AnalysisConfig, scores *models.CategoryScores) int {
	type entry struct {
		score  *int
		weight float64
	}
	entries := []entry{
		{scores.Performance, cfg.PerformanceWeight},
		{scores.SEO, cfg.SEOWeight},
		{scores.Security, cfg.SecurityWeight},
		{scores.Accessibility, cfg.AccessibilityWeight},
	}

	var sum, totalWeight float64
	for _, e := range entries {
		if e.score == nil {
			continue
		}
		sum += float64(*e.score) * e.weight
		totalWeight += e.weight
	}
	if totalWeight == 0 {
		return 0
	}
	return int(math.Round(sum / totalWeight))
}

func intPtr(v int) *int { return &v }
