package analyze

import (
	"github.com/siteforge/siteforge/capture"
	"github.com/siteforge/siteforge/models"
)

// vitalThreshold holds the good/poor boundaries for one metric, per the
// published web-vitals classification. Values between the two bounds
// rate "needs-improvement".
type vitalThreshold struct {
	good float64
	poor float64
}

var vitalThresholds = map[string]vitalThreshold{
	"lcp":  {good: 2500, poor: 4000},
	"fcp":  {good: 1800, poor: 3000},
	"ttfb": {good: 800, poor: 1800},
	"inp":  {good: 200, poor: 500},
	"cls":  {good: 0.1, poor: 0.25},
}

func classify(metric string, value float64) models.MetricValue {
	t := vitalThresholds[metric]
	rating := models.RatingGood
	switch {
	case value > t.poor:
		rating = models.RatingPoor
	case value > t.good:
		rating = models.RatingNeedsImprovement
	}
	return models.MetricValue{Value: value, Rating: rating}
}

// computeWebVitals derives the vitals estimate from capture-phase
// observations. These are lab numbers from a single load, not field
// data; INP in particular is estimated from main-thread contention
// since no real user input happened.
func computeWebVitals(snap *capture.PageSnapshot) (models.CoreWebVitals, models.AdditionalMetrics) {
	var cls float64
	for _, shift := range snap.LayoutShifts {
		cls += shift.Value
	}

	// TBT counts main-thread time beyond the 50ms budget per task.
	var tbt, longestTask, lastTaskEnd float64
	for _, task := range snap.LongTasks {
		if task.DurationMs > 50 {
			tbt += task.DurationMs - 50
		}
		if task.DurationMs > longestTask {
			longestTask = task.DurationMs
		}
		if end := task.StartMs + task.DurationMs; end > lastTaskEnd {
			lastTaskEnd = end
		}
	}

	// A synthetic interaction lands on a busy main thread at worst for
	// the longest observed task, plus one frame of input delay.
	inp := 16 + longestTask

	tti := snap.Timing.DOMContentLoadedMs
	if lastTaskEnd > tti {
		tti = lastTaskEnd
	}

	vitals := models.CoreWebVitals{
		LCP:  classify("lcp", snap.Timing.LCPMs),
		INP:  classify("inp", inp),
		CLS:  classify("cls", cls),
		FCP:  classify("fcp", snap.Timing.FCPMs),
		TTFB: classify("ttfb", snap.Timing.TTFBMs),
	}
	additional := models.AdditionalMetrics{
		TBT:        tbt,
		TTI:        tti,
		SpeedIndex: (snap.Timing.FCPMs + snap.Timing.LCPMs) / 2,
	}
	return vitals, additional
}

// collectResourceMetrics folds the capture network log and the
// downloaded asset set into the page-weight view.
func collectResourceMetrics(snap *capture.PageSnapshot, assets []models.AssetRecord) models.ResourceMetrics {
	rm := models.ResourceMetrics{
		NetworkRequests: snap.Network,
		LongTasks:       snap.LongTasks,
	}
	rm.TotalPageSize = int64(len(snap.HTML))
	for _, a := range assets {
		rm.Resources = append(rm.Resources, models.ResourceEntry{
			URL:      a.OriginalURL,
			Type:     a.MimeType,
			ByteSize: a.ByteSize,
		})
		rm.TotalPageSize += a.ByteSize
	}
	return rm
}

// performanceScore maps the vitals ratings onto a 0-100 score. Each
// metric contributes its share fully when good, half when
// needs-improvement, nothing when poor.
func performanceScore(vitals models.CoreWebVitals, additional models.AdditionalMetrics) int {
	weights := []struct {
		m models.MetricValue
		w int
	}{
		{vitals.LCP, 30},
		{vitals.CLS, 25},
		{vitals.INP, 20},
		{vitals.FCP, 15},
		{vitals.TTFB, 10},
	}
	score := 0
	for _, e := range weights {
		switch e.m.Rating {
		case models.RatingGood:
			score += e.w
		case models.RatingNeedsImprovement:
			score += e.w / 2
		}
	}
	return score
}
