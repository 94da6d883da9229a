// Package events decouples pipeline internals from presentation. Stages
// publish discrete progress and issue events to a Sink; the project store
// consumes them to update the record the UI polls.
package events

import (
	"log/slog"

	"github.com/siteforge/siteforge/models"
)

// Stage names published with progress events.
const (
	StageCapture  = "capture"
	StageDetect   = "detect"
	StageExtract  = "extract"
	StageAnalyze  = "analyze"
	StageOptimize = "optimize"
	StageConvert  = "convert"
)

// Progress is one discrete progress report from a pipeline stage.
type Progress struct {
	JobID   string
	Stage   string
	Percent int
}

// Sink receives pipeline events. Implementations must be safe for
// concurrent use; stages from the fan-out publish in parallel.
type Sink interface {
	Publish(p Progress)
	Issue(jobID string, issue models.Issue)
}

// ChannelSink buffers progress events on a channel for a single consumer
// and forwards issues directly through a callback. A full channel drops
// the event rather than blocking a pipeline stage.
type ChannelSink struct {
	ch      chan Progress
	onIssue func(jobID string, issue models.Issue)
}

// NewChannelSink creates a ChannelSink with the given buffer size.
func NewChannelSink(buffer int, onIssue func(jobID string, issue models.Issue)) *ChannelSink {
	return &ChannelSink{
		ch:      make(chan Progress, buffer),
		onIssue: onIssue,
	}
}

// Publish enqueues a progress event, dropping it if the consumer lags.
func (s *ChannelSink) Publish(p Progress) {
	select {
	case s.ch <- p:
	default:
		slog.Debug("progress event dropped", "job", p.JobID, "stage", p.Stage)
	}
}

// Issue forwards an issue to the configured callback.
func (s *ChannelSink) Issue(jobID string, issue models.Issue) {
	if s.onIssue != nil {
		s.onIssue(jobID, issue)
	}
}

// Events exposes the progress channel for the consuming goroutine.
func (s *ChannelSink) Events() <-chan Progress {
	return s.ch
}

// Close stops the sink. No Publish may follow.
func (s *ChannelSink) Close() {
	close(s.ch)
}
