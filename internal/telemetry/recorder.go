// Package telemetry turns discovery and pairing events into time-series
// points.
package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/trackerlink-core/internal/discovery"
	"github.com/nerrad567/trackerlink-core/internal/pairing"
	"github.com/nerrad567/trackerlink-core/internal/tracker"
)

// Submission results.
const (
	ResultAccepted = "accepted"
	ResultInvalid  = "invalid"
	ResultConflict = "conflict"
	ResultError    = "error"
)

// Writer is the time-series sink. *influxdb.Client implements it.
type Writer interface {
	WritePairingFlow(outcome, reason string, bound bool, duration time.Duration)
	WriteRegistrySize(pending int)
	WriteSubmission(result, source string)
}

// Recorder implements discovery.SubmissionObserver and pairing.Observer.
// Writes are non-blocking; the sink batches them.
type Recorder struct {
	w       Writer
	pending func() int
}

// NewRecorder creates a recorder. pending reports the current registry
// size and may be nil.
func NewRecorder(w Writer, pending func() int) *Recorder {
	return &Recorder{w: w, pending: pending}
}

// SubmissionAccepted implements discovery.SubmissionObserver.
func (r *Recorder) SubmissionAccepted(_ context.Context, source string, _ *tracker.Descriptor) {
	r.w.WriteSubmission(ResultAccepted, source)
	r.registrySize()
}

// SubmissionRejected implements discovery.SubmissionObserver.
func (r *Recorder) SubmissionRejected(_ context.Context, source, _ string, err error) {
	r.w.WriteSubmission(Classify(err), source)
}

// TrackerWithdrawn implements discovery.SubmissionObserver.
func (r *Recorder) TrackerWithdrawn(context.Context, string, string) {
	r.registrySize()
}

// FlowFinished implements pairing.Observer.
func (r *Recorder) FlowFinished(_ context.Context, s pairing.Session) {
	r.w.WritePairingFlow(string(s.State), string(s.Reason), s.Bound(), s.Duration())
	if s.State == pairing.StateCompleted {
		r.registrySize()
	}
}

func (r *Recorder) registrySize() {
	if r.pending != nil {
		r.w.WriteRegistrySize(r.pending())
	}
}

// Classify maps a submission error to a result tag.
func Classify(err error) string {
	switch {
	case err == nil:
		return ResultAccepted
	case errors.Is(err, tracker.ErrValidation):
		return ResultInvalid
	case errors.Is(err, discovery.ErrAlreadyPending):
		return ResultConflict
	default:
		return ResultError
	}
}
