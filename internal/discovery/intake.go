package discovery

import (
	"context"

	"github.com/nerrad567/trackerlink-core/internal/tracker"
)

// Submission sources.
const (
	SourceMQTT = "mqtt"
	SourceAPI  = "api"
)

// SubmissionObserver is told the outcome of every submission and withdrawal.
// The audit log and telemetry recorder implement it.
type SubmissionObserver interface {
	SubmissionAccepted(ctx context.Context, source string, d *tracker.Descriptor)
	SubmissionRejected(ctx context.Context, source, componentName string, err error)
	TrackerWithdrawn(ctx context.Context, source, componentName string)
}

// Intake is the single entry point for discovery submissions from any
// transport: validate, then store.
type Intake struct {
	registry  *Registry
	validator tracker.Validator
	observers []SubmissionObserver
}

// NewIntake creates an intake writing validated descriptors to registry.
func NewIntake(registry *Registry, validator tracker.Validator, observers ...SubmissionObserver) *Intake {
	return &Intake{registry: registry, validator: validator, observers: observers}
}

// Registry returns the registry the intake writes to.
func (in *Intake) Registry() *Registry {
	return in.registry
}

// Submit validates s and stores the resulting descriptor.
//
// Errors wrap tracker.ErrValidation for malformed submissions and
// ErrAlreadyPending when the registry rejects a re-discovery. The registry
// is untouched on error.
func (in *Intake) Submit(ctx context.Context, source string, s tracker.Submission) (*tracker.Descriptor, error) {
	d, err := in.validator.Validate(s)
	if err == nil {
		err = in.registry.Put(d)
	}
	if err != nil {
		for _, o := range in.observers {
			o.SubmissionRejected(ctx, source, s.ComponentName, err)
		}
		return nil, err
	}

	for _, o := range in.observers {
		o.SubmissionAccepted(ctx, source, d)
	}
	return d, nil
}

// Withdraw removes a pending tracker on its producer's request.
// It reports whether anything was removed.
func (in *Intake) Withdraw(ctx context.Context, source, componentName string) bool {
	if !in.registry.Remove(componentName) {
		return false
	}
	for _, o := range in.observers {
		o.TrackerWithdrawn(ctx, source, componentName)
	}
	return true
}
