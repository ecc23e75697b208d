package audit

import (
	"context"

	"github.com/nerrad567/trackerlink-core/internal/pairing"
	"github.com/nerrad567/trackerlink-core/internal/tracker"
)

// SourcePairing marks logs written for pairing flow outcomes.
const SourcePairing = "pairing"

// Logger is the logging surface the trail needs.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Trail writes audit logs for discovery and pairing events.
//
// It implements discovery.SubmissionObserver and pairing.Observer. Write
// failures are logged and never reach the caller.
type Trail struct {
	repo   Repository
	logger Logger
}

// NewTrail creates a trail writing to repo.
func NewTrail(repo Repository) *Trail {
	return &Trail{repo: repo, logger: noopLogger{}}
}

// SetLogger sets the logger for write failures.
func (t *Trail) SetLogger(logger Logger) {
	t.logger = logger
}

// Record writes one log.
func (t *Trail) Record(ctx context.Context, log *AuditLog) {
	if err := t.repo.Create(ctx, log); err != nil {
		t.logger.Warn("writing audit log failed", "action", log.Action, "entity_id", log.EntityID, "error", err)
	}
}

// SubmissionAccepted records a discovered tracker.
func (t *Trail) SubmissionAccepted(ctx context.Context, source string, d *tracker.Descriptor) {
	t.Record(ctx, &AuditLog{
		Action:     ActionDiscovered,
		EntityType: EntityTracker,
		EntityID:   d.ComponentName,
		Source:     source,
		Details: map[string]any{
			"vendor":   d.Vendor,
			"entities": len(d.Entities),
		},
	})
}

// SubmissionRejected records a refused submission.
func (t *Trail) SubmissionRejected(ctx context.Context, source, componentName string, err error) {
	t.Record(ctx, &AuditLog{
		Action:     ActionRejected,
		EntityType: EntityTracker,
		EntityID:   componentName,
		Source:     source,
		Details:    map[string]any{"error": err.Error()},
	})
}

// TrackerWithdrawn records a tracker removed by its producer or an operator.
func (t *Trail) TrackerWithdrawn(ctx context.Context, source, componentName string) {
	t.Record(ctx, &AuditLog{
		Action:     ActionRemoved,
		EntityType: EntityTracker,
		EntityID:   componentName,
		Source:     source,
	})
}

// FlowFinished records the outcome of a pairing flow.
func (t *Trail) FlowFinished(ctx context.Context, s pairing.Session) {
	log := &AuditLog{
		Action:     ActionFlowAborted,
		EntityType: EntityFlow,
		EntityID:   s.FlowID,
		Source:     SourcePairing,
		Details: map[string]any{
			"component_name": s.ComponentName(),
			"bound":          s.Bound(),
			"duration_ms":    s.Duration().Milliseconds(),
		},
	}
	if s.State == pairing.StateCompleted {
		log.Action = ActionFlowCompleted
		log.Details["entry_id"] = s.EntryID
	} else {
		log.Details["reason"] = string(s.Reason)
		if s.Error != "" {
			log.Details["error"] = s.Error
		}
	}
	t.Record(ctx, log)
}
