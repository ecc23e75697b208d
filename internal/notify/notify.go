// Package notify delivers discovery signals to the collaborators that tell
// an operator a tracker is waiting for review.
//
// The discovery registry emits a Signal on every Put and a removal on every
// effective Remove. Notifiers fan these out over MQTT and the WebSocket hub.
// Delivery is best effort: a failing notifier logs and never fails the
// registry operation that triggered it. Events are not guaranteed to
// arrive in mutation order; Seq increases with every mutation of one
// registry, so the event with the higher Seq is the current state.
package notify

import (
	"time"

	"github.com/nerrad567/trackerlink-core/internal/tracker"
)

// Signal announces that a tracker is pending review.
type Signal struct {
	ComponentName string    `json:"component_name"`
	DisplayTitle  string    `json:"display_title"`
	Vendor        string    `json:"vendor"`
	EntityCount   int       `json:"entity_count"`
	DiscoveredAt  time.Time `json:"discovered_at"`
	Seq           uint64    `json:"seq"`
}

// NewSignal builds the signal for d. Seq is left for the registry to stamp.
func NewSignal(d *tracker.Descriptor) Signal {
	return Signal{
		ComponentName: d.ComponentName,
		DisplayTitle:  d.DisplayTitle(),
		Vendor:        d.Vendor,
		EntityCount:   len(d.Entities),
		DiscoveredAt:  d.DiscoveredAt,
	}
}

// Removal announces that a pending tracker is gone, either withdrawn by
// its producer or consumed by a confirmed pairing.
type Removal struct {
	ComponentName string    `json:"component_name"`
	RemovedAt     time.Time `json:"removed_at"`
	Seq           uint64    `json:"seq"`
}

// Notifier receives discovery signals. Implementations must be safe for
// concurrent use and must not block for long.
type Notifier interface {
	TrackerDiscovered(s Signal)
	TrackerRemoved(r Removal)
}

// Logger is the logging surface used by notifiers.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Multi fans every signal out to each notifier in order.
type Multi []Notifier

// TrackerDiscovered implements Notifier.
func (m Multi) TrackerDiscovered(s Signal) {
	for _, n := range m {
		if n != nil {
			n.TrackerDiscovered(s)
		}
	}
}

// TrackerRemoved implements Notifier.
func (m Multi) TrackerRemoved(r Removal) {
	for _, n := range m {
		if n != nil {
			n.TrackerRemoved(r)
		}
	}
}

// Nop discards every signal.
type Nop struct{}

// TrackerDiscovered implements Notifier.
func (Nop) TrackerDiscovered(Signal) {}

// TrackerRemoved implements Notifier.
func (Nop) TrackerRemoved(Removal) {}
