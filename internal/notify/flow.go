package notify

import (
	"context"
	"time"

	"github.com/nerrad567/trackerlink-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/trackerlink-core/internal/pairing"
)

// ChannelFlowFinished carries finished pairing flows to operator UIs.
const ChannelFlowFinished = "flow.finished"

// FlowOutcome is the event sent when a pairing flow finishes.
type FlowOutcome struct {
	FlowID        string         `json:"flow_id"`
	ComponentName string         `json:"component_name,omitempty"`
	State         pairing.State  `json:"state"`
	Reason        pairing.Reason `json:"reason,omitempty"`
	EntryID       string         `json:"entry_id,omitempty"`
	FinishedAt    time.Time      `json:"finished_at"`
}

// NewFlowOutcome summarises a finished session.
func NewFlowOutcome(s pairing.Session) FlowOutcome {
	return FlowOutcome{
		FlowID:        s.FlowID,
		ComponentName: s.ComponentName(),
		State:         s.State,
		Reason:        s.Reason,
		EntryID:       s.EntryID,
		FinishedAt:    s.UpdatedAt,
	}
}

// FlowFinished implements pairing.Observer.
func (n *MQTTNotifier) FlowFinished(_ context.Context, s pairing.Session) {
	o := NewFlowOutcome(s)
	n.publish(mqtt.EventFlowFinished, o.ComponentName, o)
}

// FlowFinished implements pairing.Observer.
func (n *HubNotifier) FlowFinished(_ context.Context, s pairing.Session) {
	n.hub.Broadcast(ChannelFlowFinished, NewFlowOutcome(s))
}
