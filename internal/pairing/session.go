package pairing

import (
	"time"

	"github.com/nerrad567/trackerlink-core/internal/tracker"
)

// State is the position of a flow in the pairing state machine.
//
//	Init ──▶ AwaitingSelection ──▶ AwaitingConfirmation ──▶ Committing ──▶ Completed
//	  │                                   ▲
//	  └──────────── bound flow ───────────┘
//
// Every non-terminal state can move to Aborted.
type State string

const (
	StateInit                 State = "init"
	StateAwaitingSelection    State = "awaiting_selection"
	StateAwaitingConfirmation State = "awaiting_confirmation"

	// StateCommitting covers the span between the operator's confirmation
	// and the store's answer. It is never observed as a resting state.
	StateCommitting State = "committing"

	StateCompleted State = "completed"
	StateAborted   State = "aborted"
)

// Terminal reports whether no further event is accepted.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

// Reason explains why a flow was aborted.
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonNotFound             Reason = "not_found"
	ReasonAlreadyConfigured    Reason = "already_configured"
	ReasonCreationFailed       Reason = "creation_failed"
	ReasonCancelled            Reason = "cancelled"
	ReasonTimedOut             Reason = "timed_out"
	ReasonNoDiscoveredTrackers Reason = "no_discovered_trackers"
)

// Candidate is one tracker offered in the selection step.
type Candidate struct {
	ComponentName string `json:"component_name"`
	Label         string `json:"label"`
}

// Session is the state of one pairing flow.
//
// Selected is a private snapshot taken when the tracker was chosen; later
// re-discoveries of the same component never change it.
type Session struct {
	FlowID             string              `json:"flow_id"`
	Domain             string              `json:"domain"`
	BoundComponentName string              `json:"bound_component_name,omitempty"`
	State              State               `json:"state"`
	Reason             Reason              `json:"reason,omitempty"`
	Candidates         []Candidate         `json:"candidates,omitempty"`
	Selected           *tracker.Descriptor `json:"selected,omitempty"`
	Description        string              `json:"description,omitempty"`
	EntryID            string              `json:"entry_id,omitempty"`
	Error              string              `json:"error,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`

	// removed is set once the registry removal succeeded during commit.
	removed bool
}

// NewSession returns a session in StateInit.
// An empty bound name starts a generic flow that offers a selection.
func NewSession(flowID, domain, bound string) Session {
	return Session{
		FlowID:             flowID,
		Domain:             domain,
		BoundComponentName: bound,
		State:              StateInit,
	}
}

// Bound reports whether the flow was launched for one specific tracker.
func (s Session) Bound() bool {
	return s.BoundComponentName != ""
}

// Duration is the time from creation to the last transition.
func (s Session) Duration() time.Duration {
	if s.UpdatedAt.IsZero() {
		return 0
	}
	return s.UpdatedAt.Sub(s.CreatedAt)
}

// ComponentName returns the selected tracker, or the bound one before a
// selection exists.
func (s Session) ComponentName() string {
	if s.Selected != nil {
		return s.Selected.ComponentName
	}
	return s.BoundComponentName
}

func (s Session) offers(componentName string) bool {
	for _, c := range s.Candidates {
		if c.ComponentName == componentName {
			return true
		}
	}
	return false
}

// clone returns a copy that shares no memory with s.
func (s Session) clone() Session {
	cpy := s
	cpy.Selected = s.Selected.Clone()
	if s.Candidates != nil {
		cpy.Candidates = append([]Candidate(nil), s.Candidates...)
	}
	return cpy
}
