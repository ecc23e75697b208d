package pairing

import (
	"fmt"
	"strings"

	"github.com/nerrad567/trackerlink-core/internal/entry"
	"github.com/nerrad567/trackerlink-core/internal/tracker"
)

// Event is an input to the state machine. Lookups against the registry and
// the entry store are done by the caller and carried in the event, so
// Transition itself performs no I/O.
type Event interface {
	event() string
}

// Lookup is the result of fetching one tracker and checking its unique id.
// Descriptor is nil when the registry had no entry.
type Lookup struct {
	Descriptor *tracker.Descriptor
	Configured bool
}

// Begin starts the flow. A bound flow carries the lookup of its tracker;
// a generic flow carries every pending descriptor.
type Begin struct {
	Lookup     Lookup
	Candidates []*tracker.Descriptor
}

// Select picks one of the offered candidates.
type Select struct {
	ComponentName string
	Lookup        Lookup
}

// Confirm accepts the selected tracker. Configured is the unique-id check
// evaluated at the moment of confirmation.
type Confirm struct {
	Configured bool
}

// Removed reports the result of RemoveDescriptor.
type Removed struct {
	OK bool
}

// Created reports the result of CreateEntry.
type Created struct {
	EntryID string
	Err     error
}

// Cancel abandons the flow on the operator's request.
type Cancel struct{}

// Timeout abandons the flow because the operator did not answer in time.
type Timeout struct{}

func (Begin) event() string   { return "begin" }
func (Select) event() string  { return "select" }
func (Confirm) event() string { return "confirm" }
func (Removed) event() string { return "removed" }
func (Created) event() string { return "created" }
func (Cancel) event() string  { return "cancel" }
func (Timeout) event() string { return "timeout" }

// Effect is an action the caller must perform after a transition.
type Effect interface {
	effect()
}

// RemoveDescriptor removes the tracker from the registry. The caller
// answers with Removed.
type RemoveDescriptor struct {
	ComponentName string
}

// CreateEntry asks the entry store to persist the tracker. The caller
// answers with Created.
type CreateEntry struct {
	Request entry.CreateRequest
}

// RestoreDescriptor puts the snapshot back into the registry after a
// failed creation. Only emitted when Machine.RestoreOnCreationFailure is set.
type RestoreDescriptor struct {
	Descriptor *tracker.Descriptor
}

// Finish announces that the flow reached a terminal state.
type Finish struct {
	State  State
	Reason Reason
}

func (RemoveDescriptor) effect()  {}
func (CreateEntry) effect()       {}
func (RestoreDescriptor) effect() {}
func (Finish) effect()            {}

// Machine holds the rules of the pairing state machine.
type Machine struct {
	// RestoreOnCreationFailure puts a confirmed descriptor back into the
	// registry when the store refuses it. Off by default: the tracker must
	// then be re-discovered.
	RestoreOnCreationFailure bool
}

// Transition applies ev to s and returns the new session with the effects
// the caller must carry out, in order.
//
// s is never modified. On error the returned session equals s and no
// effect is emitted.
func (m Machine) Transition(s Session, ev Event) (Session, []Effect, error) {
	if s.State.Terminal() {
		return s, nil, fmt.Errorf("%w: %s after %s", ErrInvalidTransition, ev.event(), s.State)
	}

	next := s.clone()
	switch e := ev.(type) {
	case Begin:
		if s.State != StateInit {
			break
		}
		if next.Bound() {
			return m.choose(next, e.Lookup)
		}
		if len(e.Candidates) == 0 {
			return abort(next, ReasonNoDiscoveredTrackers)
		}
		next.Candidates = candidates(e.Candidates)
		next.Description = selectionText(next.Candidates)
		next.State = StateAwaitingSelection
		return next, nil, nil

	case Select:
		if s.State != StateAwaitingSelection {
			break
		}
		if !s.offers(e.ComponentName) {
			return s, nil, fmt.Errorf("%w: %q", ErrInvalidSelection, e.ComponentName)
		}
		if e.Lookup.Descriptor != nil && e.Lookup.Descriptor.ComponentName != e.ComponentName {
			return s, nil, fmt.Errorf("%w: lookup is for %q, not %q",
				ErrInvalidTransition, e.Lookup.Descriptor.ComponentName, e.ComponentName)
		}
		next.Candidates = nil
		return m.choose(next, e.Lookup)

	case Confirm:
		if s.State != StateAwaitingConfirmation {
			break
		}
		if e.Configured {
			return abort(next, ReasonAlreadyConfigured)
		}
		next.State = StateCommitting
		return next, []Effect{RemoveDescriptor{ComponentName: next.Selected.ComponentName}}, nil

	case Removed:
		if s.State != StateCommitting || s.removed {
			break
		}
		if !e.OK {
			// Another flow confirmed this tracker first.
			return abort(next, ReasonNotFound)
		}
		next.removed = true
		req := entry.NewDiscoveryRequest(next.Domain, next.Selected)
		return next, []Effect{CreateEntry{Request: req}}, nil

	case Created:
		if s.State != StateCommitting || !s.removed {
			break
		}
		if e.Err != nil {
			next.Error = e.Err.Error()
			var effects []Effect
			if m.RestoreOnCreationFailure {
				effects = append(effects, RestoreDescriptor{Descriptor: next.Selected.Clone()})
			}
			aborted, finish, _ := abort(next, ReasonCreationFailed)
			return aborted, append(effects, finish...), nil
		}
		next.EntryID = e.EntryID
		next.State = StateCompleted
		return next, []Effect{Finish{State: StateCompleted}}, nil

	case Cancel:
		if s.State == StateCommitting {
			break
		}
		return abort(next, ReasonCancelled)

	case Timeout:
		if s.State == StateCommitting {
			break
		}
		return abort(next, ReasonTimedOut)
	}

	return s, nil, fmt.Errorf("%w: %s in %s", ErrInvalidTransition, ev.event(), s.State)
}

// choose moves to confirmation for a looked-up tracker, or aborts when it is
// gone or already configured.
func (m Machine) choose(s Session, l Lookup) (Session, []Effect, error) {
	switch {
	case l.Descriptor == nil:
		return abort(s, ReasonNotFound)
	case l.Configured:
		return abort(s, ReasonAlreadyConfigured)
	}
	s.Selected = l.Descriptor.Clone()
	s.Description = s.Selected.ConfirmationText()
	s.State = StateAwaitingConfirmation
	return s, nil, nil
}

func abort(s Session, reason Reason) (Session, []Effect, error) {
	s.State = StateAborted
	s.Reason = reason
	return s, []Effect{Finish{State: StateAborted, Reason: reason}}, nil
}

func candidates(ds []*tracker.Descriptor) []Candidate {
	out := make([]Candidate, 0, len(ds))
	for _, d := range ds {
		out = append(out, Candidate{ComponentName: d.ComponentName, Label: d.SelectionLabel()})
	}
	return out
}

func selectionText(cs []Candidate) string {
	lines := make([]string, len(cs))
	for i, c := range cs {
		lines[i] = "- " + c.ComponentName + ": " + c.Label
	}
	return strings.Join(lines, "\n")
}
