package pairing

import "errors"

// Domain errors for pairing flows.
//
// Flow outcomes such as not_found or already_configured are not errors;
// they are reported through Session.Reason. These errors mean the caller
// asked for something the flow cannot do.
var (
	// ErrFlowNotFound is returned when no flow has the given id.
	ErrFlowNotFound = errors.New("pairing: flow not found")

	// ErrInvalidTransition is returned when an event is not accepted in the
	// flow's current state, including any event after a terminal state.
	ErrInvalidTransition = errors.New("pairing: invalid transition")

	// ErrInvalidSelection is returned when the selected component name was
	// not one of the candidates offered by the flow.
	ErrInvalidSelection = errors.New("pairing: component not offered for selection")

	// ErrManagerClosed is returned by Start after Close.
	ErrManagerClosed = errors.New("pairing: manager closed")
)
