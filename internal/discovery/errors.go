package discovery

import "errors"

var (
	// ErrAlreadyPending is returned by Put under PolicyReject when the
	// component name is already waiting for review.
	ErrAlreadyPending = errors.New("discovery: component already pending")

	// ErrNilDescriptor is returned by Put for a nil descriptor or one
	// without a component name.
	ErrNilDescriptor = errors.New("discovery: descriptor has no component name")

	// ErrInvalidPolicy is returned by ParsePolicy for an unknown policy name.
	ErrInvalidPolicy = errors.New("discovery: invalid rediscovery policy")
)
