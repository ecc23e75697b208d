package entry

import "errors"

// Domain errors for configuration entries.
var (
	// ErrEntryNotFound is returned when an entry does not exist.
	ErrEntryNotFound = errors.New("entry: not found")

	// ErrEntryExists is returned when an entry with the same unique id exists.
	ErrEntryExists = errors.New("entry: unique id already configured")

	// ErrInvalidEntry is returned when a creation request is incomplete.
	ErrInvalidEntry = errors.New("entry: invalid creation request")
)
