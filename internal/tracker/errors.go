package tracker

import "errors"

// Validation errors for discovery submissions.
//
// Every error returned by Validate wraps ErrValidation and exactly one of
// the specific errors below:
//
//	if errors.Is(err, tracker.ErrValidation) {
//	    // reject the submission, do not retry
//	}
var (
	// ErrValidation is the parent of every submission validation failure.
	ErrValidation = errors.New("tracker: invalid submission")

	// ErrMissingKey is returned when component_name is absent or empty.
	ErrMissingKey = errors.New("tracker: component_name is required")

	// ErrEmptyEntityList is returned when no entities are given.
	ErrEmptyEntityList = errors.New("tracker: at least one entity is required")

	// ErrDuplicateEntityName is returned when two entities share a name.
	ErrDuplicateEntityName = errors.New("tracker: duplicate entity name")

	// ErrInvalidEntity is returned when an entity name is empty, too long,
	// or contains characters other than letters, digits and underscores.
	ErrInvalidEntity = errors.New("tracker: invalid entity")

	// ErrInvalidComponentName is returned when component_name is too long
	// or contains characters other than letters, digits and underscores.
	ErrInvalidComponentName = errors.New("tracker: invalid component_name")
)

// validationError joins ErrValidation with one specific error so both
// match errors.Is.
type validationError struct {
	kind   error
	detail string
}

func (e *validationError) Error() string {
	if e.detail == "" {
		return e.kind.Error()
	}
	return e.kind.Error() + ": " + e.detail
}

func (e *validationError) Is(target error) bool {
	return target == ErrValidation || target == e.kind
}

func (e *validationError) Unwrap() error {
	return e.kind
}

func invalid(kind error, detail string) error {
	return &validationError{kind: kind, detail: detail}
}
