// Package tracker defines the descriptors of discovered fitness trackers
// and validates discovery submissions into them.
//
// A Submission is the loosely shaped record a producer announces (over MQTT
// or the REST API). Validate turns it into a Descriptor or rejects it with an
// error wrapping ErrValidation. Nothing downstream of Validate ever sees a
// malformed descriptor.
//
//	Submission ──▶ Validate ──▶ *Descriptor ──▶ discovery.Registry
//	                  │
//	                  └──▶ ErrValidation (ErrMissingKey, ErrEmptyEntityList,
//	                        ErrDuplicateEntityName, ErrInvalidEntity,
//	                        ErrInvalidComponentName)
//
// Descriptors are values. Clone returns an independent copy, which is what
// the registry stores and what a pairing session snapshots.
package tracker
