// Package discovery holds trackers that have been announced but not yet
// paired.
//
// # Architecture
//
//	 MQTT announcement ─┐
//	                    ├─▶ Intake ──validate──▶ Registry ──signal──▶ notify.Notifier
//	 REST submission  ──┘                           ▲
//	                                                │ Get / List / Remove
//	                                         pairing.Manager
//
// The Registry is process-wide state passed by handle. It is created empty
// at startup and discarded at shutdown; nothing is written to disk.
//
// # Re-discovery
//
// A second submission for a pending component name replaces the first
// (PolicyOverwrite, the default) or is refused with ErrAlreadyPending
// (PolicyReject). Replacement is wholesale: entity lists are never merged.
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use. Remove reports whether
// it deleted anything, which is how a pairing flow detects that a concurrent
// flow confirmed the same tracker first.
package discovery
