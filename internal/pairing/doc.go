// Package pairing turns a discovered tracker into a configuration entry
// through an operator-driven flow.
//
// The flow is a finite-state machine. Machine.Transition is pure: it takes a
// Session and an Event and returns the next Session plus the Effects to
// carry out. Manager owns the I/O: it looks trackers up in the registry,
// queries the unique-id guard, performs effects and feeds their results
// back as events.
//
// # Confirmation order
//
//  1. The unique-id guard is queried again.
//  2. The tracker is removed from the registry. If it is already gone,
//     another flow won and this one aborts with not_found.
//  3. The configuration entry is created. A store failure aborts with
//     creation_failed; the tracker is not restored unless configured.
//
// Cancellation and timeouts never touch the registry.
package pairing
