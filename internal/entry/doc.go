// Package entry stores configuration entries: the durable records a
// completed pairing flow leaves behind.
//
// An entry is identified twice. ID is an opaque row identifier; UniqueID is
// the deterministic key derived from the pairing domain and component name
// ("import_statistics_band5"). The store refuses a second entry with the
// same UniqueID, which is what makes pairing idempotent across restarts.
//
// Guard answers the single question the pairing flow asks of the store:
// is this tracker already configured? It queries on every call and never
// caches, because entries can be created or deleted between two steps of a
// flow.
package entry
