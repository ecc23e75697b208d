// Package api implements the HTTP REST API and WebSocket server for TrackerLink.
//
// This package provides:
//   - REST endpoints for submitting, listing and withdrawing discovered trackers
//   - Pairing flow endpoints (start, select, confirm, cancel)
//   - Configuration entry and audit trail queries
//   - WebSocket hub broadcasting tracker.discovered, tracker.removed and
//     flow.finished events
//   - JWT authentication with ticket-based WebSocket auth
//
// # Security
//
// A single operator signs in with credentials from configuration and
// receives a short-lived JWT. WebSocket connections use single-use tickets
// to prevent token leakage in URLs.
//
// # Graceful Degradation
//
// The server runs without MQTT and without the audit repository; trackers
// can still be submitted over HTTP and paired.
package api
