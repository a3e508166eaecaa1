// Package session implements the melting session registry.
//
// A melting session is a window over one machine's weight ledger. The
// Registry owns every session in an append-only journal keyed by generated
// ids (m1, m2, ...) and enforces at most one Active session per machine.
// Session values are lightweight handles (id + registry); every accessor
// reads the live registry slot, so a handle obtained before a Stop or
// Update observes the new window.
//
// State machine:
//
//	(none) --Start--> Active --Stop / Update{End}--> Completed
//	                                                  |
//	                                       Update --> Completed (corrected)
//
// Active→Completed happens exactly once per session and publishes
// NotifyCompleted. Every other window change publishes NotifyUpdated.
//
// No registry operation returns an error. Absence is reported with
// (Session{}, false) or an empty slice.
//
// Like the rest of the core, the registry is not safe for concurrent use;
// callers serialize through internal/engine.
package session
