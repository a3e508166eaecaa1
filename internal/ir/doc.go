// Package ir provides the shared value types that cross package boundaries
// in meltshop: events, sensor readings and the rule evaluation context.
//
// This package contains type definitions and serialization only. All other
// internal packages may import ir; ir imports nothing internal. This keeps
// ir the foundational layer with no circular dependencies between the event
// log, the alert log and the rule engine.
//
// Key design constraints:
//   - Event is immutable: accessors return copies of properties and labels
//   - Labels and string payloads are NFC normalized
//   - Context is a tagged union, always switched on Kind exhaustively
//   - All JSON tags use snake_case
package ir
