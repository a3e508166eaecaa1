// Package store provides the SQLite-backed metrics store that sensors read
// from.
//
// The store holds two append-only tables:
//   - metrics: (topic, ts, value) samples, one topic per machine sensor
//     ("furnace-1/voltage")
//   - runs: one row per plant run, keyed by a UUIDv7 run id
//
// Melting state itself (ledgers, sessions, events, alerts) is process-local
// and never written here.
//
// # Ordering
//
// Every read orders by ts ASC, id ASC so repeated reads of the same range
// return identical sequences.
//
// # Time
//
// Timestamps are stored as unix milliseconds and returned in UTC.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads while the ingester writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
package store
