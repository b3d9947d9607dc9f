// Package store provides the hierarchical key-value store backing the
// device-claim core.
//
// Entries are addressed by /-separated path strings and persisted as
// flattened leaves, so an interior path reads back as a nested map of its
// descendants. The contract the claim protocol depends on:
//
//   - Update applies a multi-location write as one indivisible operation; a
//     nil value deletes the path and its subtree.
//   - UpdateIfAbsent makes check-and-claim a single atomic step, failing
//     with ErrPathExists when the guard path is already set.
//   - ServerTimestamp placeholders are replaced with a store-assigned
//     millisecond timestamp at write time.
//   - Watch delivers the current snapshot immediately and a fresh snapshot
//     on every related change; Unsubscribe detaches the listener.
//
// Four engines implement the contract: in-memory (reference, tests), file
// (JSON persistence for single-process deployments), PostgreSQL (pgx,
// LISTEN/NOTIFY change feed), and Redis (MULTI/EXEC writes, WATCH-guarded
// conditional claims, pub/sub change feed). NewStore selects an engine by
// name.
package store
