// Package bucket implements the per-bucket actor, the serialization point
// for everything that touches a bucket's state.
//
// Each Actor owns one table (key to record), its index manager, and its
// autoincrement counter. Operations arrive as messages on a single request
// channel drained by one goroutine, so every operation runs to completion
// before the next starts. That gives serializability within a bucket with
// no locks, and makes Snapshot trivially atomic.
//
// Change events produced by a handler travel back to the calling goroutine
// and are published there. A subscriber issuing further bucket operations
// from its handler therefore enqueues new messages instead of deadlocking
// the actor loop.
//
// CommitBatch is the transaction engine's entry point: a two-phase
// validate-all-then-apply-all over a list of prepared operations. Phase 1
// checks key presence, expected versions, and unique constraints against
// current state; any failure surfaces as a TransactionConflictError before
// anything changes. Phase 2 applies in order and accumulates the events to
// publish and an undo log. The actor does not publish batch events itself;
// the caller publishes them once every bucket in the transaction has
// committed, and feeds the undo log back through RollbackBatch if a later
// bucket fails.
package bucket
