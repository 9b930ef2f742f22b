// Package persist gives burrow durable, snapshot-only persistence over a
// pluggable Adapter.
//
// The Coordinator subscribes to bucket.*.* events and marks buckets dirty
// as they mutate. A single debounce timer coalesces any number of
// mutations into one save per bucket per window; on fire the dirty set is
// frozen and each bucket is snapshotted through its actor and saved in
// parallel, with exponential-backoff retries per key. The crash-loss
// window equals the debounce interval.
//
// Two adapters ship here: BoltAdapter stores one JSON envelope per key in
// a BoltDB file; MemoryAdapter backs tests and ephemeral embedding with
// the same JSON round-trip fidelity.
package persist
