// Package tx implements cross-bucket transactions with optimistic
// concurrency.
//
// A Context buffers every mutation locally: inserts and updates as data,
// deletes as tombstones. Reads overlay that buffer on the committed
// state, so a transaction always sees its own writes. The _version
// observed at a key's first buffered touch is remembered and checked at
// commit, which is where conflicts with concurrent writers surface.
//
// Commit walks the touched buckets in registration order, driving each
// bucket's two-phase CommitBatch. If a bucket fails, every previously
// committed bucket is rolled back in reverse using its undo log; rollback
// errors are swallowed individually and the original failure propagates.
// Events are published only after every bucket commits, so subscribers
// never observe a partial transaction.
package tx
