// Package query implements named queries and change-driven subscriptions.
//
// A query function reads buckets through its Context, which records what
// the evaluation touched: Get(key) records a record-level dependency,
// every other read records a bucket-level one. On each mutation event the
// manager re-evaluates exactly the subscriptions whose dependencies
// intersect the change, diffs the new result against the last delivered
// one with DeepEqual, and only invokes the callback when they differ.
// Dependencies are re-captured on every evaluation, so a query whose read
// set varies with the data (read bucket B only when bucket A is
// non-empty) tracks correctly over time.
//
// Settle blocks until no re-evaluations are pending, which tests use to
// make callback assertions deterministic.
package query
