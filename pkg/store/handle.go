package store

import (
	"github.com/cuemby/burrow/pkg/bucket"
	"github.com/cuemby/burrow/pkg/types"
)

// Handle is the user-facing surface of one bucket. It holds no state of
// its own; every call goes through the bucket actor.
type Handle struct {
	actor *bucket.Actor
}

// Name returns the bucket name
func (h *Handle) Name() string {
	return h.actor.Name()
}

// Insert validates and adds a record, returning it fully populated
func (h *Handle) Insert(data types.Record) (types.Record, error) {
	return h.actor.Insert(data)
}

// Get returns the record under key
func (h *Handle) Get(key any) (types.Record, bool) {
	return h.actor.Get(key)
}

// Update merges changes into the record under key
func (h *Handle) Update(key any, changes types.Record) (types.Record, error) {
	return h.actor.Update(key, changes)
}

// Delete removes the record under key; missing keys are a no-op
func (h *Handle) Delete(key any) error {
	return h.actor.Delete(key)
}

// Clear drops every record without emitting events
func (h *Handle) Clear() error {
	return h.actor.Clear()
}

// All returns every record
func (h *Handle) All() ([]types.Record, error) {
	return h.actor.All()
}

// Where returns the records matching filter
func (h *Handle) Where(filter types.Filter) ([]types.Record, error) {
	return h.actor.Where(filter)
}

// FindOne returns the first record matching filter
func (h *Handle) FindOne(filter types.Filter) (types.Record, bool) {
	return h.actor.FindOne(filter)
}

// Count returns how many records match filter
func (h *Handle) Count(filter types.Filter) (int, error) {
	return h.actor.Count(filter)
}

// First returns the first n records in key order (insertion order on
// unordered buckets)
func (h *Handle) First(n int) ([]types.Record, error) {
	return h.actor.First(n)
}

// Last returns the last n records in key order (insertion order on
// unordered buckets)
func (h *Handle) Last(n int) ([]types.Record, error) {
	return h.actor.Last(n)
}

// Paginate returns up to limit records after the cursor
func (h *Handle) Paginate(after string, limit int) (bucket.Page, error) {
	return h.actor.Paginate(after, limit)
}

// Sum adds field's numeric values across matching records
func (h *Handle) Sum(field string, filter types.Filter) (float64, error) {
	return h.actor.Sum(field, filter)
}

// Avg averages field's numeric values across matching records
func (h *Handle) Avg(field string, filter types.Filter) (float64, error) {
	return h.actor.Avg(field, filter)
}

// Min returns field's smallest numeric value; false when none is numeric
func (h *Handle) Min(field string, filter types.Filter) (float64, bool, error) {
	return h.actor.Min(field, filter)
}

// Max returns field's largest numeric value; false when none is numeric
func (h *Handle) Max(field string, filter types.Filter) (float64, bool, error) {
	return h.actor.Max(field, filter)
}

// PurgeExpired removes expired records immediately
func (h *Handle) PurgeExpired() (int, error) {
	return h.actor.PurgeExpired()
}

// Len returns the number of records
func (h *Handle) Len() int {
	return h.actor.Len()
}
