package types

import "time"

// System field names stamped onto every record.
const (
	FieldVersion   = "_version"
	FieldCreatedAt = "_createdAt"
	FieldUpdatedAt = "_updatedAt"
	FieldExpiresAt = "_expiresAt"
)

// Record is a single row in a bucket: user fields plus system metadata.
type Record map[string]any

// Clone returns a shallow copy of the record
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Version returns the record's _version, 0 if absent
func (r Record) Version() int64 {
	n, ok := ToInt64(r[FieldVersion])
	if !ok {
		return 0
	}
	return n
}

// CreatedAt returns the record's _createdAt in ms, 0 if absent
func (r Record) CreatedAt() int64 {
	n, ok := ToInt64(r[FieldCreatedAt])
	if !ok {
		return 0
	}
	return n
}

// ExpiresAt returns the record's _expiresAt in ms and whether it is set
func (r Record) ExpiresAt() (int64, bool) {
	v, ok := r[FieldExpiresAt]
	if !ok || v == nil {
		return 0, false
	}
	return ToInt64(v)
}

// NowMs returns the current wall clock in milliseconds
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// Filter matches records by strict field equality.
type Filter map[string]any

// Matches reports whether every filter field equals the record's value
func (f Filter) Matches(r Record) bool {
	for field, want := range f {
		if !ValueEqual(r[field], want) {
			return false
		}
	}
	return true
}
