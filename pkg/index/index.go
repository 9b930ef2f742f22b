package index

import (
	"sort"

	"github.com/cuemby/burrow/pkg/types"
)

// Manager maintains the secondary and unique indexes for one bucket. It is
// not safe for concurrent use; the owning bucket actor serializes access.
type Manager struct {
	bucket string

	// entries holds every indexed field: field -> value -> set of keys
	entries map[string]map[string]map[string]bool

	// unique holds the unique fields: field -> value -> owning key
	unique map[string]map[string]string

	uniqueFields []string
}

// NewManager builds the index structure for a bucket definition. Unique
// fields are indexed even when not listed in Indexes.
func NewManager(bucket string, def *types.BucketDefinition) *Manager {
	m := &Manager{
		bucket:  bucket,
		entries: make(map[string]map[string]map[string]bool),
		unique:  make(map[string]map[string]string),
	}
	for _, field := range def.IndexedFields() {
		m.entries[field] = make(map[string]map[string]bool)
	}
	for _, field := range def.UniqueFields() {
		m.unique[field] = make(map[string]string)
		m.uniqueFields = append(m.uniqueFields, field)
	}
	sort.Strings(m.uniqueFields)
	return m
}

// IsIndexed reports whether equality filters on field can use an index
func (m *Manager) IsIndexed(field string) bool {
	_, ok := m.entries[field]
	return ok
}

// Fields returns the indexed field names
func (m *Manager) Fields() []string {
	fields := make([]string, 0, len(m.entries))
	for f := range m.entries {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// indexable reports whether a value participates in indexes. Null values
// and non-scalar values are not indexed.
func indexable(v any) bool {
	if v == nil {
		return false
	}
	switch v.(type) {
	case string, bool:
		return true
	}
	_, isNum := types.ToNumber(v)
	return isNum
}

// CheckUnique verifies record against every unique index without writing.
// excludeKey ignores the record's own existing entries during updates.
func (m *Manager) CheckUnique(key string, record types.Record, excludeKey string) error {
	for _, field := range m.uniqueFields {
		value := record[field]
		if !indexable(value) {
			continue
		}
		owner, taken := m.unique[field][types.KeyString(value)]
		if taken && owner != excludeKey && owner != key {
			return &types.UniqueConstraintError{Bucket: m.bucket, Field: field, Value: value}
		}
	}
	return nil
}

// AddRecord writes all index entries for a new record. All unique fields
// are checked before any entry is written, so a failure leaves every index
// untouched.
func (m *Manager) AddRecord(key string, record types.Record) error {
	if err := m.CheckUnique(key, record, ""); err != nil {
		return err
	}
	m.writeEntries(key, record)
	return nil
}

// RemoveRecord deletes every index entry for a record, dropping empty
// value sets
func (m *Manager) RemoveRecord(key string, record types.Record) {
	for field, values := range m.entries {
		value := record[field]
		if !indexable(value) {
			continue
		}
		vk := types.KeyString(value)
		if set := values[vk]; set != nil {
			delete(set, key)
			if len(set) == 0 {
				delete(values, vk)
			}
		}
	}
	for field, values := range m.unique {
		value := record[field]
		if !indexable(value) {
			continue
		}
		vk := types.KeyString(value)
		if values[vk] == key {
			delete(values, vk)
		}
	}
}

// UpdateRecord swaps a record's index entries from old to new values. On a
// unique collision nothing changes.
func (m *Manager) UpdateRecord(key string, oldRecord, newRecord types.Record) error {
	if err := m.CheckUnique(key, newRecord, key); err != nil {
		return err
	}
	m.RemoveRecord(key, oldRecord)
	m.writeEntries(key, newRecord)
	return nil
}

// Lookup returns the keys whose record holds value in field. Empty when
// the field is not indexed or nothing matches.
func (m *Manager) Lookup(field string, value any) []string {
	values, ok := m.entries[field]
	if !ok || !indexable(value) {
		return nil
	}
	set := values[types.KeyString(value)]
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clear drops every index entry
func (m *Manager) Clear() {
	for field := range m.entries {
		m.entries[field] = make(map[string]map[string]bool)
	}
	for field := range m.unique {
		m.unique[field] = make(map[string]string)
	}
}

func (m *Manager) writeEntries(key string, record types.Record) {
	for field, values := range m.entries {
		value := record[field]
		if !indexable(value) {
			continue
		}
		vk := types.KeyString(value)
		set := values[vk]
		if set == nil {
			set = make(map[string]bool)
			values[vk] = set
		}
		set[key] = true
	}
	for field, values := range m.unique {
		value := record[field]
		if !indexable(value) {
			continue
		}
		values[types.KeyString(value)] = key
	}
}
