package bucket

import (
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
)

type msgInsert struct{ data types.Record }
type msgGet struct{ key string }
type msgUpdate struct {
	key     string
	changes types.Record
}
type msgDelete struct{ key string }
type msgClear struct{}
type msgPurgeExpired struct{}
type msgSnapshot struct{}
type msgCounter struct{}
type msgLen struct{}

// Insert validates data, applies generated fields and defaults, enforces
// the capacity cap, and adds the record. Neither table nor indexes change
// on a validation or unique failure.
func (a *Actor) Insert(data types.Record) (types.Record, error) {
	v, err := a.do(msgInsert{data: data})
	if err != nil {
		return nil, err
	}
	return v.(types.Record), nil
}

// Get returns the record stored under key
func (a *Actor) Get(key any) (types.Record, bool) {
	v, err := a.do(msgGet{key: types.KeyString(key)})
	if err != nil {
		return nil, false
	}
	if v == nil {
		return nil, false
	}
	return v.(types.Record), true
}

// Update merges changes into the record under key, bumping its version
func (a *Actor) Update(key any, changes types.Record) (types.Record, error) {
	v, err := a.do(msgUpdate{key: types.KeyString(key), changes: changes})
	if err != nil {
		return nil, err
	}
	return v.(types.Record), nil
}

// Delete removes the record under key. Missing keys are a silent no-op.
func (a *Actor) Delete(key any) error {
	_, err := a.do(msgDelete{key: types.KeyString(key)})
	return err
}

// Clear drops every record and index entry without emitting events
func (a *Actor) Clear() error {
	_, err := a.do(msgClear{})
	return err
}

// PurgeExpired removes every record whose _expiresAt has passed and
// returns how many were removed
func (a *Actor) PurgeExpired() (int, error) {
	v, err := a.do(msgPurgeExpired{})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// Snapshot captures the table and counter atomically
func (a *Actor) Snapshot() (types.SnapshotState, error) {
	v, err := a.do(msgSnapshot{})
	if err != nil {
		return types.SnapshotState{}, err
	}
	return v.(types.SnapshotState), nil
}

// Counter reads the autoincrement counter
func (a *Actor) Counter() (int64, error) {
	v, err := a.do(msgCounter{})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// Len returns the number of records in the bucket
func (a *Actor) Len() int {
	v, err := a.do(msgLen{})
	if err != nil {
		return 0
	}
	return v.(int)
}

// IndexedFields returns the bucket's indexed field names
func (a *Actor) IndexedFields() []string {
	return a.idx.Fields()
}

func (a *Actor) handleInsert(m msgInsert) response {
	record, err := a.validator.PrepareInsert(m.data, a.nextAutoincrement)
	if err != nil {
		return response{err: err}
	}

	if a.def.TTLMs > 0 {
		if _, set := record.ExpiresAt(); !set {
			record[types.FieldExpiresAt] = record.CreatedAt() + a.def.TTLMs
		}
	}

	key := types.KeyString(record[a.def.Key])
	if _, exists := a.table[key]; exists {
		return response{err: &types.UniqueConstraintError{
			Bucket: a.name,
			Field:  a.def.Key,
			Value:  record[a.def.Key],
		}}
	}

	// Pick the eviction victim before the unique dry-run so a value about
	// to leave with the victim does not fail the check.
	var evictKey string
	var evictRecord types.Record
	if a.def.MaxSize > 0 && len(a.table) >= a.def.MaxSize {
		evictKey, evictRecord = a.oldest()
	}
	if err := a.idx.CheckUnique(key, record, evictKey); err != nil {
		return response{err: err}
	}

	var evs []*types.ChangeEvent
	if evictKey != "" {
		a.remove(evictKey, evictRecord)
		metrics.EvictionsTotal.WithLabelValues(a.name).Inc()
		evs = append(evs, &types.ChangeEvent{
			Type:   types.EventDeleted,
			Bucket: a.name,
			Key:    evictKey,
			Record: evictRecord,
		})
	}

	if err := a.idx.AddRecord(key, record); err != nil {
		// unreachable after the dry-run; restore the victim if one left
		if evictKey != "" {
			_ = a.idx.AddRecord(evictKey, evictRecord)
			a.table[evictKey] = evictRecord
			a.order = append(a.order, evictKey)
		}
		return response{err: err}
	}
	a.table[key] = record
	a.order = append(a.order, key)

	metrics.OperationsTotal.WithLabelValues(a.name, "insert").Inc()
	metrics.RecordsTotal.WithLabelValues(a.name).Set(float64(len(a.table)))

	evs = append(evs, &types.ChangeEvent{
		Type:   types.EventInserted,
		Bucket: a.name,
		Key:    key,
		Record: record,
	})
	return response{value: record, events: evs}
}

func (a *Actor) nextAutoincrement() int64 {
	a.counter++
	return a.counter
}

// oldest returns the record with the minimum _createdAt, breaking ties by
// insertion order
func (a *Actor) oldest() (string, types.Record) {
	var oldestKey string
	var oldestRecord types.Record
	var oldestAt int64
	for _, key := range a.order {
		record := a.table[key]
		at := record.CreatedAt()
		if oldestKey == "" || at < oldestAt {
			oldestKey, oldestRecord, oldestAt = key, record, at
		}
	}
	return oldestKey, oldestRecord
}

func (a *Actor) handleGet(m msgGet) response {
	record, ok := a.table[m.key]
	if !ok {
		return response{}
	}
	return response{value: record}
}

func (a *Actor) handleUpdate(m msgUpdate) response {
	current, ok := a.table[m.key]
	if !ok {
		return response{err: &types.RecordNotFoundError{Bucket: a.name, Key: m.key}}
	}

	updated, err := a.validator.PrepareUpdate(current, m.changes)
	if err != nil {
		return response{err: err}
	}
	if err := a.idx.UpdateRecord(m.key, current, updated); err != nil {
		return response{err: err}
	}
	a.table[m.key] = updated

	metrics.OperationsTotal.WithLabelValues(a.name, "update").Inc()

	return response{value: updated, events: []*types.ChangeEvent{{
		Type:      types.EventUpdated,
		Bucket:    a.name,
		Key:       m.key,
		OldRecord: current,
		NewRecord: updated,
	}}}
}

func (a *Actor) handleDelete(m msgDelete) response {
	record, ok := a.table[m.key]
	if !ok {
		return response{}
	}
	a.remove(m.key, record)

	metrics.OperationsTotal.WithLabelValues(a.name, "delete").Inc()
	metrics.RecordsTotal.WithLabelValues(a.name).Set(float64(len(a.table)))

	return response{events: []*types.ChangeEvent{{
		Type:   types.EventDeleted,
		Bucket: a.name,
		Key:    m.key,
		Record: record,
	}}}
}

func (a *Actor) handleClear() response {
	a.table = make(map[string]types.Record)
	a.order = nil
	a.idx.Clear()
	metrics.RecordsTotal.WithLabelValues(a.name).Set(0)
	return response{}
}

func (a *Actor) handlePurgeExpired() response {
	now := types.NowMs()
	var evs []*types.ChangeEvent
	for _, key := range a.insertionKeys() {
		record := a.table[key]
		expires, set := record.ExpiresAt()
		if !set || expires > now {
			continue
		}
		a.remove(key, record)
		evs = append(evs, &types.ChangeEvent{
			Type:   types.EventDeleted,
			Bucket: a.name,
			Key:    key,
			Record: record,
		})
	}
	if len(evs) > 0 {
		metrics.ExpiredTotal.WithLabelValues(a.name).Add(float64(len(evs)))
		metrics.RecordsTotal.WithLabelValues(a.name).Set(float64(len(a.table)))
	}
	return response{value: len(evs), events: evs}
}

func (a *Actor) handleSnapshot() response {
	pairs := make([]types.SnapshotPair, 0, len(a.order))
	for _, key := range a.order {
		pairs = append(pairs, types.SnapshotPair{Key: key, Record: a.table[key].Clone()})
	}
	return response{value: types.SnapshotState{
		Records:              pairs,
		AutoincrementCounter: a.counter,
	}}
}
