package tx

import (
	"fmt"

	"github.com/cuemby/burrow/pkg/bucket"
	"github.com/cuemby/burrow/pkg/schema"
	"github.com/cuemby/burrow/pkg/types"
)

// BucketHandle buffers one transaction's writes against one bucket.
// Mutations never reach the actor before Commit; reads overlay the buffer
// on the committed state so the transaction sees its own writes.
type BucketHandle struct {
	tx       *Context
	name     string
	actor    *bucket.Actor
	regIndex int

	validator *schema.Validator
	def       *types.BucketDefinition

	// locally tracked autoincrement, fetched from the actor on first use
	counter       int64
	counterLoaded bool

	inserts map[string]types.Record
	updates map[string]types.Record
	deletes map[string]bool

	// expected holds the _version observed at a key's first buffered
	// touch; commit validation compares against it
	expected map[string]int64

	// touchOrder keeps the first-touch order of keys for deterministic
	// batch folding
	touchOrder []string
	touched    map[string]bool
}

func newHandle(tx *Context, name string, actor *bucket.Actor, regIndex int) (*BucketHandle, error) {
	def := actor.Definition()
	validator, err := schema.New(name, def)
	if err != nil {
		return nil, fmt.Errorf("bucket %q schema: %w", name, err)
	}
	return &BucketHandle{
		tx:        tx,
		name:      name,
		actor:     actor,
		regIndex:  regIndex,
		validator: validator,
		def:       def,
		inserts:   make(map[string]types.Record),
		updates:   make(map[string]types.Record),
		deletes:   make(map[string]bool),
		expected:  make(map[string]int64),
		touched:   make(map[string]bool),
	}, nil
}

func (h *BucketHandle) dirty() bool {
	return len(h.inserts)+len(h.updates)+len(h.deletes) > 0
}

func (h *BucketHandle) touch(key string) {
	if !h.touched[key] {
		h.touched[key] = true
		h.touchOrder = append(h.touchOrder, key)
	}
}

func (h *BucketHandle) loadCounter() error {
	if h.counterLoaded {
		return nil
	}
	counter, err := h.actor.Counter()
	if err != nil {
		return err
	}
	h.counter = counter
	h.counterLoaded = true
	return nil
}

// Insert buffers a new record. Generated fields and defaults apply now,
// with autoincrement drawn from the handle's local counter; unique checks
// are deferred to commit.
func (h *BucketHandle) Insert(data types.Record) (types.Record, error) {
	if err := h.loadCounter(); err != nil {
		return nil, err
	}
	record, err := h.validator.PrepareInsert(data, func() int64 {
		h.counter++
		return h.counter
	})
	if err != nil {
		return nil, err
	}

	if h.def.TTLMs > 0 {
		if _, set := record.ExpiresAt(); !set {
			record[types.FieldExpiresAt] = record.CreatedAt() + h.def.TTLMs
		}
	}

	key := types.KeyString(record[h.def.Key])
	h.touch(key)
	delete(h.deletes, key)
	delete(h.updates, key)
	h.inserts[key] = record
	return record, nil
}

// Update buffers changes against the overlaid current record. Updating a
// buffered insert rewrites the insert instead of creating an update op.
func (h *BucketHandle) Update(key any, changes types.Record) (types.Record, error) {
	k := types.KeyString(key)
	current, ok := h.readKey(k)
	if !ok {
		return nil, &types.RecordNotFoundError{Bucket: h.name, Key: k}
	}

	updated, err := h.validator.PrepareUpdate(current, changes)
	if err != nil {
		return nil, err
	}

	h.touch(k)
	if _, isInsert := h.inserts[k]; isInsert {
		h.inserts[k] = updated
		return updated, nil
	}
	if _, captured := h.expected[k]; !captured {
		h.expected[k] = current.Version()
	}
	h.updates[k] = updated
	return updated, nil
}

// Delete buffers a tombstone. Deleting a buffered insert cancels it
// outright; a missing record is a silent no-op.
func (h *BucketHandle) Delete(key any) error {
	k := types.KeyString(key)
	current, ok := h.readKey(k)
	if !ok {
		return nil
	}

	if _, isInsert := h.inserts[k]; isInsert {
		delete(h.inserts, k)
		return nil
	}

	h.touch(k)
	if _, captured := h.expected[k]; !captured {
		h.expected[k] = current.Version()
	}
	delete(h.updates, k)
	h.deletes[k] = true
	return nil
}

// Get reads through the overlay: buffered writes win, tombstones hide
func (h *BucketHandle) Get(key any) (types.Record, bool) {
	return h.readKey(types.KeyString(key))
}

func (h *BucketHandle) readKey(key string) (types.Record, bool) {
	if h.deletes[key] {
		return nil, false
	}
	if record, ok := h.inserts[key]; ok {
		return record, true
	}
	if record, ok := h.updates[key]; ok {
		return record, true
	}
	return h.actor.Get(key)
}

// All returns the committed records with the buffer overlaid
func (h *BucketHandle) All() ([]types.Record, error) {
	base, err := h.actor.All()
	if err != nil {
		return nil, err
	}
	out := make([]types.Record, 0, len(base)+len(h.inserts))
	for _, record := range base {
		key := types.KeyString(record[h.def.Key])
		if h.deletes[key] {
			continue
		}
		if buffered, ok := h.updates[key]; ok {
			out = append(out, buffered)
			continue
		}
		if _, shadowed := h.inserts[key]; shadowed {
			continue
		}
		out = append(out, record)
	}
	for _, key := range h.touchOrder {
		if record, ok := h.inserts[key]; ok {
			out = append(out, record)
		}
	}
	return out, nil
}

// Where filters the overlaid view by strict equality
func (h *BucketHandle) Where(filter types.Filter) ([]types.Record, error) {
	all, err := h.All()
	if err != nil {
		return nil, err
	}
	var out []types.Record
	for _, record := range all {
		if filter.Matches(record) {
			out = append(out, record)
		}
	}
	return out, nil
}

// FindOne returns the first overlaid record matching filter
func (h *BucketHandle) FindOne(filter types.Filter) (types.Record, bool, error) {
	matched, err := h.Where(filter)
	if err != nil {
		return nil, false, err
	}
	if len(matched) == 0 {
		return nil, false, nil
	}
	return matched[0], true, nil
}

// Count counts overlaid records matching filter
func (h *BucketHandle) Count(filter types.Filter) (int, error) {
	if len(filter) == 0 {
		all, err := h.All()
		if err != nil {
			return 0, err
		}
		return len(all), nil
	}
	matched, err := h.Where(filter)
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

// fold reduces the buffer to a minimal batch: inserts, then updates, then
// deletes, each in first-touch order
func (h *BucketHandle) fold() []bucket.CommitOp {
	var ops []bucket.CommitOp
	for _, key := range h.touchOrder {
		if record, ok := h.inserts[key]; ok {
			ops = append(ops, bucket.CommitOp{Kind: bucket.OpInsert, Key: key, Record: record})
		}
	}
	for _, key := range h.touchOrder {
		if record, ok := h.updates[key]; ok {
			ops = append(ops, bucket.CommitOp{
				Kind:            bucket.OpUpdate,
				Key:             key,
				Record:          record,
				ExpectedVersion: h.expected[key],
			})
		}
	}
	for _, key := range h.touchOrder {
		if h.deletes[key] {
			ops = append(ops, bucket.CommitOp{
				Kind:            bucket.OpDelete,
				Key:             key,
				ExpectedVersion: h.expected[key],
			})
		}
	}
	return ops
}
