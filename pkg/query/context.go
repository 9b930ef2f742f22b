package query

import (
	"context"

	"github.com/cuemby/burrow/pkg/bucket"
	"github.com/cuemby/burrow/pkg/types"
)

// depSet is the dependency bag filled while one evaluation runs. A
// bucket-level dependency dominates any record-level ones for the same
// bucket.
type depSet struct {
	buckets map[string]*bucketDep
}

type bucketDep struct {
	bucketLevel bool
	keys        map[string]bool
}

func newDepSet() *depSet {
	return &depSet{buckets: make(map[string]*bucketDep)}
}

func (d *depSet) dep(name string) *bucketDep {
	bd := d.buckets[name]
	if bd == nil {
		bd = &bucketDep{keys: make(map[string]bool)}
		d.buckets[name] = bd
	}
	return bd
}

func (d *depSet) addRecord(name, key string) {
	d.dep(name).keys[key] = true
}

func (d *depSet) addBucket(name string) {
	d.dep(name).bucketLevel = true
}

// Context is handed to query functions. It carries the caller's
// context.Context and records dependencies as the query reads buckets.
type Context struct {
	context.Context
	mgr  *Manager
	deps *depSet
}

// Bucket returns a read-only, dependency-tracking view of a bucket
func (c *Context) Bucket(name string) (*BucketView, error) {
	actor, err := c.mgr.resolve(name)
	if err != nil {
		return nil, err
	}
	return &BucketView{name: name, actor: actor, deps: c.deps}, nil
}

// BucketView exposes a bucket's read methods to query functions. Get
// records a record-level dependency; every other read records a
// bucket-level one.
type BucketView struct {
	name  string
	actor *bucket.Actor
	deps  *depSet
}

// Get reads one record and records a record-level dependency on its key
func (v *BucketView) Get(key any) (types.Record, bool) {
	v.deps.addRecord(v.name, types.KeyString(key))
	return v.actor.Get(key)
}

// All reads every record and records a bucket-level dependency
func (v *BucketView) All() ([]types.Record, error) {
	v.deps.addBucket(v.name)
	return v.actor.All()
}

// Where filters records and records a bucket-level dependency
func (v *BucketView) Where(filter types.Filter) ([]types.Record, error) {
	v.deps.addBucket(v.name)
	return v.actor.Where(filter)
}

// FindOne returns the first match and records a bucket-level dependency
func (v *BucketView) FindOne(filter types.Filter) (types.Record, bool) {
	v.deps.addBucket(v.name)
	return v.actor.FindOne(filter)
}

// Count counts matches and records a bucket-level dependency
func (v *BucketView) Count(filter types.Filter) (int, error) {
	v.deps.addBucket(v.name)
	return v.actor.Count(filter)
}

// First reads the first n records and records a bucket-level dependency
func (v *BucketView) First(n int) ([]types.Record, error) {
	v.deps.addBucket(v.name)
	return v.actor.First(n)
}

// Last reads the last n records and records a bucket-level dependency
func (v *BucketView) Last(n int) ([]types.Record, error) {
	v.deps.addBucket(v.name)
	return v.actor.Last(n)
}

// Paginate reads a page and records a bucket-level dependency
func (v *BucketView) Paginate(after string, limit int) (bucket.Page, error) {
	v.deps.addBucket(v.name)
	return v.actor.Paginate(after, limit)
}

// Sum aggregates a field and records a bucket-level dependency
func (v *BucketView) Sum(field string, filter types.Filter) (float64, error) {
	v.deps.addBucket(v.name)
	return v.actor.Sum(field, filter)
}

// Avg aggregates a field and records a bucket-level dependency
func (v *BucketView) Avg(field string, filter types.Filter) (float64, error) {
	v.deps.addBucket(v.name)
	return v.actor.Avg(field, filter)
}

// Min aggregates a field and records a bucket-level dependency
func (v *BucketView) Min(field string, filter types.Filter) (float64, bool, error) {
	v.deps.addBucket(v.name)
	return v.actor.Min(field, filter)
}

// Max aggregates a field and records a bucket-level dependency
func (v *BucketView) Max(field string, filter types.Filter) (float64, bool, error) {
	v.deps.addBucket(v.name)
	return v.actor.Max(field, filter)
}
