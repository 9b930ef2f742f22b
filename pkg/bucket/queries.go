package bucket

import (
	"sort"
	"strconv"

	"github.com/cuemby/burrow/pkg/types"
)

type msgAll struct{}
type msgWhere struct{ filter types.Filter }
type msgFindOne struct{ filter types.Filter }
type msgCount struct{ filter types.Filter }
type msgFirst struct{ n int }
type msgLast struct{ n int }
type msgPaginate struct {
	after string
	limit int
}

type aggregateKind string

const (
	aggSum aggregateKind = "sum"
	aggAvg aggregateKind = "avg"
	aggMin aggregateKind = "min"
	aggMax aggregateKind = "max"
)

type msgAggregate struct {
	kind   aggregateKind
	field  string
	filter types.Filter
}

// Page is one paginate result
type Page struct {
	Records    []types.Record
	HasMore    bool
	NextCursor string
}

type aggregateResult struct {
	value float64
	valid bool
}

// All returns every record in insertion order
func (a *Actor) All() ([]types.Record, error) {
	v, err := a.do(msgAll{})
	if err != nil {
		return nil, err
	}
	return v.([]types.Record), nil
}

// Where returns the records matching filter by strict equality
func (a *Actor) Where(filter types.Filter) ([]types.Record, error) {
	v, err := a.do(msgWhere{filter: filter})
	if err != nil {
		return nil, err
	}
	return v.([]types.Record), nil
}

// FindOne returns the first record matching filter
func (a *Actor) FindOne(filter types.Filter) (types.Record, bool) {
	v, err := a.do(msgFindOne{filter: filter})
	if err != nil || v == nil {
		return nil, false
	}
	return v.(types.Record), true
}

// Count returns how many records match filter (all records on nil filter)
func (a *Actor) Count(filter types.Filter) (int, error) {
	v, err := a.do(msgCount{filter: filter})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// First returns the first n records in key order (insertion order on
// unordered buckets)
func (a *Actor) First(n int) ([]types.Record, error) {
	v, err := a.do(msgFirst{n: n})
	if err != nil {
		return nil, err
	}
	return v.([]types.Record), nil
}

// Last returns the last n records, still in ascending order
func (a *Actor) Last(n int) ([]types.Record, error) {
	v, err := a.do(msgLast{n: n})
	if err != nil {
		return nil, err
	}
	return v.([]types.Record), nil
}

// Paginate returns up to limit records after the given cursor
func (a *Actor) Paginate(after string, limit int) (Page, error) {
	v, err := a.do(msgPaginate{after: after, limit: limit})
	if err != nil {
		return Page{}, err
	}
	return v.(Page), nil
}

// Sum adds the numeric values of field across matching records
func (a *Actor) Sum(field string, filter types.Filter) (float64, error) {
	res, err := a.aggregate(aggSum, field, filter)
	return res.value, err
}

// Avg averages the numeric values of field across matching records
func (a *Actor) Avg(field string, filter types.Filter) (float64, error) {
	res, err := a.aggregate(aggAvg, field, filter)
	return res.value, err
}

// Min returns the smallest numeric value of field; false when no record
// has a numeric value
func (a *Actor) Min(field string, filter types.Filter) (float64, bool, error) {
	res, err := a.aggregate(aggMin, field, filter)
	return res.value, res.valid, err
}

// Max returns the largest numeric value of field; false when no record
// has a numeric value
func (a *Actor) Max(field string, filter types.Filter) (float64, bool, error) {
	res, err := a.aggregate(aggMax, field, filter)
	return res.value, res.valid, err
}

func (a *Actor) aggregate(kind aggregateKind, field string, filter types.Filter) (aggregateResult, error) {
	v, err := a.do(msgAggregate{kind: kind, field: field, filter: filter})
	if err != nil {
		return aggregateResult{}, err
	}
	return v.(aggregateResult), nil
}

func (a *Actor) handleFindOne(m msgFindOne) response {
	matched := a.match(m.filter)
	if len(matched) == 0 {
		return response{}
	}
	return response{value: matched[0]}
}

func (a *Actor) handleFirst(m msgFirst) response {
	keys := a.orderedKeys()
	if m.n < len(keys) {
		keys = keys[:m.n]
	}
	return response{value: a.collect(keys)}
}

func (a *Actor) handleLast(m msgLast) response {
	keys := a.orderedKeys()
	if m.n < len(keys) {
		keys = keys[len(keys)-m.n:]
	}
	return response{value: a.collect(keys)}
}

func (a *Actor) handlePaginate(m msgPaginate) response {
	keys := a.orderedKeys()

	if m.after != "" {
		if a.def.Ordering == types.OrderingByKey {
			i := sort.Search(len(keys), func(i int) bool {
				return keyLess(m.after, keys[i])
			})
			keys = keys[i:]
		} else {
			// insertion order: resume after the cursor's position
			start := 0
			for i, k := range keys {
				if k == m.after {
					start = i + 1
					break
				}
			}
			keys = keys[start:]
		}
	}

	page := Page{}
	if m.limit > 0 && len(keys) > m.limit {
		page.HasMore = true
		keys = keys[:m.limit]
	}
	page.Records = a.collect(keys)
	if page.HasMore && len(keys) > 0 {
		page.NextCursor = keys[len(keys)-1]
	}
	return response{value: page}
}

func (a *Actor) handleAggregate(m msgAggregate) response {
	res := aggregateResult{}
	count := 0
	for _, record := range a.match(m.filter) {
		f, ok := types.ToNumber(record[m.field])
		if !ok {
			continue
		}
		count++
		switch m.kind {
		case aggSum, aggAvg:
			res.value += f
		case aggMin:
			if !res.valid || f < res.value {
				res.value = f
			}
		case aggMax:
			if !res.valid || f > res.value {
				res.value = f
			}
		}
		res.valid = true
	}
	if m.kind == aggAvg && count > 0 {
		res.value /= float64(count)
	}
	return response{value: res}
}

// match returns the records satisfying filter. When the filter touches an
// indexed field, candidates come from that index and the remaining fields
// post-filter; otherwise every record is scanned.
func (a *Actor) match(filter types.Filter) []types.Record {
	if len(filter) == 0 {
		return a.collect(a.insertionKeys())
	}

	var seed string
	for field := range filter {
		if a.idx.IsIndexed(field) {
			seed = field
			break
		}
	}

	var candidates []string
	if seed != "" {
		candidates = a.idx.Lookup(seed, filter[seed])
	} else {
		candidates = a.insertionKeys()
	}

	var out []types.Record
	for _, key := range candidates {
		record, ok := a.table[key]
		if ok && filter.Matches(record) {
			out = append(out, record)
		}
	}
	return out
}

func (a *Actor) collect(keys []string) []types.Record {
	out := make([]types.Record, 0, len(keys))
	for _, key := range keys {
		if record, ok := a.table[key]; ok {
			out = append(out, record)
		}
	}
	return out
}

// orderedKeys returns keys in ascending primary-key order for
// ordered-by-key buckets, insertion order otherwise
func (a *Actor) orderedKeys() []string {
	keys := a.insertionKeys()
	if a.def.Ordering == types.OrderingByKey {
		sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })
	}
	return keys
}

// keyLess orders keys numerically when both parse as numbers, lexically
// otherwise
func keyLess(a, b string) bool {
	na, errA := strconv.ParseFloat(a, 64)
	nb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}
