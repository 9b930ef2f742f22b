package bucket

import (
	"errors"
	"fmt"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/index"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/schema"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// ErrStopped is returned for operations sent to a stopped actor
var ErrStopped = errors.New("bucket actor stopped")

// request is one message on the actor's queue
type request struct {
	msg   any
	reply chan response
}

// response carries the handler result plus any events to publish. Events
// travel back to the calling goroutine so bus handlers never run on the
// actor loop.
type response struct {
	value  any
	err    error
	events []*types.ChangeEvent
}

// Actor owns one bucket's table, indexes, and autoincrement counter. All
// state access happens on a single goroutine draining the request channel,
// which serializes every operation without locks.
type Actor struct {
	name      string
	storeName string
	def       *types.BucketDefinition
	validator *schema.Validator
	idx       *index.Manager
	bus       *events.Bus
	logger    zerolog.Logger

	table   map[string]types.Record
	order   []string // keys in insertion order
	counter int64

	requests chan request
	quit     chan struct{}
	done     chan struct{}
}

// New builds and starts a bucket actor. restored, when non-nil, seeds the
// table and counter from a snapshot; indexes are rebuilt from the records.
func New(storeName, name string, def *types.BucketDefinition, bus *events.Bus, restored *types.SnapshotState) (*Actor, error) {
	validator, err := schema.New(name, def)
	if err != nil {
		return nil, fmt.Errorf("bucket %q schema: %w", name, err)
	}

	a := &Actor{
		name:      name,
		storeName: storeName,
		def:       def,
		validator: validator,
		idx:       index.NewManager(name, def),
		bus:       bus,
		logger:    log.WithBucket(storeName, name),
		table:     make(map[string]types.Record),
		requests:  make(chan request, 64),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	if restored != nil {
		if err := a.restore(restored); err != nil {
			return nil, err
		}
	}

	go a.run()
	return a, nil
}

// restore rebuilds table and indexes from a snapshot, then resumes the
// counter, raising it to the largest numeric autoincrement key present
// when that is higher.
func (a *Actor) restore(state *types.SnapshotState) error {
	for _, pair := range state.Records {
		if err := a.idx.AddRecord(pair.Key, pair.Record); err != nil {
			return fmt.Errorf("bucket %q restore: %w", a.name, err)
		}
		a.table[pair.Key] = pair.Record
		a.order = append(a.order, pair.Key)
	}
	a.counter = state.AutoincrementCounter

	if a.def.Schema[a.def.Key].Generated == types.GeneratedAutoincrement {
		for _, record := range a.table {
			if id, ok := types.ToInt64(record[a.def.Key]); ok && id > a.counter {
				a.counter = id
			}
		}
	}

	metrics.RecordsTotal.WithLabelValues(a.name).Set(float64(len(a.table)))
	a.logger.Debug().Int("records", len(a.table)).Int64("counter", a.counter).Msg("Bucket restored from snapshot")
	return nil
}

// Name returns the bucket name
func (a *Actor) Name() string {
	return a.name
}

// Definition returns the frozen bucket definition
func (a *Actor) Definition() *types.BucketDefinition {
	return a.def
}

// Stop shuts the actor down and waits for its loop to exit. Requests still
// queued at that point are answered with ErrStopped.
func (a *Actor) Stop() {
	select {
	case <-a.quit:
		return
	default:
	}
	close(a.quit)
	<-a.done
}

func (a *Actor) run() {
	defer close(a.done)
	for {
		select {
		case req := <-a.requests:
			req.reply <- a.handle(req.msg)
		case <-a.quit:
			for {
				select {
				case req := <-a.requests:
					req.reply <- response{err: ErrStopped}
				default:
					return
				}
			}
		}
	}
}

// do sends one message to the actor and waits for its reply. Events
// returned by the handler are published here, on the caller's goroutine,
// so a subscriber is free to issue further bucket operations.
func (a *Actor) do(msg any) (any, error) {
	req := request{msg: msg, reply: make(chan response, 1)}
	select {
	case a.requests <- req:
	case <-a.quit:
		return nil, ErrStopped
	}

	var resp response
	select {
	case resp = <-req.reply:
	case <-a.done:
		select {
		case resp = <-req.reply:
		default:
			return nil, ErrStopped
		}
	}

	for _, ev := range resp.events {
		a.publish(ev)
	}
	return resp.value, resp.err
}

func (a *Actor) publish(ev *types.ChangeEvent) {
	metrics.EventsPublished.Inc()
	a.bus.Publish(ev.Topic(), ev)
}

// PublishEvents publishes pre-collected change events for this bucket.
// The transaction engine uses it after a multi-bucket commit succeeds.
func (a *Actor) PublishEvents(evs []*types.ChangeEvent) {
	for _, ev := range evs {
		a.publish(ev)
	}
}

func (a *Actor) handle(msg any) response {
	switch m := msg.(type) {
	case msgInsert:
		return a.handleInsert(m)
	case msgGet:
		return a.handleGet(m)
	case msgUpdate:
		return a.handleUpdate(m)
	case msgDelete:
		return a.handleDelete(m)
	case msgClear:
		return a.handleClear()
	case msgAll:
		return response{value: a.collect(a.insertionKeys())}
	case msgWhere:
		return response{value: a.match(m.filter)}
	case msgFindOne:
		return a.handleFindOne(m)
	case msgCount:
		return response{value: len(a.match(m.filter))}
	case msgFirst:
		return a.handleFirst(m)
	case msgLast:
		return a.handleLast(m)
	case msgPaginate:
		return a.handlePaginate(m)
	case msgAggregate:
		return a.handleAggregate(m)
	case msgPurgeExpired:
		return a.handlePurgeExpired()
	case msgSnapshot:
		return a.handleSnapshot()
	case msgCounter:
		return response{value: a.counter}
	case msgCommitBatch:
		return a.handleCommitBatch(m)
	case msgRollbackBatch:
		return a.handleRollbackBatch(m)
	case msgLen:
		return response{value: len(a.table)}
	default:
		return response{err: fmt.Errorf("unknown bucket message %T", msg)}
	}
}

// remove deletes a key from table, order, and indexes. Callers emit events.
func (a *Actor) remove(key string, record types.Record) {
	a.idx.RemoveRecord(key, record)
	delete(a.table, key)
	for i, k := range a.order {
		if k == key {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

func (a *Actor) insertionKeys() []string {
	keys := make([]string, len(a.order))
	copy(keys, a.order)
	return keys
}
