package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/burrow/pkg/bucket"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/persist"
	"github.com/cuemby/burrow/pkg/query"
	"github.com/cuemby/burrow/pkg/ttl"
	"github.com/cuemby/burrow/pkg/tx"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

var storeSeq atomic.Int64

// PersistenceOptions configure durable snapshots
type PersistenceOptions struct {
	Adapter persist.Adapter

	// Debounce is the save coalescing window (default 100ms). It bounds
	// the data lost to a crash between flushes.
	Debounce time.Duration

	// OnError receives isolated load/save failures. The store keeps
	// running in memory.
	OnError func(error)
}

// Options configure a store
type Options struct {
	// Name identifies the store in snapshot keys and logs. Auto-named
	// sequentially when empty.
	Name string

	Persistence *PersistenceOptions

	// TTLCheckInterval is the purge scan period (default 1s)
	TTLCheckInterval time.Duration

	// DisableTTLScans turns off automatic purging; PurgeExpired still
	// works per bucket
	DisableTTLScans bool
}

type bucketEntry struct {
	actor      *bucket.Actor
	def        *types.BucketDefinition
	regIndex   int
	persistent bool
}

// Store is the façade wiring buckets, transactions, queries, persistence,
// TTL, and the event bus together.
type Store struct {
	name    string
	bus     *events.Bus
	queries *query.Manager
	ttlMgr  *ttl.Manager
	coord   *persist.Coordinator
	logger  zerolog.Logger

	ttlInterval time.Duration

	mu      sync.RWMutex
	buckets map[string]*bucketEntry
	regSeq  int
	stopped bool

	cancelQuerySub events.CancelFunc
}

// New creates and starts a store
func New(opts Options) *Store {
	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("burrow-%d", storeSeq.Add(1))
	}

	s := &Store{
		name:    name,
		bus:     events.NewBus(),
		logger:  log.WithStore(name),
		buckets: make(map[string]*bucketEntry),
	}

	s.queries = query.NewManager(func(bucketName string) (*bucket.Actor, error) {
		return s.actor(bucketName)
	})

	interval := opts.TTLCheckInterval
	if interval == 0 {
		interval = ttl.DefaultCheckInterval
	}
	if opts.DisableTTLScans {
		interval = 0
	}
	s.ttlInterval = interval
	s.ttlMgr = ttl.NewManager(interval)
	s.ttlMgr.Start()

	if opts.Persistence != nil {
		s.coord = persist.NewCoordinator(name, opts.Persistence.Adapter, s.bus,
			opts.Persistence.Debounce, opts.Persistence.OnError)
		s.coord.Start()
	}

	// reactive queries reconsider their subscriptions on every mutation
	s.cancelQuerySub = s.bus.Subscribe("bucket.*.*", func(payload any, topic string) {
		if ev, ok := payload.(*types.ChangeEvent); ok {
			s.queries.OnBucketChange(ev.Bucket, []string{ev.Key})
		}
	})

	s.logger.Info().Bool("persistence", s.coord != nil).Msg("Store started")
	return s
}

// Name returns the store name
func (s *Store) Name() string {
	return s.name
}

// Events returns the store's event bus
func (s *Store) Events() *events.Bus {
	return s.bus
}

// DefineBucket registers a bucket and starts its actor. When persistence
// is configured and the definition does not opt out, a stored snapshot is
// restored silently before the bucket accepts operations.
func (s *Store) DefineBucket(name string, def types.BucketDefinition) error {
	if name == "" {
		return fmt.Errorf("bucket name must not be empty")
	}
	if def.Key == "" {
		return fmt.Errorf("bucket %q needs a primary-key field", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("store %q stopped", s.name)
	}
	if _, exists := s.buckets[name]; exists {
		return &types.BucketAlreadyExistsError{Bucket: name}
	}

	persistent := s.coord != nil && (def.Persistent == nil || *def.Persistent)

	var restored *types.SnapshotState
	if persistent {
		restored = s.coord.Load(name)
	}

	actor, err := bucket.New(s.name, name, &def, s.bus, restored)
	if err != nil {
		return err
	}

	s.regSeq++
	s.buckets[name] = &bucketEntry{
		actor:      actor,
		def:        &def,
		regIndex:   s.regSeq,
		persistent: persistent,
	}

	if persistent {
		s.coord.RegisterBucket(name, actor)
	}
	if def.TTLMs > 0 {
		s.ttlMgr.RegisterBucket(name, actor, def.TTLMs)
	}

	s.logger.Debug().Str("bucket", name).Bool("persistent", persistent).Msg("Bucket defined")
	return nil
}

// DropBucket stops a bucket's actor and removes it from every registry
func (s *Store) DropBucket(name string) error {
	s.mu.Lock()
	entry, ok := s.buckets[name]
	if !ok {
		s.mu.Unlock()
		return &types.BucketNotDefinedError{Bucket: name}
	}
	delete(s.buckets, name)
	s.mu.Unlock()

	if s.coord != nil {
		s.coord.UnregisterBucket(name)
	}
	s.ttlMgr.UnregisterBucket(name)
	entry.actor.Stop()

	s.logger.Debug().Str("bucket", name).Msg("Bucket dropped")
	return nil
}

// Bucket returns a stateless handle over a bucket's actor
func (s *Store) Bucket(name string) (*Handle, error) {
	actor, err := s.actor(name)
	if err != nil {
		return nil, err
	}
	return &Handle{actor: actor}, nil
}

func (s *Store) actor(name string) (*bucket.Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.buckets[name]
	if !ok {
		return nil, &types.BucketNotDefinedError{Bucket: name}
	}
	return entry.actor, nil
}

// Transaction runs fn against a transaction context and commits on
// success. A failing fn abandons the buffer; nothing is persisted and no
// event is emitted.
func (s *Store) Transaction(fn func(txc *tx.Context) error) error {
	txc := tx.NewContext(func(name string) (*bucket.Actor, int, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		entry, ok := s.buckets[name]
		if !ok {
			return nil, 0, &types.BucketNotDefinedError{Bucket: name}
		}
		return entry.actor, entry.regIndex, nil
	})

	if err := fn(txc); err != nil {
		txc.Abandon()
		return err
	}
	return txc.Commit()
}

// DefineQuery registers a named query function
func (s *Store) DefineQuery(name string, fn query.Fn) error {
	return s.queries.Define(name, fn)
}

// RunQuery executes a query once, without tracking or subscription
func (s *Store) RunQuery(ctx context.Context, name string, params any) (any, error) {
	return s.queries.Run(ctx, name, params)
}

// SubscribeQuery subscribes to a query's result changes. The callback is
// not invoked for the initial evaluation.
func (s *Store) SubscribeQuery(ctx context.Context, name string, params any, callback query.Callback) (query.CancelFunc, error) {
	return s.queries.Subscribe(ctx, name, params, callback)
}

// Settle blocks until no query re-evaluations are pending
func (s *Store) Settle() {
	s.queries.Settle()
}

// On subscribes a handler to event topics matching pattern
func (s *Store) On(pattern string, handler events.Handler) events.CancelFunc {
	return s.bus.Subscribe(pattern, handler)
}

// Stop shuts the store down: TTL scans stop, queries are destroyed,
// persistence flushes a final snapshot of every bucket, bucket actors
// terminate, and the bus drops its subscribers — in that order. An
// adapter close failure propagates.
func (s *Store) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	entries := make([]*bucketEntry, 0, len(s.buckets))
	for _, entry := range s.buckets {
		entries = append(entries, entry)
	}
	s.mu.Unlock()

	s.ttlMgr.Stop()
	s.queries.Destroy()

	var closeErr error
	if s.coord != nil {
		closeErr = s.coord.Stop()
	}

	for _, entry := range entries {
		entry.actor.Stop()
	}

	s.cancelQuerySub()
	s.bus.Stop()

	s.logger.Info().Msg("Store stopped")
	return closeErr
}
