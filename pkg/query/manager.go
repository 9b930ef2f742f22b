package query

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cuemby/burrow/pkg/bucket"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// Fn is a named query function. It reads buckets through ctx.Bucket and
// returns any result value; results are diffed with DeepEqual to decide
// whether subscribers hear about a change.
type Fn func(ctx *Context, params any) (any, error)

// Callback receives a subscription's new result
type Callback func(result any)

// CancelFunc cancels a subscription. Safe to call more than once.
type CancelFunc func()

type subscription struct {
	id        int64
	name      string
	params    any
	callback  Callback
	cancelled atomic.Bool

	// guarded by Manager.mu
	lastResult any
	deps       *depSet
}

// Manager registers named queries and delivers change-driven updates to
// subscribers. Dependencies are tracked per subscription at record or
// bucket granularity and re-checked on every bucket change event.
type Manager struct {
	resolve func(name string) (*bucket.Actor, error)
	logger  zerolog.Logger

	mu      sync.Mutex
	queries map[string]Fn
	subs    map[int64]*subscription
	nextID  int64

	// inverted dependency index
	bucketSubs map[string]map[int64]*subscription
	keySubs    map[string]map[string]map[int64]*subscription

	// evalMu serializes re-evaluations, the cooperative-scheduling
	// analogue of a single task queue
	evalMu sync.Mutex

	pendMu   sync.Mutex
	pendCond *sync.Cond
	pending  int

	destroyed atomic.Bool
}

// NewManager creates a query manager resolving buckets through resolve
func NewManager(resolve func(name string) (*bucket.Actor, error)) *Manager {
	m := &Manager{
		resolve:    resolve,
		logger:     log.WithComponent("query"),
		queries:    make(map[string]Fn),
		subs:       make(map[int64]*subscription),
		bucketSubs: make(map[string]map[int64]*subscription),
		keySubs:    make(map[string]map[string]map[int64]*subscription),
	}
	m.pendCond = sync.NewCond(&m.pendMu)
	return m
}

// Define registers a named query
func (m *Manager) Define(name string, fn Fn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.queries[name]; exists {
		return &types.QueryAlreadyDefinedError{Query: name}
	}
	m.queries[name] = fn
	return nil
}

// Run executes a query once. No dependency tracking, no subscription.
func (m *Manager) Run(ctx context.Context, name string, params any) (any, error) {
	m.mu.Lock()
	fn, ok := m.queries[name]
	m.mu.Unlock()
	if !ok {
		return nil, &types.QueryNotDefinedError{Query: name}
	}
	metrics.QueryEvaluations.WithLabelValues("run").Inc()
	return fn(&Context{Context: ctx, mgr: m, deps: newDepSet()}, params)
}

// Subscribe runs the query once to establish the initial result and
// dependency set, then re-evaluates whenever a dependency changes. The
// callback is NOT invoked for the initial run. The returned cancel is
// idempotent.
func (m *Manager) Subscribe(ctx context.Context, name string, params any, callback Callback) (CancelFunc, error) {
	m.mu.Lock()
	fn, ok := m.queries[name]
	m.mu.Unlock()
	if !ok {
		return nil, &types.QueryNotDefinedError{Query: name}
	}

	deps := newDepSet()
	metrics.QueryEvaluations.WithLabelValues("initial").Inc()
	result, err := fn(&Context{Context: ctx, mgr: m, deps: deps}, params)
	if err != nil {
		return nil, err
	}

	sub := &subscription{
		name:       name,
		params:     params,
		callback:   callback,
		lastResult: result,
		deps:       deps,
	}

	m.mu.Lock()
	m.nextID++
	sub.id = m.nextID
	m.subs[sub.id] = sub
	m.indexDeps(sub)
	m.mu.Unlock()

	metrics.ActiveSubscriptions.Inc()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.cancelled.Store(true)
			m.mu.Lock()
			if _, live := m.subs[sub.id]; live {
				m.unindexDeps(sub)
				delete(m.subs, sub.id)
				metrics.ActiveSubscriptions.Dec()
			}
			m.mu.Unlock()
		})
	}, nil
}

// OnBucketChange schedules re-evaluation of every subscription affected
// by a change to bucketName touching changedKeys
func (m *Manager) OnBucketChange(bucketName string, changedKeys []string) {
	if m.destroyed.Load() {
		return
	}

	m.mu.Lock()
	affected := make(map[int64]*subscription)
	for id, sub := range m.bucketSubs[bucketName] {
		affected[id] = sub
	}
	if byKey := m.keySubs[bucketName]; byKey != nil {
		for _, key := range changedKeys {
			for id, sub := range byKey[key] {
				affected[id] = sub
			}
		}
	}
	m.mu.Unlock()

	for _, sub := range affected {
		m.schedule(sub)
	}
}

func (m *Manager) schedule(sub *subscription) {
	m.pendMu.Lock()
	m.pending++
	m.pendMu.Unlock()

	go func() {
		defer func() {
			m.pendMu.Lock()
			m.pending--
			if m.pending == 0 {
				m.pendCond.Broadcast()
			}
			m.pendMu.Unlock()
		}()
		m.reevaluate(sub)
	}()
}

func (m *Manager) reevaluate(sub *subscription) {
	m.evalMu.Lock()
	defer m.evalMu.Unlock()

	if sub.cancelled.Load() || m.destroyed.Load() {
		return
	}

	m.mu.Lock()
	fn, ok := m.queries[sub.name]
	m.mu.Unlock()
	if !ok {
		return
	}

	deps := newDepSet()
	metrics.QueryEvaluations.WithLabelValues("reevaluation").Inc()
	result, err := fn(&Context{Context: context.Background(), mgr: m, deps: deps}, sub.params)
	if err != nil {
		// the subscription stays alive with its previous result
		m.logger.Warn().Err(err).Str("query", sub.name).Msg("Query re-evaluation failed")
		return
	}

	if sub.cancelled.Load() {
		return
	}

	m.mu.Lock()
	if DeepEqual(result, sub.lastResult) {
		m.mu.Unlock()
		return
	}
	sub.lastResult = result
	m.unindexDeps(sub)
	sub.deps = deps
	m.indexDeps(sub)
	m.mu.Unlock()

	sub.callback(result)
}

// Settle blocks until no re-evaluations are pending
func (m *Manager) Settle() {
	m.pendMu.Lock()
	for m.pending > 0 {
		m.pendCond.Wait()
	}
	m.pendMu.Unlock()
}

// Defined returns the number of registered queries
func (m *Manager) Defined() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queries)
}

// ActiveSubscriptions returns the number of live subscriptions
func (m *Manager) ActiveSubscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Destroy cancels every subscription and clears all state
func (m *Manager) Destroy() {
	m.destroyed.Store(true)
	m.Settle()

	m.mu.Lock()
	for _, sub := range m.subs {
		sub.cancelled.Store(true)
	}
	count := len(m.subs)
	m.subs = make(map[int64]*subscription)
	m.queries = make(map[string]Fn)
	m.bucketSubs = make(map[string]map[int64]*subscription)
	m.keySubs = make(map[string]map[string]map[int64]*subscription)
	m.mu.Unlock()

	metrics.ActiveSubscriptions.Sub(float64(count))
}

// indexDeps and unindexDeps maintain the inverted index. Callers hold mu.
func (m *Manager) indexDeps(sub *subscription) {
	for name, dep := range sub.deps.buckets {
		if dep.bucketLevel {
			if m.bucketSubs[name] == nil {
				m.bucketSubs[name] = make(map[int64]*subscription)
			}
			m.bucketSubs[name][sub.id] = sub
			continue
		}
		if m.keySubs[name] == nil {
			m.keySubs[name] = make(map[string]map[int64]*subscription)
		}
		for key := range dep.keys {
			if m.keySubs[name][key] == nil {
				m.keySubs[name][key] = make(map[int64]*subscription)
			}
			m.keySubs[name][key][sub.id] = sub
		}
	}
}

func (m *Manager) unindexDeps(sub *subscription) {
	for name, dep := range sub.deps.buckets {
		if byBucket := m.bucketSubs[name]; byBucket != nil {
			delete(byBucket, sub.id)
			if len(byBucket) == 0 {
				delete(m.bucketSubs, name)
			}
		}
		if byKey := m.keySubs[name]; byKey != nil {
			for key := range dep.keys {
				if set := byKey[key]; set != nil {
					delete(set, sub.id)
					if len(set) == 0 {
						delete(byKey, key)
					}
				}
			}
			if len(byKey) == 0 {
				delete(m.keySubs, name)
			}
		}
	}
}
