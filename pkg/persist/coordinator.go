package persist

import (
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cuemby/burrow/pkg/bucket"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

const (
	// DefaultDebounce is the save coalescing window; it is also the
	// upper bound on data lost to a crash between flushes
	DefaultDebounce = 100 * time.Millisecond

	saveRetries = 3
)

// Coordinator watches mutation events, coalesces them per bucket inside a
// debounce window, and snapshots dirty buckets through their actors.
type Coordinator struct {
	storeName string
	adapter   Adapter
	bus       *events.Bus
	debounce  time.Duration
	onError   func(error)
	logger    zerolog.Logger

	mu        sync.Mutex
	buckets   map[string]*bucket.Actor
	dirty     map[string]bool
	timer     *time.Timer
	stopped   bool
	cancelSub events.CancelFunc
}

// NewCoordinator creates a persistence coordinator over adapter. debounce
// <= 0 falls back to DefaultDebounce. onError may be nil.
func NewCoordinator(storeName string, adapter Adapter, bus *events.Bus, debounce time.Duration, onError func(error)) *Coordinator {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Coordinator{
		storeName: storeName,
		adapter:   adapter,
		bus:       bus,
		debounce:  debounce,
		onError:   onError,
		logger:    log.WithComponent("persist").With().Str("store", storeName).Logger(),
		buckets:   make(map[string]*bucket.Actor),
		dirty:     make(map[string]bool),
	}
}

// Start subscribes to every bucket mutation event
func (c *Coordinator) Start() {
	c.cancelSub = c.bus.Subscribe("bucket.*.*", c.onEvent)
	c.logger.Debug().Dur("debounce", c.debounce).Msg("Persistence coordinator started")
}

// Load fetches a bucket's stored snapshot state. Missing snapshots return
// nil. Load failures are reported to onError and the bucket starts empty.
func (c *Coordinator) Load(bucketName string) *types.SnapshotState {
	envelope, err := c.adapter.Load(SnapshotKey(c.storeName, bucketName))
	if err != nil {
		c.logger.Error().Err(err).Str("bucket", bucketName).Msg("Snapshot load failed, starting empty")
		c.reportError(fmt.Errorf("load bucket %q: %w", bucketName, err))
		return nil
	}
	if envelope == nil {
		return nil
	}
	metrics.SnapshotsRestored.Inc()
	return &envelope.State
}

// RegisterBucket adds a bucket to the persistence registry
func (c *Coordinator) RegisterBucket(name string, actor *bucket.Actor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buckets[name] = actor
}

// UnregisterBucket drops a bucket from the registry and the dirty set;
// later events for it are ignored
func (c *Coordinator) UnregisterBucket(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.buckets, name)
	delete(c.dirty, name)
}

func (c *Coordinator) onEvent(payload any, topic string) {
	ev, ok := payload.(*types.ChangeEvent)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	if _, registered := c.buckets[ev.Bucket]; !registered {
		return
	}
	c.dirty[ev.Bucket] = true
	if c.timer == nil {
		c.timer = time.AfterFunc(c.debounce, c.onTimer)
	}
}

func (c *Coordinator) onTimer() {
	c.mu.Lock()
	frozen := c.freezeDirtyLocked()
	c.timer = nil
	c.mu.Unlock()

	c.saveBuckets(frozen)
}

// Flush cancels any pending timer and persists all currently dirty
// buckets. Idempotent when nothing is dirty.
func (c *Coordinator) Flush() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	frozen := c.freezeDirtyLocked()
	c.mu.Unlock()

	c.saveBuckets(frozen)
}

// freezeDirtyLocked captures and clears the dirty set. Caller holds mu.
func (c *Coordinator) freezeDirtyLocked() map[string]*bucket.Actor {
	frozen := make(map[string]*bucket.Actor, len(c.dirty))
	for name := range c.dirty {
		if actor, ok := c.buckets[name]; ok {
			frozen[name] = actor
		}
	}
	c.dirty = make(map[string]bool)
	return frozen
}

// saveBuckets snapshots and saves each bucket in parallel. Per-bucket
// failures go to onError and do not block the others.
func (c *Coordinator) saveBuckets(buckets map[string]*bucket.Actor) {
	if len(buckets) == 0 {
		return
	}
	var wg sync.WaitGroup
	for name, actor := range buckets {
		wg.Add(1)
		go func(name string, actor *bucket.Actor) {
			defer wg.Done()
			c.saveBucket(name, actor)
		}(name, actor)
	}
	wg.Wait()
}

func (c *Coordinator) saveBucket(name string, actor *bucket.Actor) {
	timer := metrics.NewTimer()

	state, err := actor.Snapshot()
	if err != nil {
		metrics.SnapshotsSaved.WithLabelValues("error").Inc()
		c.reportError(fmt.Errorf("snapshot bucket %q: %w", name, err))
		return
	}
	envelope := types.NewEnvelope(state, c.storeName)
	key := SnapshotKey(c.storeName, name)

	save := func() error {
		return c.adapter.Save(key, envelope)
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = time.Second
	err = backoff.Retry(save, backoff.WithMaxRetries(bo, saveRetries))
	if err != nil {
		metrics.SnapshotsSaved.WithLabelValues("error").Inc()
		c.logger.Error().Err(err).Str("bucket", name).Msg("Snapshot save failed")
		c.reportError(fmt.Errorf("save bucket %q: %w", name, err))
		return
	}

	metrics.SnapshotsSaved.WithLabelValues("ok").Inc()
	timer.ObserveDuration(metrics.SnapshotSaveDuration)
	c.logger.Debug().Str("bucket", name).Int("records", len(state.Records)).Msg("Snapshot saved")
}

// Stop flushes every registered bucket and closes the adapter. It must
// run BEFORE the bucket actors stop so the final snapshots can still be
// taken. Every bucket is marked dirty first so even buckets that never
// changed this lifetime get a final write.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	for name := range c.buckets {
		c.dirty[name] = true
	}
	c.mu.Unlock()

	c.Flush()

	if c.cancelSub != nil {
		c.cancelSub()
	}
	if err := c.adapter.Close(); err != nil {
		return fmt.Errorf("close adapter: %w", err)
	}
	return nil
}

func (c *Coordinator) reportError(err error) {
	if c.onError != nil {
		c.onError(err)
	}
}
