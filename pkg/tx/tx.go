package tx

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/burrow/pkg/bucket"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/rs/zerolog"
)

// ErrAlreadyCommitted is returned by a second Commit on the same context
var ErrAlreadyCommitted = errors.New("transaction already committed")

// Resolver hands the transaction a bucket actor plus the bucket's
// registration index, which fixes the commit walk order.
type Resolver func(name string) (*bucket.Actor, int, error)

// Context is one transaction: a set of lazily created bucket handles, each
// buffering writes locally until Commit. A context is not safe for
// concurrent use.
type Context struct {
	resolve Resolver
	logger  zerolog.Logger

	mu        sync.Mutex
	handles   map[string]*BucketHandle
	committed bool
}

// NewContext creates a transaction context
func NewContext(resolve Resolver) *Context {
	return &Context{
		resolve: resolve,
		logger:  log.WithComponent("tx"),
		handles: make(map[string]*BucketHandle),
	}
}

// Bucket returns the transactional handle for name, cached per context
func (c *Context) Bucket(name string) (*BucketHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h, ok := c.handles[name]; ok {
		return h, nil
	}
	actor, regIndex, err := c.resolve(name)
	if err != nil {
		return nil, err
	}
	h, err := newHandle(c, name, actor, regIndex)
	if err != nil {
		return nil, err
	}
	c.handles[name] = h
	return h, nil
}

// Commit folds every handle's buffer into per-bucket batches and walks the
// touched buckets in registration order. A batch failure rolls back every
// previously committed bucket in reverse; the original error propagates.
// Events are published only after all buckets commit.
func (c *Context) Commit() error {
	c.mu.Lock()
	if c.committed {
		c.mu.Unlock()
		return ErrAlreadyCommitted
	}
	c.committed = true

	touched := make([]*BucketHandle, 0, len(c.handles))
	for _, h := range c.handles {
		if h.dirty() {
			touched = append(touched, h)
		}
	}
	c.mu.Unlock()

	if len(touched) == 0 {
		return nil
	}
	sort.Slice(touched, func(i, j int) bool { return touched[i].regIndex < touched[j].regIndex })

	timer := metrics.NewTimer()

	type committedBucket struct {
		handle *BucketHandle
		result bucket.BatchResult
	}
	var done []committedBucket

	for _, h := range touched {
		result, err := h.actor.CommitBatch(h.fold(), h.counter)
		if err != nil {
			for i := len(done) - 1; i >= 0; i-- {
				prev := done[i]
				if rbErr := prev.handle.actor.RollbackBatch(prev.result.Undo); rbErr != nil {
					c.logger.Error().Err(rbErr).Str("bucket", prev.handle.name).Msg("Rollback failed")
				}
			}
			metrics.TransactionsTotal.WithLabelValues("conflict").Inc()
			return fmt.Errorf("commit bucket %q: %w", h.name, err)
		}
		done = append(done, committedBucket{handle: h, result: result})
	}

	for _, d := range done {
		d.handle.actor.PublishEvents(d.result.Events)
	}

	metrics.TransactionsTotal.WithLabelValues("committed").Inc()
	timer.ObserveDuration(metrics.TransactionCommitDuration)
	return nil
}

// Abandon marks the buffer discarded without committing and counts the
// abort in the metrics. Used when the transaction callback fails; a later
// Commit on the same context returns ErrAlreadyCommitted.
func (c *Context) Abandon() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.committed {
		c.committed = true
		metrics.TransactionsTotal.WithLabelValues("aborted").Inc()
	}
}
