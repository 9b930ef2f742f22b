package ttl

import (
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/bucket"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/rs/zerolog"
)

// DefaultCheckInterval is how often registered buckets are purged
const DefaultCheckInterval = time.Second

type entry struct {
	actor *bucket.Actor
	ttlMs int64
}

// Manager runs the periodic TTL scan. Ticks chain single-shot timers
// rather than using a repeating interval, so a long purge never overlaps
// the next one.
type Manager struct {
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	buckets map[string]entry
	timer   *time.Timer
	running bool
}

// NewManager creates a TTL manager. interval 0 disables automatic scans;
// Purge can still be called directly.
func NewManager(interval time.Duration) *Manager {
	return &Manager{
		interval: interval,
		logger:   log.WithComponent("ttl"),
		buckets:  make(map[string]entry),
	}
}

// RegisterBucket adds a TTL-enabled bucket to the scan registry
func (m *Manager) RegisterBucket(name string, actor *bucket.Actor, ttlMs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[name] = entry{actor: actor, ttlMs: ttlMs}
}

// UnregisterBucket removes a bucket from the scan registry
func (m *Manager) UnregisterBucket(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets, name)
}

// Start begins periodic scanning. Idempotent; a no-op when the interval
// is zero.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running || m.interval <= 0 {
		return
	}
	m.running = true
	m.timer = time.AfterFunc(m.interval, m.tick)
	m.logger.Debug().Dur("interval", m.interval).Msg("TTL manager started")
}

// Stop cancels any pending scan. Idempotent; the manager can be
// restarted.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) tick() {
	m.Purge()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.timer = time.AfterFunc(m.interval, m.tick)
	}
}

// Purge runs one pass over every registered bucket and returns the total
// number of expired records removed. Errors from stopped buckets are
// swallowed.
func (m *Manager) Purge() int {
	m.mu.Lock()
	actors := make(map[string]entry, len(m.buckets))
	for name, e := range m.buckets {
		actors[name] = e
	}
	m.mu.Unlock()

	total := 0
	for name, e := range actors {
		purged, err := e.actor.PurgeExpired()
		if err != nil {
			// bucket already stopped; nothing to purge
			continue
		}
		if purged > 0 {
			m.logger.Debug().Str("bucket", name).Int("purged", purged).Msg("Expired records purged")
		}
		total += purged
	}
	metrics.TTLScansTotal.Inc()
	return total
}
