package events

import (
	"strings"
	"sync"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/rs/zerolog"
)

// Handler receives a published payload and the concrete topic it matched
type Handler func(payload any, topic string)

// CancelFunc removes a subscription. Safe to call more than once.
type CancelFunc func()

type subscription struct {
	pattern string
	handler Handler
}

// Bus is a topic publish/subscribe hub. Patterns are dot-separated
// segments where * matches exactly one segment. Handlers run synchronously
// on the publisher's goroutine; a panicking handler never disturbs other
// handlers or the publisher.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int64]*subscription
	nextID  int64
	stopped bool
	logger  zerolog.Logger
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subs:   make(map[int64]*subscription),
		logger: log.WithComponent("events"),
	}
}

// Subscribe registers a handler for every topic matching pattern
func (b *Bus) Subscribe(pattern string, handler Handler) CancelFunc {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs[id] = &subscription{pattern: pattern, handler: handler}

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
		})
	}
}

// Publish delivers payload to every matching handler. Fire and forget: the
// publisher does not wait on anything a handler spawns.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	if b.stopped {
		b.mu.RUnlock()
		return
	}
	matched := make([]Handler, 0, 4)
	for _, sub := range b.subs {
		if MatchTopic(sub.pattern, topic) {
			matched = append(matched, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, handler := range matched {
		b.invoke(handler, payload, topic)
	}
}

func (b *Bus) invoke(handler Handler, payload any, topic string) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Str("topic", topic).Interface("panic", r).Msg("Event handler panicked")
		}
	}()
	handler(payload, topic)
}

// Stop drops all subscriptions and ignores further publishes
func (b *Bus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	b.subs = make(map[int64]*subscription)
}

// SubscriberCount returns the number of active subscriptions
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// MatchTopic reports whether a dot-separated pattern matches a topic.
// Literal segments match exactly, * matches any single segment. Segment
// counts must be equal; there is no recursive wildcard.
func MatchTopic(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	ps := strings.Split(pattern, ".")
	ts := strings.Split(topic, ".")
	if len(ps) != len(ts) {
		return false
	}
	for i, seg := range ps {
		if seg == "*" {
			if ts[i] == "" {
				return false
			}
			continue
		}
		if seg != ts[i] {
			return false
		}
	}
	return true
}
