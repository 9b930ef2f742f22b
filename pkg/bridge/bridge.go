// Package bridge forwards bucket change events to an external receiver,
// optionally filtered and transformed. The receiver is fully isolated:
// its errors and panics never reach the store.
package bridge

import (
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// EmitFunc delivers one event to the external receiver
type EmitFunc func(topic string, data any)

// Options customize what the bridge forwards
type Options struct {
	// Filter drops events returning false. nil forwards everything.
	Filter func(ev *types.ChangeEvent) bool

	// TransformTopic rewrites the outgoing topic. nil keeps the bus topic.
	TransformTopic func(topic string, ev *types.ChangeEvent) string

	// TransformPayload rewrites the outgoing payload. nil forwards the
	// event itself.
	TransformPayload func(ev *types.ChangeEvent) any
}

// Bridge is a live subscription forwarding bucket.*.* events
type Bridge struct {
	emit   EmitFunc
	opts   Options
	cancel events.CancelFunc
	logger zerolog.Logger
}

// New attaches a bridge to the bus
func New(bus *events.Bus, emit EmitFunc, opts Options) *Bridge {
	b := &Bridge{
		emit:   emit,
		opts:   opts,
		logger: log.WithComponent("bridge"),
	}
	b.cancel = bus.Subscribe("bucket.*.*", b.onEvent)
	return b
}

// Stop detaches the bridge from the bus
func (b *Bridge) Stop() {
	b.cancel()
}

func (b *Bridge) onEvent(payload any, topic string) {
	ev, ok := payload.(*types.ChangeEvent)
	if !ok {
		return
	}
	if b.opts.Filter != nil && !b.opts.Filter(ev) {
		return
	}

	outTopic := topic
	if b.opts.TransformTopic != nil {
		outTopic = b.opts.TransformTopic(topic, ev)
	}
	var data any = ev
	if b.opts.TransformPayload != nil {
		data = b.opts.TransformPayload(ev)
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn().Str("topic", outTopic).Interface("panic", r).Msg("Event receiver panicked")
		}
	}()
	b.emit(outTopic, data)
}
