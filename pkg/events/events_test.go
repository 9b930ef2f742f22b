package events

import (
	"testing"

	"github.com/cuemby/burrow/pkg/log"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

func TestMatchTopic(t *testing.T) {
	tests := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"bucket.users.inserted", "bucket.users.inserted", true},
		{"bucket.users.inserted", "bucket.users.updated", false},
		{"bucket.*.inserted", "bucket.users.inserted", true},
		{"bucket.*.inserted", "bucket.orders.inserted", true},
		{"bucket.*.*", "bucket.users.deleted", true},
		{"bucket.*.*", "bucket.users", false},
		{"bucket.*", "bucket.users.inserted", false},
		{"*.users.inserted", "bucket.users.inserted", true},
		{"bucket.Users.inserted", "bucket.users.inserted", false}, // case-sensitive
		{"*", "bucket", true},
		{"*", "bucket.users", false},
	}

	for _, tt := range tests {
		if got := MatchTopic(tt.pattern, tt.topic); got != tt.want {
			t.Errorf("MatchTopic(%q, %q) = %v, want %v", tt.pattern, tt.topic, got, tt.want)
		}
	}
}

func TestPublishReachesMatchingSubscribers(t *testing.T) {
	bus := NewBus()

	var wildcard, literal, other int
	bus.Subscribe("bucket.*.*", func(payload any, topic string) { wildcard++ })
	bus.Subscribe("bucket.users.inserted", func(payload any, topic string) { literal++ })
	bus.Subscribe("bucket.orders.inserted", func(payload any, topic string) { other++ })

	bus.Publish("bucket.users.inserted", "payload")

	if wildcard != 1 || literal != 1 {
		t.Errorf("wildcard = %d, literal = %d, want 1 and 1", wildcard, literal)
	}
	if other != 0 {
		t.Errorf("non-matching subscriber invoked %d times", other)
	}
}

func TestHandlerReceivesPayloadAndTopic(t *testing.T) {
	bus := NewBus()

	var gotPayload any
	var gotTopic string
	bus.Subscribe("bucket.*.deleted", func(payload any, topic string) {
		gotPayload = payload
		gotTopic = topic
	})

	bus.Publish("bucket.users.deleted", 42)

	if gotPayload != 42 {
		t.Errorf("payload = %v, want 42", gotPayload)
	}
	if gotTopic != "bucket.users.deleted" {
		t.Errorf("topic = %q", gotTopic)
	}
}

func TestPanickingHandlerIsolated(t *testing.T) {
	bus := NewBus()

	var survived int
	bus.Subscribe("t.*", func(payload any, topic string) { panic("boom") })
	bus.Subscribe("t.*", func(payload any, topic string) { survived++ })

	bus.Publish("t.x", nil) // must not panic the publisher

	if survived != 1 {
		t.Errorf("surviving handler invoked %d times, want 1", survived)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	bus := NewBus()

	var count int
	cancel := bus.Subscribe("a.b", func(payload any, topic string) { count++ })

	bus.Publish("a.b", nil)
	cancel()
	cancel()
	bus.Publish("a.b", nil)

	if count != 1 {
		t.Errorf("handler invoked %d times, want 1", count)
	}
	if bus.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", bus.SubscriberCount())
	}
}

func TestStoppedBusDropsPublishes(t *testing.T) {
	bus := NewBus()

	var count int
	bus.Subscribe("a.b", func(payload any, topic string) { count++ })
	bus.Stop()
	bus.Publish("a.b", nil)

	if count != 0 {
		t.Errorf("handler invoked %d times after Stop, want 0", count)
	}
}
