package persist

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/bucket"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/types"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

func testDef() *types.BucketDefinition {
	return &types.BucketDefinition{
		Key: "id",
		Schema: types.Schema{
			"id": {Type: types.FieldTypeString, Generated: types.GeneratedUUID},
			"n":  {Type: types.FieldTypeNumber},
		},
	}
}

func newBucket(t *testing.T, bus *events.Bus, name string) *bucket.Actor {
	t.Helper()
	a, err := bucket.New("test", name, testDef(), bus, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(a.Stop)
	return a
}

func TestDebouncedSave(t *testing.T) {
	bus := events.NewBus()
	adapter := NewMemoryAdapter()
	c := NewCoordinator("test", adapter, bus, 20*time.Millisecond, nil)
	c.Start()

	a := newBucket(t, bus, "users")
	c.RegisterBucket("users", a)

	// several mutations inside one window coalesce into one save
	for i := 0; i < 3; i++ {
		if _, err := a.Insert(types.Record{"n": i}); err != nil {
			t.Fatal(err)
		}
	}
	if adapter.Len() != 0 {
		t.Fatal("save must wait for the debounce window")
	}

	time.Sleep(60 * time.Millisecond)

	envelope, err := adapter.Load(SnapshotKey("test", "users"))
	if err != nil {
		t.Fatal(err)
	}
	if envelope == nil {
		t.Fatal("snapshot not saved after debounce")
	}
	if len(envelope.State.Records) != 3 {
		t.Errorf("saved records = %d, want 3", len(envelope.State.Records))
	}
	if envelope.Metadata.ServerID != "test" || envelope.Metadata.SchemaVersion != types.SchemaVersion {
		t.Errorf("metadata = %+v", envelope.Metadata)
	}
}

func TestLoadMissingReturnsNil(t *testing.T) {
	bus := events.NewBus()
	c := NewCoordinator("test", NewMemoryAdapter(), bus, 0, nil)

	if state := c.Load("never-saved"); state != nil {
		t.Errorf("Load() = %v, want nil for missing snapshot", state)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	bus := events.NewBus()
	adapter := NewMemoryAdapter()
	c := NewCoordinator("test", adapter, bus, 0, nil)
	c.Start()

	a := newBucket(t, bus, "users")
	c.RegisterBucket("users", a)

	inserted, err := a.Insert(types.Record{"n": 42})
	if err != nil {
		t.Fatal(err)
	}
	c.Flush()

	state := c.Load("users")
	if state == nil {
		t.Fatal("Load() returned nil after flush")
	}
	if len(state.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(state.Records))
	}
	pair := state.Records[0]
	if pair.Key != types.KeyString(inserted["id"]) {
		t.Errorf("key = %q", pair.Key)
	}
	if n, _ := types.ToInt64(pair.Record["n"]); n != 42 {
		t.Errorf("n = %v, want 42", pair.Record["n"])
	}
	if pair.Record.Version() != 1 {
		t.Errorf("version = %d, want 1", pair.Record.Version())
	}
}

func TestStopMarksEveryBucketDirty(t *testing.T) {
	bus := events.NewBus()
	adapter := NewMemoryAdapter()
	c := NewCoordinator("test", adapter, bus, time.Hour, nil)
	c.Start()

	// registered but never mutated
	a := newBucket(t, bus, "idle")
	c.RegisterBucket("idle", a)

	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}

	envelope, err := adapter.Load(SnapshotKey("test", "idle"))
	if err != nil {
		t.Fatal(err)
	}
	if envelope == nil {
		t.Fatal("Stop must persist even never-mutated buckets")
	}
}

func TestStopIgnoresFurtherEvents(t *testing.T) {
	bus := events.NewBus()
	adapter := NewMemoryAdapter()
	c := NewCoordinator("test", adapter, bus, 10*time.Millisecond, nil)
	c.Start()

	a := newBucket(t, bus, "users")
	c.RegisterBucket("users", a)

	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	before := adapter.Len()

	if _, err := a.Insert(types.Record{"n": 1}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)

	if adapter.Len() != before {
		t.Error("events after Stop must be ignored")
	}
}

func TestUnregisteredBucketEventsIgnored(t *testing.T) {
	bus := events.NewBus()
	adapter := NewMemoryAdapter()
	c := NewCoordinator("test", adapter, bus, 10*time.Millisecond, nil)
	c.Start()

	a := newBucket(t, bus, "users")
	c.RegisterBucket("users", a)
	c.UnregisterBucket("users")

	if _, err := a.Insert(types.Record{"n": 1}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)

	if adapter.Len() != 0 {
		t.Error("events for unregistered buckets must be ignored")
	}
}

// failingAdapter fails every save
type failingAdapter struct{}

func (failingAdapter) Save(key string, envelope *types.SnapshotEnvelope) error {
	return errors.New("disk full")
}

func (failingAdapter) Load(key string) (*types.SnapshotEnvelope, error) {
	return nil, nil
}

func (failingAdapter) Close() error {
	return nil
}

func TestSaveErrorsGoToOnError(t *testing.T) {
	bus := events.NewBus()

	var mu sync.Mutex
	var reported []error
	onError := func(err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	}

	c := NewCoordinator("test", failingAdapter{}, bus, 5*time.Millisecond, onError)
	c.Start()

	a := newBucket(t, bus, "users")
	c.RegisterBucket("users", a)

	if _, err := a.Insert(types.Record{"n": 1}); err != nil {
		t.Fatal(err)
	}

	// allow the debounce window plus the backoff retries to elapse
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(reported)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reported) == 0 {
		t.Error("save failure must reach onError")
	}
}

func TestFlushIsIdempotentOnEmpty(t *testing.T) {
	bus := events.NewBus()
	c := NewCoordinator("test", NewMemoryAdapter(), bus, 0, nil)
	c.Start()
	c.Flush()
	c.Flush()
}
