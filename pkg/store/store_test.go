package store

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/persist"
	"github.com/cuemby/burrow/pkg/query"
	"github.com/cuemby/burrow/pkg/tx"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

func usersDef() types.BucketDefinition {
	return types.BucketDefinition{
		Key: "id",
		Schema: types.Schema{
			"id":    {Type: types.FieldTypeString, Generated: types.GeneratedUUID},
			"email": {Type: types.FieldTypeString, Required: true, Unique: true},
		},
	}
}

func ordersDef() types.BucketDefinition {
	return types.BucketDefinition{
		Key: "id",
		Schema: types.Schema{
			"id":    {Type: types.FieldTypeNumber, Generated: types.GeneratedAutoincrement},
			"label": {Type: types.FieldTypeString},
		},
	}
}

func TestDefineBucketRegistry(t *testing.T) {
	s := New(Options{Name: "t", DisableTTLScans: true})
	defer s.Stop()

	require.NoError(t, s.DefineBucket("users", usersDef()))

	err := s.DefineBucket("users", usersDef())
	var exists *types.BucketAlreadyExistsError
	require.ErrorAs(t, err, &exists)

	_, err = s.Bucket("missing")
	var notDefined *types.BucketNotDefinedError
	require.ErrorAs(t, err, &notDefined)

	require.NoError(t, s.DropBucket("users"))
	require.ErrorAs(t, s.DropBucket("users"), &notDefined)
}

func TestUniqueEnforcementAcrossRestart(t *testing.T) {
	adapter := persist.NewMemoryAdapter()

	s := New(Options{
		Name:            "s1",
		Persistence:     &PersistenceOptions{Adapter: adapter},
		DisableTTLScans: true,
	})
	require.NoError(t, s.DefineBucket("users", usersDef()))

	users, err := s.Bucket("users")
	require.NoError(t, err)
	_, err = users.Insert(types.Record{"email": "a@x"})
	require.NoError(t, err)

	require.NoError(t, s.Stop())

	// same adapter, fresh store
	s2 := New(Options{
		Name:            "s1",
		Persistence:     &PersistenceOptions{Adapter: adapter},
		DisableTTLScans: true,
	})
	defer s2.Stop()
	require.NoError(t, s2.DefineBucket("users", usersDef()))

	users2, err := s2.Bucket("users")
	require.NoError(t, err)
	assert.Equal(t, 1, users2.Len(), "records restored from snapshot")

	_, err = users2.Insert(types.Record{"email": "a@x"})
	var dup *types.UniqueConstraintError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "users", dup.Bucket)
	assert.Equal(t, "email", dup.Field)
	assert.Equal(t, "a@x", dup.Value)
}

func TestAutoincrementContinuity(t *testing.T) {
	adapter := persist.NewMemoryAdapter()

	s := New(Options{
		Name:            "s2",
		Persistence:     &PersistenceOptions{Adapter: adapter},
		DisableTTLScans: true,
	})
	require.NoError(t, s.DefineBucket("orders", ordersDef()))

	orders, err := s.Bucket("orders")
	require.NoError(t, err)
	for want := int64(1); want <= 3; want++ {
		record, err := orders.Insert(types.Record{"label": "x"})
		require.NoError(t, err)
		id, _ := types.ToInt64(record["id"])
		assert.Equal(t, want, id)
	}

	require.NoError(t, s.Stop())

	s2 := New(Options{
		Name:            "s2",
		Persistence:     &PersistenceOptions{Adapter: adapter},
		DisableTTLScans: true,
	})
	defer s2.Stop()
	require.NoError(t, s2.DefineBucket("orders", ordersDef()))

	orders2, err := s2.Bucket("orders")
	require.NoError(t, err)
	record, err := orders2.Insert(types.Record{"label": "y"})
	require.NoError(t, err)
	id, _ := types.ToInt64(record["id"])
	assert.EqualValues(t, 4, id, "ids continue past the prior session")
}

func TestNonPersistentBucketSkipsSnapshots(t *testing.T) {
	adapter := persist.NewMemoryAdapter()
	no := false

	s := New(Options{
		Name:            "s3",
		Persistence:     &PersistenceOptions{Adapter: adapter},
		DisableTTLScans: true,
	})
	def := usersDef()
	def.Persistent = &no
	require.NoError(t, s.DefineBucket("ephemeral", def))

	b, err := s.Bucket("ephemeral")
	require.NoError(t, err)
	_, err = b.Insert(types.Record{"email": "a@x"})
	require.NoError(t, err)

	require.NoError(t, s.Stop())
	assert.Equal(t, 0, adapter.Len(), "opted-out bucket must not be saved")
}

func TestTransactionThroughStore(t *testing.T) {
	s := New(Options{Name: "t", DisableTTLScans: true})
	defer s.Stop()

	require.NoError(t, s.DefineBucket("users", usersDef()))
	require.NoError(t, s.DefineBucket("orders", ordersDef()))

	err := s.Transaction(func(txc *tx.Context) error {
		users, err := txc.Bucket("users")
		if err != nil {
			return err
		}
		if _, err := users.Insert(types.Record{"email": "a@x"}); err != nil {
			return err
		}
		orders, err := txc.Bucket("orders")
		if err != nil {
			return err
		}
		_, err = orders.Insert(types.Record{"label": "first"})
		return err
	})
	require.NoError(t, err)

	users, _ := s.Bucket("users")
	orders, _ := s.Bucket("orders")
	assert.Equal(t, 1, users.Len())
	assert.Equal(t, 1, orders.Len())
}

func TestTransactionCallbackErrorDiscardsBuffer(t *testing.T) {
	s := New(Options{Name: "t", DisableTTLScans: true})
	defer s.Stop()

	require.NoError(t, s.DefineBucket("users", usersDef()))

	sentinel := assert.AnError
	err := s.Transaction(func(txc *tx.Context) error {
		users, err := txc.Bucket("users")
		if err != nil {
			return err
		}
		if _, err := users.Insert(types.Record{"email": "a@x"}); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	users, _ := s.Bucket("users")
	assert.Equal(t, 0, users.Len(), "failed callback must discard the buffer")
}

func TestReactiveQueryThroughStore(t *testing.T) {
	s := New(Options{Name: "t", DisableTTLScans: true})
	defer s.Stop()

	require.NoError(t, s.DefineBucket("users", usersDef()))

	err := s.DefineQuery("byEmail", func(ctx *query.Context, params any) (any, error) {
		view, err := ctx.Bucket("users")
		if err != nil {
			return nil, err
		}
		record, _ := view.FindOne(types.Filter{"email": params})
		return record, nil
	})
	require.NoError(t, err)

	var results []any
	cancel, err := s.SubscribeQuery(context.Background(), "byEmail", "a@x", func(result any) {
		results = append(results, result)
	})
	require.NoError(t, err)
	defer cancel()

	users, _ := s.Bucket("users")
	_, err = users.Insert(types.Record{"email": "a@x"})
	require.NoError(t, err)
	s.Settle()

	require.Len(t, results, 1)
	record := results[0].(types.Record)
	assert.Equal(t, "a@x", record["email"])
}

func TestOnDeliversTypedPayloads(t *testing.T) {
	s := New(Options{Name: "t", DisableTTLScans: true})
	defer s.Stop()

	require.NoError(t, s.DefineBucket("users", usersDef()))

	var got []*types.ChangeEvent
	cancel := s.On("bucket.users.inserted", func(payload any, topic string) {
		if ev, ok := payload.(*types.ChangeEvent); ok {
			got = append(got, ev)
		}
	})
	defer cancel()

	users, _ := s.Bucket("users")
	inserted, err := users.Insert(types.Record{"email": "a@x"})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, types.EventInserted, got[0].Type)
	assert.Equal(t, "users", got[0].Bucket)
	assert.Equal(t, types.KeyString(inserted["id"]), got[0].Key)
	assert.Equal(t, "a@x", got[0].Record["email"])
}

func TestTTLScansThroughStore(t *testing.T) {
	s := New(Options{Name: "t", TTLCheckInterval: 20 * time.Millisecond})
	defer s.Stop()

	def := usersDef()
	def.TTLMs = 30
	require.NoError(t, s.DefineBucket("sessions", def))

	sessions, _ := s.Bucket("sessions")
	_, err := sessions.Insert(types.Record{"email": "a@x"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return sessions.Len() == 0
	}, time.Second, 10*time.Millisecond, "TTL scan should purge the expired record")
}

func TestStats(t *testing.T) {
	s := New(Options{Name: "stats", DisableTTLScans: true})
	defer s.Stop()

	require.NoError(t, s.DefineBucket("users", usersDef()))
	require.NoError(t, s.DefineBucket("orders", ordersDef()))

	users, _ := s.Bucket("users")
	_, err := users.Insert(types.Record{"email": "a@x"})
	require.NoError(t, err)

	require.NoError(t, s.DefineQuery("noop", func(ctx *query.Context, params any) (any, error) {
		return nil, nil
	}))

	stats := s.Stats()
	assert.Equal(t, "stats", stats.Name)
	assert.Equal(t, 2, stats.Buckets.Count)
	assert.Equal(t, []string{"orders", "users"}, stats.Buckets.Names)
	assert.Equal(t, 1, stats.Records.Total)
	assert.Equal(t, 1, stats.Records.PerBucket["users"])
	assert.Equal(t, 1, stats.Indexes.PerBucket["users"], "unique email is implicitly indexed")
	assert.Equal(t, 1, stats.Queries.Defined)
	assert.False(t, stats.Persistence.Enabled)
	assert.False(t, stats.TTL.Enabled)
}

func TestApplyManifest(t *testing.T) {
	s := New(Options{Name: "t", DisableTTLScans: true})
	defer s.Stop()

	manifest := []byte(`
buckets:
  sessions:
    key: id
    ttl: 30m
    maxSize: 1000
    schema:
      id:
        type: string
        generated: uuid
      token:
        type: string
        required: true
        unique: true
  audit:
    key: seq
    ordering: ordered-by-key
    schema:
      seq:
        type: number
        generated: autoincrement
      action:
        type: string
        enum: [create, update, delete]
`)
	require.NoError(t, s.ApplyManifest(manifest))

	sessions, err := s.Bucket("sessions")
	require.NoError(t, err)

	inserted, err := sessions.Insert(types.Record{"token": "abc"})
	require.NoError(t, err)
	expires, set := inserted.ExpiresAt()
	require.True(t, set, "manifest ttl must apply")
	assert.Equal(t, inserted.CreatedAt()+30*60*1000, expires)

	audit, err := s.Bucket("audit")
	require.NoError(t, err)
	_, err = audit.Insert(types.Record{"action": "drop table"})
	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr, "manifest enum must be enforced")
}

func TestStopIsIdempotent(t *testing.T) {
	s := New(Options{Name: "t", DisableTTLScans: true})
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}
