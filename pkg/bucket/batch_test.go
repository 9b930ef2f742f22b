package bucket

import (
	"errors"
	"testing"

	"github.com/cuemby/burrow/pkg/types"
)

func seedRecord(t *testing.T, a *Actor, data types.Record) types.Record {
	t.Helper()
	record, err := a.Insert(data)
	if err != nil {
		t.Fatalf("seed insert error: %v", err)
	}
	return record
}

func preparedInsert(key string, fields types.Record) CommitOp {
	record := fields.Clone()
	now := types.NowMs()
	record[types.FieldVersion] = int64(1)
	record[types.FieldCreatedAt] = now
	record[types.FieldUpdatedAt] = now
	return CommitOp{Kind: OpInsert, Key: key, Record: record}
}

func TestCommitBatchAppliesAndReturnsEvents(t *testing.T) {
	a, bus := newTestActor(t, usersDef())
	rec := recordEvents(bus)

	seeded := seedRecord(t, a, types.Record{"email": "a@x.com", "score": 1})
	key := types.KeyString(seeded["id"])

	newRecord := seeded.Clone()
	newRecord["score"] = 50
	newRecord[types.FieldVersion] = int64(2)

	ops := []CommitOp{
		preparedInsert("fresh", types.Record{"id": "fresh", "email": "b@x.com"}),
		{Kind: OpUpdate, Key: key, Record: newRecord, ExpectedVersion: 1},
	}
	result, err := a.CommitBatch(ops, 0)
	if err != nil {
		t.Fatalf("CommitBatch() error: %v", err)
	}

	if len(result.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(result.Events))
	}
	if result.Events[0].Type != types.EventInserted || result.Events[1].Type != types.EventUpdated {
		t.Errorf("event kinds = %v, %v", result.Events[0].Type, result.Events[1].Type)
	}
	if len(result.Undo) != 2 {
		t.Fatalf("undo ops = %d, want 2", len(result.Undo))
	}

	// the actor itself must not have published the batch events
	for _, ev := range rec.all() {
		if ev.Key == "fresh" {
			t.Fatal("commitBatch must not publish events")
		}
	}

	got, ok := a.Get(key)
	if !ok || got["score"] != 50 {
		t.Errorf("updated record = %v", got)
	}
}

func TestCommitBatchVersionConflict(t *testing.T) {
	a, _ := newTestActor(t, usersDef())

	seeded := seedRecord(t, a, types.Record{"email": "a@x.com", "score": 1})
	key := types.KeyString(seeded["id"])

	// concurrent writer bumps the version to 2
	if _, err := a.Update(key, types.Record{"score": 5}); err != nil {
		t.Fatal(err)
	}

	stale := seeded.Clone()
	stale["score"] = 100
	stale[types.FieldVersion] = int64(2)

	_, err := a.CommitBatch([]CommitOp{
		{Kind: OpUpdate, Key: key, Record: stale, ExpectedVersion: 1},
	}, 0)

	var conflict *types.TransactionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("error = %v, want TransactionConflictError", err)
	}
	if conflict.Bucket != "users" || conflict.Key != key {
		t.Errorf("conflict fields = %+v", conflict)
	}

	// nothing changed
	got, _ := a.Get(key)
	if got["score"] != 5 || got.Version() != 2 {
		t.Errorf("record after failed batch = %v", got)
	}
}

func TestCommitBatchPhase1FailureAbortsWholeBatch(t *testing.T) {
	a, _ := newTestActor(t, usersDef())

	seeded := seedRecord(t, a, types.Record{"email": "a@x.com"})
	key := types.KeyString(seeded["id"])

	ops := []CommitOp{
		preparedInsert("fresh", types.Record{"id": "fresh", "email": "b@x.com"}),
		// duplicate primary key: fails validation
		{Kind: OpInsert, Key: key, Record: seeded.Clone()},
	}
	_, err := a.CommitBatch(ops, 0)
	var conflict *types.TransactionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("error = %v, want TransactionConflictError", err)
	}

	// the valid earlier op must not have been applied either
	if _, ok := a.Get("fresh"); ok {
		t.Error("phase-1 failure must leave the whole batch unapplied")
	}
}

func TestCommitBatchUniqueDryRun(t *testing.T) {
	a, _ := newTestActor(t, usersDef())

	seedRecord(t, a, types.Record{"email": "taken@x.com"})

	_, err := a.CommitBatch([]CommitOp{
		preparedInsert("other", types.Record{"id": "other", "email": "taken@x.com"}),
	}, 0)

	var conflict *types.TransactionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("error = %v, want TransactionConflictError", err)
	}
	if conflict.Field != "email" {
		t.Errorf("conflict field = %q, want email", conflict.Field)
	}
}

func TestCommitBatchDeleteOfMissingKeyIsNoop(t *testing.T) {
	a, _ := newTestActor(t, usersDef())

	result, err := a.CommitBatch([]CommitOp{
		{Kind: OpDelete, Key: "ghost", ExpectedVersion: 1},
	}, 0)
	if err != nil {
		t.Fatalf("CommitBatch() error: %v", err)
	}
	if len(result.Events) != 0 || len(result.Undo) != 0 {
		t.Errorf("no-op delete produced events=%d undo=%d", len(result.Events), len(result.Undo))
	}
}

func TestRollbackBatchRestoresPreviousState(t *testing.T) {
	a, _ := newTestActor(t, usersDef())

	seeded := seedRecord(t, a, types.Record{"email": "a@x.com", "score": 1})
	key := types.KeyString(seeded["id"])

	newRecord := seeded.Clone()
	newRecord["score"] = 99
	newRecord[types.FieldVersion] = int64(2)

	// validation runs against pre-batch state, so the delete's expected
	// version refers to the record as it was before the update in the
	// same batch
	result, err := a.CommitBatch([]CommitOp{
		preparedInsert("extra", types.Record{"id": "extra", "email": "b@x.com"}),
		{Kind: OpUpdate, Key: key, Record: newRecord, ExpectedVersion: 1},
		{Kind: OpDelete, Key: key, ExpectedVersion: 1},
	}, 0)
	if err != nil {
		t.Fatalf("CommitBatch() error: %v", err)
	}

	if err := a.RollbackBatch(result.Undo); err != nil {
		t.Fatalf("RollbackBatch() error: %v", err)
	}

	if _, ok := a.Get("extra"); ok {
		t.Error("rolled-back insert still present")
	}
	restored, ok := a.Get(key)
	if !ok {
		t.Fatal("rolled-back delete did not restore the record")
	}
	if restored["score"] != seeded["score"] || restored.Version() != 1 {
		t.Errorf("restored record = %v, want original", restored)
	}
	// the unique value owned by the rolled-back insert is free again
	if _, err := a.Insert(types.Record{"email": "b@x.com"}); err != nil {
		t.Errorf("insert after rollback error: %v", err)
	}
}

func TestCommitBatchAdvancesCounterMonotonically(t *testing.T) {
	def := &types.BucketDefinition{
		Key: "id",
		Schema: types.Schema{
			"id": {Type: types.FieldTypeNumber, Generated: types.GeneratedAutoincrement},
		},
	}
	a, _ := newTestActor(t, def)

	if _, err := a.CommitBatch(nil, 7); err != nil {
		t.Fatal(err)
	}
	if counter, _ := a.Counter(); counter != 7 {
		t.Errorf("counter = %d, want 7", counter)
	}
	// lower values are ignored
	if _, err := a.CommitBatch(nil, 3); err != nil {
		t.Fatal(err)
	}
	if counter, _ := a.Counter(); counter != 7 {
		t.Errorf("counter = %d, want 7 after lower update", counter)
	}
}
