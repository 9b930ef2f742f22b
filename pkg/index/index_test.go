package index

import (
	"errors"
	"testing"

	"github.com/cuemby/burrow/pkg/types"
)

func testDef() *types.BucketDefinition {
	return &types.BucketDefinition{
		Key: "id",
		Schema: types.Schema{
			"id":    {Type: types.FieldTypeString},
			"email": {Type: types.FieldTypeString, Unique: true},
			"tier":  {Type: types.FieldTypeString},
		},
		Indexes: []string{"tier"},
	}
}

func TestUniqueFieldsImplicitlyIndexed(t *testing.T) {
	m := NewManager("users", testDef())

	if !m.IsIndexed("email") {
		t.Error("unique field email should be indexed without being listed")
	}
	if !m.IsIndexed("tier") {
		t.Error("tier should be indexed")
	}
	if m.IsIndexed("name") {
		t.Error("name should not be indexed")
	}
}

func TestAddAndLookup(t *testing.T) {
	m := NewManager("users", testDef())

	if err := m.AddRecord("u1", types.Record{"email": "a@x.com", "tier": "vip"}); err != nil {
		t.Fatalf("AddRecord() error: %v", err)
	}
	if err := m.AddRecord("u2", types.Record{"email": "b@x.com", "tier": "vip"}); err != nil {
		t.Fatalf("AddRecord() error: %v", err)
	}

	keys := m.Lookup("tier", "vip")
	if len(keys) != 2 {
		t.Fatalf("Lookup(tier, vip) = %v, want 2 keys", keys)
	}
	if keys[0] != "u1" || keys[1] != "u2" {
		t.Errorf("Lookup(tier, vip) = %v, want [u1 u2]", keys)
	}

	if got := m.Lookup("tier", "free"); len(got) != 0 {
		t.Errorf("Lookup(tier, free) = %v, want empty", got)
	}
	if got := m.Lookup("unindexed", "x"); len(got) != 0 {
		t.Errorf("Lookup on unindexed field = %v, want empty", got)
	}
}

func TestUniqueViolation(t *testing.T) {
	m := NewManager("users", testDef())

	if err := m.AddRecord("u1", types.Record{"email": "a@x.com", "tier": "vip"}); err != nil {
		t.Fatalf("AddRecord() error: %v", err)
	}

	err := m.AddRecord("u2", types.Record{"email": "a@x.com", "tier": "free"})
	var dup *types.UniqueConstraintError
	if !errors.As(err, &dup) {
		t.Fatalf("error = %v, want UniqueConstraintError", err)
	}
	if dup.Bucket != "users" || dup.Field != "email" || dup.Value != "a@x.com" {
		t.Errorf("error fields = %+v", dup)
	}

	// the failed add must not have written the secondary entry either
	if got := m.Lookup("tier", "free"); len(got) != 0 {
		t.Errorf("failed AddRecord leaked index entries: %v", got)
	}
}

func TestNullValuesNotIndexed(t *testing.T) {
	m := NewManager("users", testDef())

	if err := m.AddRecord("u1", types.Record{"email": nil, "tier": "vip"}); err != nil {
		t.Fatalf("AddRecord() with nil unique value error: %v", err)
	}
	if err := m.AddRecord("u2", types.Record{"tier": "vip"}); err != nil {
		t.Fatalf("AddRecord() with absent unique value error: %v", err)
	}
}

func TestUpdateRecord(t *testing.T) {
	m := NewManager("users", testDef())

	old := types.Record{"email": "a@x.com", "tier": "free"}
	if err := m.AddRecord("u1", old); err != nil {
		t.Fatalf("AddRecord() error: %v", err)
	}

	updated := types.Record{"email": "a@x.com", "tier": "vip"}
	if err := m.UpdateRecord("u1", old, updated); err != nil {
		t.Fatalf("UpdateRecord() error: %v", err)
	}

	if got := m.Lookup("tier", "free"); len(got) != 0 {
		t.Errorf("old entry survived update: %v", got)
	}
	if got := m.Lookup("tier", "vip"); len(got) != 1 || got[0] != "u1" {
		t.Errorf("Lookup(tier, vip) = %v, want [u1]", got)
	}

	// unchanged unique value must not collide with itself
	if got := m.Lookup("email", "a@x.com"); len(got) != 1 {
		t.Errorf("Lookup(email) = %v, want [u1]", got)
	}
}

func TestUpdateRecordUniqueConflictLeavesStateIntact(t *testing.T) {
	m := NewManager("users", testDef())

	r1 := types.Record{"email": "a@x.com", "tier": "free"}
	r2 := types.Record{"email": "b@x.com", "tier": "free"}
	if err := m.AddRecord("u1", r1); err != nil {
		t.Fatal(err)
	}
	if err := m.AddRecord("u2", r2); err != nil {
		t.Fatal(err)
	}

	err := m.UpdateRecord("u2", r2, types.Record{"email": "a@x.com", "tier": "vip"})
	var dup *types.UniqueConstraintError
	if !errors.As(err, &dup) {
		t.Fatalf("error = %v, want UniqueConstraintError", err)
	}

	// everything exactly as before the failed update
	if got := m.Lookup("email", "b@x.com"); len(got) != 1 || got[0] != "u2" {
		t.Errorf("Lookup(email, b@x.com) = %v, want [u2]", got)
	}
	if got := m.Lookup("tier", "free"); len(got) != 2 {
		t.Errorf("Lookup(tier, free) = %v, want 2 keys", got)
	}
}

func TestRemoveRecordDropsEmptyValueSets(t *testing.T) {
	m := NewManager("users", testDef())

	r := types.Record{"email": "a@x.com", "tier": "vip"}
	if err := m.AddRecord("u1", r); err != nil {
		t.Fatal(err)
	}
	m.RemoveRecord("u1", r)

	if got := m.Lookup("tier", "vip"); len(got) != 0 {
		t.Errorf("Lookup after remove = %v, want empty", got)
	}
	// the freed unique value is reusable
	if err := m.AddRecord("u2", types.Record{"email": "a@x.com"}); err != nil {
		t.Errorf("AddRecord() after remove error: %v", err)
	}
}

func TestNumericValuesNormalizeAcrossTypes(t *testing.T) {
	def := &types.BucketDefinition{
		Key:     "id",
		Schema:  types.Schema{"id": {Type: types.FieldTypeString}},
		Indexes: []string{"rank"},
	}
	m := NewManager("players", def)

	if err := m.AddRecord("p1", types.Record{"rank": int64(5)}); err != nil {
		t.Fatal(err)
	}
	// a float64 5 (e.g. after a JSON round-trip) hits the same entry
	if got := m.Lookup("rank", float64(5)); len(got) != 1 || got[0] != "p1" {
		t.Errorf("Lookup(rank, 5.0) = %v, want [p1]", got)
	}
}
