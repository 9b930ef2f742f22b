// Package store is the burrow façade: bucket and query registries,
// lifecycle, and the wiring between actors, transactions, reactive
// queries, persistence, and TTL scans.
//
// A minimal session:
//
//	s := store.New(store.Options{Name: "app"})
//	defer s.Stop()
//
//	err := s.DefineBucket("users", types.BucketDefinition{
//		Key: "id",
//		Schema: types.Schema{
//			"id":    {Type: types.FieldTypeString, Generated: types.GeneratedUUID},
//			"email": {Type: types.FieldTypeString, Required: true, Unique: true},
//		},
//	})
//
//	users, _ := s.Bucket("users")
//	alice, err := users.Insert(types.Record{"email": "alice@example.com"})
//
// Writes flow through the bucket actor, which updates table and indexes
// and emits a bucket.<name>.<type> event. The persistence coordinator
// marks the bucket dirty, the query manager reconsiders subscriptions,
// and external On subscribers see the event — all from that one emission.
//
// Stop order matters and is fixed: TTL scans stop, the query manager is
// destroyed, persistence flushes a final snapshot of every bucket while
// the actors still answer, then actors terminate and the bus shuts down.
package store
