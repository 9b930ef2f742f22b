package store

import "sort"

// BucketStats counts buckets
type BucketStats struct {
	Count int
	Names []string
}

// RecordStats counts records
type RecordStats struct {
	Total     int
	PerBucket map[string]int
}

// IndexStats counts indexed fields
type IndexStats struct {
	Total     int
	PerBucket map[string]int
}

// QueryStats counts queries and subscriptions
type QueryStats struct {
	Defined             int
	ActiveSubscriptions int
}

// PersistenceStats reports persistence configuration
type PersistenceStats struct {
	Enabled bool
}

// TTLStats reports TTL configuration
type TTLStats struct {
	Enabled         bool
	CheckIntervalMs int64
}

// Stats is a point-in-time snapshot of the store
type Stats struct {
	Name        string
	Buckets     BucketStats
	Records     RecordStats
	Indexes     IndexStats
	Queries     QueryStats
	Persistence PersistenceStats
	TTL         TTLStats
}

// Stats gathers a statistics snapshot across every subsystem
func (s *Store) Stats() Stats {
	s.mu.RLock()
	names := make([]string, 0, len(s.buckets))
	entries := make(map[string]*bucketEntry, len(s.buckets))
	for name, entry := range s.buckets {
		names = append(names, name)
		entries[name] = entry
	}
	s.mu.RUnlock()
	sort.Strings(names)

	stats := Stats{
		Name: s.name,
		Buckets: BucketStats{
			Count: len(names),
			Names: names,
		},
		Records: RecordStats{PerBucket: make(map[string]int, len(names))},
		Indexes: IndexStats{PerBucket: make(map[string]int, len(names))},
		Queries: QueryStats{
			Defined:             s.queries.Defined(),
			ActiveSubscriptions: s.queries.ActiveSubscriptions(),
		},
		Persistence: PersistenceStats{Enabled: s.coord != nil},
		TTL: TTLStats{
			Enabled:         s.ttlInterval > 0,
			CheckIntervalMs: s.ttlInterval.Milliseconds(),
		},
	}

	for name, entry := range entries {
		records := entry.actor.Len()
		indexes := len(entry.actor.IndexedFields())
		stats.Records.Total += records
		stats.Records.PerBucket[name] = records
		stats.Indexes.Total += indexes
		stats.Indexes.PerBucket[name] = indexes
	}
	return stats
}
