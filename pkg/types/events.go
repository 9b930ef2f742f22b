package types

import "fmt"

// EventType is the mutation kind carried by a bucket event
type EventType string

const (
	EventInserted EventType = "inserted"
	EventUpdated  EventType = "updated"
	EventDeleted  EventType = "deleted"
)

// ChangeEvent is the payload published on bucket.<name>.<type> topics.
// Inserted and deleted events carry Record; updated events carry OldRecord
// and NewRecord.
type ChangeEvent struct {
	Type      EventType
	Bucket    string
	Key       string
	Record    Record
	OldRecord Record
	NewRecord Record
}

// Topic returns the bus topic for this event
func (e *ChangeEvent) Topic() string {
	return BucketTopic(e.Bucket, e.Type)
}

// BucketTopic builds a bucket.<name>.<type> topic string
func BucketTopic(bucket string, t EventType) string {
	return fmt.Sprintf("bucket.%s.%s", bucket, t)
}
