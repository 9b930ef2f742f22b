package persist

import (
	"fmt"

	"github.com/cuemby/burrow/pkg/types"
)

// Adapter is the pluggable durable backend for bucket snapshots. Save must
// be atomic per key from the caller's perspective; overwrite is allowed.
// Load returns (nil, nil) when the key has never been saved.
type Adapter interface {
	Save(key string, envelope *types.SnapshotEnvelope) error
	Load(key string) (*types.SnapshotEnvelope, error)
	Close() error
}

// SnapshotKey builds the adapter key for a bucket: "<store>:bucket:<name>"
func SnapshotKey(storeName, bucketName string) string {
	return fmt.Sprintf("%s:bucket:%s", storeName, bucketName)
}
