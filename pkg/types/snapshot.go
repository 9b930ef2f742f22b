package types

import (
	"encoding/json"
	"fmt"
)

// SchemaVersion is the on-disk envelope format version
const SchemaVersion = 1

// SnapshotPair is one (key, record) entry, serialized as a two-element array
type SnapshotPair struct {
	Key    string
	Record Record
}

func (p SnapshotPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Key, p.Record})
}

func (p *SnapshotPair) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("snapshot pair: %w", err)
	}
	if err := json.Unmarshal(raw[0], &p.Key); err != nil {
		return fmt.Errorf("snapshot pair key: %w", err)
	}
	if err := json.Unmarshal(raw[1], &p.Record); err != nil {
		return fmt.Errorf("snapshot pair record: %w", err)
	}
	return nil
}

// SnapshotState is a bucket's full contents at one instant
type SnapshotState struct {
	Records              []SnapshotPair `json:"records"`
	AutoincrementCounter int64          `json:"autoincrementCounter"`
}

// SnapshotMetadata describes when and by whom a snapshot was taken
type SnapshotMetadata struct {
	PersistedAt   int64  `json:"persistedAt"`
	ServerID      string `json:"serverId"`
	SchemaVersion int    `json:"schemaVersion"`
}

// SnapshotEnvelope is the unit handed to a persistence adapter
type SnapshotEnvelope struct {
	State    SnapshotState    `json:"state"`
	Metadata SnapshotMetadata `json:"metadata"`
}

// NewEnvelope wraps a snapshot state with fresh metadata
func NewEnvelope(state SnapshotState, serverID string) *SnapshotEnvelope {
	return &SnapshotEnvelope{
		State: state,
		Metadata: SnapshotMetadata{
			PersistedAt:   NowMs(),
			ServerID:      serverID,
			SchemaVersion: SchemaVersion,
		},
	}
}
