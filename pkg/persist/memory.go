package persist

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cuemby/burrow/pkg/types"
)

// MemoryAdapter keeps envelopes in a map. It round-trips through JSON so
// tests observe the same value fidelity as a durable adapter.
type MemoryAdapter struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryAdapter creates an empty in-memory adapter
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{data: make(map[string][]byte)}
}

// Save stores a JSON-encoded copy of the envelope
func (m *MemoryAdapter) Save(key string, envelope *types.SnapshotEnvelope) error {
	raw, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = raw
	return nil
}

// Load decodes the stored envelope, nil when absent
func (m *MemoryAdapter) Load(key string) (*types.SnapshotEnvelope, error) {
	m.mu.RLock()
	raw, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var envelope types.SnapshotEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &envelope, nil
}

// Close is a no-op
func (m *MemoryAdapter) Close() error {
	return nil
}

// Len returns the number of stored envelopes
func (m *MemoryAdapter) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
