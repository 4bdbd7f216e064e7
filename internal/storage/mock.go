package storage

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jwebster45206/npc-engine/pkg/state"
)

// MockStorage is a mock implementation of Storage for testing. States are
// stored as JSON so callers never share memory with the store.
type MockStorage struct {
	mu        sync.RWMutex
	states    map[string][]byte
	pingError error
	saveError error
}

// Ensure MockStorage implements Storage interface
var _ Storage = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		states: make(map[string][]byte),
	}
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// SetSaveError makes every SaveNPCState call fail with err
func (m *MockStorage) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveError = err
}

func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

func (m *MockStorage) Close() error {
	return nil
}

func (m *MockStorage) SaveNPCState(ctx context.Context, npcID string, s *state.NPCState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveError != nil {
		return m.saveError
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.states[npcID] = data
	return nil
}

func (m *MockStorage) LoadNPCState(ctx context.Context, npcID string) (*state.NPCState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.states[npcID]
	if !ok {
		return nil, nil
	}
	var s state.NPCState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *MockStorage) DeleteNPCState(ctx context.Context, npcID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, npcID)
	return nil
}
