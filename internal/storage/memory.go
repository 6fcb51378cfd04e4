package storage

import (
	"context"
	"sync"

	"SupportChat/internal/session"
)

// MemoryStore keeps the encoded log in process memory
type MemoryStore struct {
	mu     sync.Mutex
	raw    []byte
	exists bool
	saves  int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewMemoryStoreWithRaw starts with raw stored under the key, valid or not
func NewMemoryStoreWithRaw(raw string) *MemoryStore {
	return &MemoryStore{raw: []byte(raw), exists: true}
}

func (m *MemoryStore) Load(_ context.Context) (session.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.exists {
		return session.Log{}, nil
	}
	return decodeLog(m.raw)
}

func (m *MemoryStore) Save(_ context.Context, log session.Log) error {
	raw, err := encodeLog(log)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw = raw
	m.exists = true
	m.saves++
	return nil
}

func (m *MemoryStore) Remove(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw = nil
	m.exists = false
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// Exists reports whether anything is stored under the key
func (m *MemoryStore) Exists() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exists
}

// Saves returns how many times Save succeeded
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
