package storage

import (
	"context"
	"sync"
)

// Memory is an in-process Backend. SetFailWrites lets tests simulate a broken disk.
type Memory struct {
	mu         sync.Mutex
	data       []byte
	writes     int
	failWrites error
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) ReadSnapshot(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	return append([]byte(nil), m.data...), nil
}

func (m *Memory) WriteSnapshot(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return m.failWrites
	}
	m.data = append([]byte(nil), data...)
	m.writes++
	return nil
}

// Seed replaces the stored snapshot without counting as a write.
func (m *Memory) Seed(data []byte) {
	m.mu.Lock()
	m.data = append([]byte(nil), data...)
	m.mu.Unlock()
}

// SetFailWrites toggles write failures.
func (m *Memory) SetFailWrites(err error) {
	m.mu.Lock()
	m.failWrites = err
	m.mu.Unlock()
}

func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *Memory) Close() error { return nil }
