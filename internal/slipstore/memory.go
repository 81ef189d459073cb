package slipstore

import (
	"context"
	"sync"
)

// Memory is a process-local Backend.
type Memory struct {
	mu   sync.Mutex
	rows map[int64][]byte
}

func NewMemory() *Memory { return &Memory{rows: map[int64][]byte{}} }

func (m *Memory) Load(_ context.Context, owner int64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[owner], nil
}

func (m *Memory) Modify(_ context.Context, owner int64, fn func(cur []byte) ([]byte, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := fn(m.rows[owner])
	if err != nil {
		return err
	}
	if next == nil {
		delete(m.rows, owner)
		return nil
	}
	m.rows[owner] = next
	return nil
}
