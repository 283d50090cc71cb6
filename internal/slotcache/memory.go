package slotcache

import (
	"context"
	"sync"
)

// MemoryStore 进程内存储（未启用 Redis/PG 时使用）
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]Snapshot)}
}

func (m *MemoryStore) Put(_ context.Context, s Snapshot) error {
	s = normalize(s)
	m.mu.Lock()
	m.snaps[s.Address] = s
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, address string) (*Snapshot, error) {
	m.mu.RLock()
	s, ok := m.snaps[address]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.Slots = append(make([]int, 0, len(s.Slots)), s.Slots...)
	return &s, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
