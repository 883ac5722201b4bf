package store

import (
	"context"
	"sync"
)

// MemoryStore keeps all collections in process memory. It backs tests and is
// the degraded-mode fallback when the durable backend cannot be opened:
// nothing survives a restart, but the session keeps working.
type MemoryStore struct {
	mu     sync.RWMutex
	kv     map[string]map[string][]byte
	queues map[string][]Entry
	nextID map[string]uint64
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		kv:     make(map[string]map[string][]byte),
		queues: make(map[string][]Entry),
		nextID: make(map[string]uint64),
	}
	for _, c := range Collections {
		s.kv[c] = make(map[string][]byte)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, collection, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.kv[collection][key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *MemoryStore) Put(_ context.Context, collection, key string, value []byte) error {
	// Copy to decouple from the caller's buffer.
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.kv[collection] == nil {
		s.kv[collection] = make(map[string][]byte)
	}
	s.kv[collection][key] = valueCopy
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.kv[collection], key)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.kv[collection] = make(map[string][]byte)
	s.queues[collection] = nil
	return nil
}

func (s *MemoryStore) Count(_ context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if q, ok := s.queues[collection]; ok && len(q) > 0 {
		return len(q), nil
	}
	return len(s.kv[collection]), nil
}

func (s *MemoryStore) Append(_ context.Context, collection string, value []byte) (uint64, error) {
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID[collection]++
	id := s.nextID[collection]
	s.queues[collection] = append(s.queues[collection], Entry{ID: id, Value: valueCopy})
	return id, nil
}

func (s *MemoryStore) ScanAll(_ context.Context, collection string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := s.queues[collection]
	out := make([]Entry, len(q))
	copy(out, q)
	return out, nil
}

func (s *MemoryStore) DeleteEntry(_ context.Context, collection string, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queues[collection]
	for i, e := range q {
		if e.ID == id {
			s.queues[collection] = append(q[:i:i], q[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
