package storage

import "sync"

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store. Nothing survives the process, so
// it behaves like session-scoped storage: suitable for tests and for
// hosts that deliberately drop the session on exit.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
	subs   subscribers
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	m.subs.notify(key)
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	_, existed := m.values[key]
	delete(m.values, key)
	m.mu.Unlock()
	if existed {
		m.subs.notify(key)
	}
	return nil
}

func (m *MemoryStore) Subscribe(fn func(key string)) func() {
	return m.subs.add(fn)
}

func (m *MemoryStore) Close() error { return nil }
