package store

import "sync"

// MemStore is an in-memory Store used by tests and the "mem:" backend.
type MemStore struct {
	mu      sync.Mutex
	records map[string][]byte

	// FailPut, if set, is returned by Put and the record is left untouched.
	FailPut error
	// FailGet, if set, is returned by Get.
	FailGet error
	// Puts counts successful Put calls.
	Puts int
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string][]byte)}
}

// Get returns a copy of the record for key.
func (m *MemStore) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailGet != nil {
		return nil, m.FailGet
	}
	v, ok := m.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Put stores a copy of value under key.
func (m *MemStore) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPut != nil {
		return m.FailPut
	}
	m.records[key] = append([]byte(nil), value...)
	m.Puts++
	return nil
}

// Erase removes key.
func (m *MemStore) Erase(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

// Close is a no-op.
func (m *MemStore) Close() error {
	return nil
}

// Corrupt flips one byte of the record stored under key. It reports false
// when the key is missing or the offset is out of range.
func (m *MemStore) Corrupt(key string, offset int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.records[key]
	if !ok || offset < 0 || offset >= len(v) {
		return false
	}
	v[offset] ^= 0xFF
	return true
}
