package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"
)

// MemoryStore keeps objects in process memory. Presigned URLs use the
// memory:// scheme and are only meaningful to the same process.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	prefix  string
	now     func() time.Time
}

func NewMemoryStore(prefix string) *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		prefix:  prefix,
		now:     time.Now,
	}
}

func (m *MemoryStore) Put(ctx context.Context, data []byte, filename string) (string, error) {
	key := NewKey(m.prefix, filename, m.now().UTC())

	m.mu.Lock()
	m.objects[key] = append([]byte(nil), data...)
	m.mu.Unlock()

	return key, nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects[key]; !ok {
		return false, nil
	}
	delete(m.objects, key)
	return true, nil
}

func (m *MemoryStore) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	expires := m.now().Add(presignTTL(ttl)).Unix()
	return fmt.Sprintf("memory:///%s?expires=%d", url.PathEscape(key), expires), nil
}

func (m *MemoryStore) HealthCheck(ctx context.Context) error {
	return nil
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
