package progress

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/audionotes/internal/common"
)

type memoryEntry struct {
	snapshot  Snapshot
	expiresAt time.Time
}

// MemoryTracker is the single-process driver.
type MemoryTracker struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryTracker(ttl time.Duration) *MemoryTracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryTracker{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryTracker) Save(ctx context.Context, s Snapshot) error {
	now := m.now()
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = now.UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[s.NoteID]; ok && now.Before(e.expiresAt) && s.SupersededBy(&e.snapshot) {
		return nil
	}
	m.entries[s.NoteID] = memoryEntry{snapshot: s, expiresAt: now.Add(m.ttl)}

	for id, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, id)
		}
	}
	return nil
}

func (m *MemoryTracker) Get(ctx context.Context, noteID string) (*Snapshot, error) {
	m.mu.RLock()
	e, ok := m.entries[noteID]
	m.mu.RUnlock()

	if !ok || m.now().After(e.expiresAt) {
		return nil, common.ErrorNotFound
	}
	s := e.snapshot
	return &s, nil
}
