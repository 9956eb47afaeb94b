package whitelist

import (
	"context"
	"sync"
)

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[Principal]Entry
}

func NewMemoryStore(seed ...Entry) *MemoryStore {
	m := &MemoryStore{entries: map[Principal]Entry{}}
	for _, e := range seed {
		m.entries[e.Principal] = e
	}
	return m
}

func (m *MemoryStore) Load(context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	Sort(out)
	return out, nil
}

func (m *MemoryStore) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Principal] = e
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, p Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, p)
	return nil
}

func (m *MemoryStore) Save(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[Principal]Entry, len(entries))
	for _, e := range entries {
		m.entries[e.Principal] = e
	}
	return nil
}
