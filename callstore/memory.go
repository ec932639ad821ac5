package callstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryEntry struct {
	data    []byte
	started time.Time
	expires time.Time
}

// Memory is the in-process store used when Redis is unreachable.
type Memory struct {
	mu        sync.Mutex
	entries   map[string]memoryEntry
	retention time.Duration
	now       func() time.Time
}

func NewMemory(retention time.Duration) *Memory {
	return &Memory{
		entries:   make(map[string]memoryEntry),
		retention: retention,
		now:       time.Now,
	}
}

// Records are stored encoded so callers never share a pointer with the store.
func (m *Memory) Put(_ context.Context, rec *Record) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[rec.ID] = memoryEntry{data: data, started: rec.StartedAt, expires: m.now().Add(m.retention)}
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*Record, error) {
	m.mu.Lock()
	e, ok := m.live(id)
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode(e.data)
}

func (m *Memory) Update(_ context.Context, id string, fn func(*Record)) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := newRecord(id)
	if e, ok := m.live(id); ok {
		var err error
		if rec, err = decode(e.data); err != nil {
			return nil, err
		}
	}
	fn(rec)

	data, err := encode(rec)
	if err != nil {
		return nil, err
	}
	m.entries[id] = memoryEntry{data: data, started: rec.StartedAt, expires: m.now().Add(m.retention)}
	return rec, nil
}

func (m *Memory) List(_ context.Context, limit int) ([]*Record, error) {
	m.mu.Lock()
	entries := make([]memoryEntry, 0, len(m.entries))
	for id := range m.entries {
		if e, ok := m.live(id); ok {
			entries = append(entries, e)
		}
	}
	m.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].started.After(entries[j].started) })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	out := make([]*Record, 0, len(entries))
	for _, e := range entries {
		rec, err := decode(e.data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

// live must be called with mu held. Expired entries are dropped.
func (m *Memory) live(id string) (memoryEntry, bool) {
	e, ok := m.entries[id]
	if !ok {
		return memoryEntry{}, false
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, id)
		return memoryEntry{}, false
	}
	return e, true
}
