package state

import (
	"sort"
	"sync"
	"time"
)

// Store keeps session snapshots. All methods must be thread-safe.
type Store interface {
	// Put inserts or replaces the entry for e.Session.ID. Entries without
	// an ID are ignored.
	Put(e Entry)

	// Get returns a copy of the entry for id.
	Get(id string) (Entry, bool)

	// List returns up to limit entries, newest first by creation time.
	// limit <= 0 means no limit.
	List(limit int) []Entry

	// Delete removes entries created before cutoff and returns how many
	// were dropped.
	Delete(cutoff time.Time) int

	// OnChange registers a listener called after every Put.
	OnChange(fn ChangeListener)

	// DroppedWrites reports persistence writes lost to back-pressure.
	DroppedWrites() int64

	Close() error
}

// ChangeListener receives the stored entry after a Put. Listeners run
// outside the store lock.
type ChangeListener func(e Entry)

// MemoryStore is the in-memory Store.
type MemoryStore struct {
	mu        sync.RWMutex
	entries   map[string]Entry
	listeners []ChangeListener
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (ms *MemoryStore) OnChange(fn ChangeListener) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.listeners = append(ms.listeners, fn)
}

func (ms *MemoryStore) Put(e Entry) {
	if e.Session.ID == "" {
		return
	}
	e = e.clone()
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now()
	}

	ms.mu.Lock()
	ms.entries[e.Session.ID] = e
	listeners := ms.listeners
	ms.mu.Unlock()

	for _, fn := range listeners {
		fn(e.clone())
	}
}

// Restore loads an entry without notifying listeners. Used when replaying
// persisted history at startup.
func (ms *MemoryStore) Restore(e Entry) {
	if e.Session.ID == "" {
		return
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.entries[e.Session.ID] = e.clone()
}

func (ms *MemoryStore) Get(id string) (Entry, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	e, ok := ms.entries[id]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

func (ms *MemoryStore) List(limit int) []Entry {
	ms.mu.RLock()
	result := make([]Entry, 0, len(ms.entries))
	for _, e := range ms.entries {
		result = append(result, e.clone())
	}
	ms.mu.RUnlock()

	SortNewestFirst(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

func (ms *MemoryStore) Delete(cutoff time.Time) int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	n := 0
	for id, e := range ms.entries {
		if e.Session.CreatedAt.Before(cutoff) {
			delete(ms.entries, id)
			n++
		}
	}
	return n
}

func (ms *MemoryStore) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.entries)
}

// DroppedWrites is always zero: nothing is persisted.
func (ms *MemoryStore) DroppedWrites() int64 { return 0 }

func (ms *MemoryStore) Close() error { return nil }

// SortNewestFirst orders entries by creation time descending, falling back
// to last update and then ID so the order is stable.
func SortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.Session.CreatedAt.Equal(b.Session.CreatedAt) {
			return a.Session.CreatedAt.After(b.Session.CreatedAt)
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.Session.ID > b.Session.ID
	})
}
