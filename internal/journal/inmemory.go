package journal

import (
	"context"
	"sync"
)

const defaultMemoryCapacity = 500

type inMemoryJournal struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
}

// NewInMemory creates a concurrency-safe journal keeping the newest
// capacity entries. A non-positive capacity uses a default.
func NewInMemory(capacity int) Journal {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &inMemoryJournal{capacity: capacity}
}

func (j *inMemoryJournal) Append(_ context.Context, entry Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	if over := len(j.entries) - j.capacity; over > 0 {
		j.entries = append([]Entry(nil), j.entries[over:]...)
	}
	return nil
}

func (j *inMemoryJournal) Recent(_ context.Context, limit int) ([]Entry, error) {
	limit, err := clampLimit(limit)
	if err != nil {
		return nil, err
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if limit > len(j.entries) {
		limit = len(j.entries)
	}
	out := make([]Entry, 0, limit)
	for i := len(j.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, j.entries[i])
	}
	return out, nil
}
