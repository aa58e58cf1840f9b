package audit

import (
	"context"
	"sync"
)

// MemoryRepository is an in-memory Repository used in tests and in
// ephemeral deployments where a durable ledger is not required.
// It applies the same filter and ordering semantics as the SQLite
// repository.
type MemoryRepository struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Insert appends an event.
func (r *MemoryRepository) Insert(_ context.Context, e *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *e)
	return nil
}

// List returns events matching the filter, ordered by insertion
// (the ledger serialises appends, so insertion order is timestamp order).
func (r *MemoryRepository) List(_ context.Context, filter Filter) ([]Event, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultQueryLimit
	}
	if filter.Limit > maxQueryLimit {
		filter.Limit = maxQueryLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]Event, 0, len(r.events))
	for _, e := range r.events {
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.Scope != "" && e.Scope != filter.Scope {
			continue
		}
		if filter.Actor != "" && e.Actor != filter.Actor {
			continue
		}
		if filter.Since != nil && e.Timestamp.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && !e.Timestamp.Before(*filter.Until) {
			continue
		}
		matched = append(matched, e)
	}

	if filter.Offset >= len(matched) {
		return []Event{}, nil
	}
	matched = matched[filter.Offset:]
	if len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	out := make([]Event, len(matched))
	copy(out, matched)
	return out, nil
}

// Last returns the most recent event, or nil when empty.
func (r *MemoryRepository) Last(_ context.Context) (*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.events) == 0 {
		return nil, nil
	}
	e := r.events[len(r.events)-1]
	return &e, nil
}
