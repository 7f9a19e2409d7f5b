package repository

import (
	"context"
	"sync"

	"livex/internal/domain/event"
)

// MemoryEventRepository keeps events in process. It backs EVENT_LOG_BACKEND=memory
// and the tests.
type MemoryEventRepository struct {
	mu     sync.RWMutex
	events []event.Event
	seen   map[string]struct{}
	err    error
}

func NewMemoryEventRepository() *MemoryEventRepository {
	return &MemoryEventRepository{seen: make(map[string]struct{})}
}

func (r *MemoryEventRepository) Append(ctx context.Context, e *event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if _, ok := r.seen[e.ID.String()]; ok {
		return nil
	}
	r.seen[e.ID.String()] = struct{}{}
	r.events = append(r.events, *e)
	return nil
}

// FailWith makes every subsequent Append return err. Pass nil to recover.
func (r *MemoryEventRepository) FailWith(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Events returns a copy of everything appended so far.
func (r *MemoryEventRepository) Events() []event.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]event.Event, len(r.events))
	copy(out, r.events)
	return out
}
