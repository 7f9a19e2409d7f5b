package repository

import (
	"context"
	"fmt"
	"math"
	"sync"

	"livex/internal/domain/widget"
	livex_errors "livex/pkg/errors"

	"github.com/google/uuid"
)

// MemoryAggregateStore is an in-process AggregateStore for single-instance
// development and tests. The mutex makes Increment atomic the same way the
// redis script does.
type MemoryAggregateStore struct {
	mu              sync.Mutex
	widgets         map[string]*widget.Aggregate
	applied         map[uuid.UUID]struct{}
	defaultCurrency string
	err             error
}

func NewMemoryAggregateStore(defaultCurrency string) *MemoryAggregateStore {
	return &MemoryAggregateStore{
		widgets:         make(map[string]*widget.Aggregate),
		applied:         make(map[uuid.UUID]struct{}),
		defaultCurrency: defaultCurrency,
	}
}

func (s *MemoryAggregateStore) Create(ctx context.Context, widgetID, currency string, initialCents int64) (widget.Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return widget.Aggregate{}, s.err
	}
	if existing, ok := s.widgets[widgetID]; ok {
		if existing.Currency != currency {
			return *existing, livex_errors.ErrConflict
		}
		return *existing, nil
	}
	agg := &widget.Aggregate{WidgetID: widgetID, TotalCents: initialCents, Currency: currency}
	s.widgets[widgetID] = agg
	return *agg, nil
}

func (s *MemoryAggregateStore) Increment(ctx context.Context, widgetID string, eventID uuid.UUID, deltaCents int64) (widget.Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return widget.Aggregate{}, s.err
	}
	agg, ok := s.widgets[widgetID]
	if !ok {
		agg = &widget.Aggregate{WidgetID: widgetID, Currency: s.defaultCurrency}
		s.widgets[widgetID] = agg
	}
	if _, dup := s.applied[eventID]; dup {
		return *agg, nil
	}
	if deltaCents < 0 {
		return widget.Aggregate{}, fmt.Errorf("increment widget %s by %d: %w", widgetID, deltaCents, livex_errors.ErrInvalidInput)
	}
	if deltaCents > math.MaxInt64-agg.TotalCents {
		return widget.Aggregate{}, fmt.Errorf("increment widget %s: %w", widgetID, livex_errors.ErrTotalOverflow)
	}
	s.applied[eventID] = struct{}{}
	agg.TotalCents += deltaCents
	return *agg, nil
}

func (s *MemoryAggregateStore) Read(ctx context.Context, widgetID string) (widget.Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return widget.Aggregate{}, s.err
	}
	agg, ok := s.widgets[widgetID]
	if !ok {
		return widget.Aggregate{}, livex_errors.ErrWidgetNotFound
	}
	return *agg, nil
}

// FailWith makes every subsequent call return err. Pass nil to recover.
func (s *MemoryAggregateStore) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
