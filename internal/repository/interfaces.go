package repository

import (
	"context"

	"livex/internal/domain/event"
	"livex/internal/domain/widget"

	"github.com/google/uuid"
)

// EventLog is the append-only store of raw events.
type EventLog interface {
	Append(ctx context.Context, e *event.Event) error
}

// AggregateStore holds the running total of every widget. Increment must be
// atomic inside the store; callers never read-modify-write a total.
type AggregateStore interface {
	// Create registers a widget with its currency. Creating an existing widget
	// with the same currency is a no-op; a different currency is ErrConflict.
	Create(ctx context.Context, widgetID, currency string, initialCents int64) (widget.Aggregate, error)
	// Increment adds deltaCents and returns the resulting total. Applying the
	// same eventID twice only counts once. Unknown widgets are created with
	// the store's default currency.
	Increment(ctx context.Context, widgetID string, eventID uuid.UUID, deltaCents int64) (widget.Aggregate, error)
	// Read returns ErrWidgetNotFound for widgets that were never created.
	Read(ctx context.Context, widgetID string) (widget.Aggregate, error)
}
