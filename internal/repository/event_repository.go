package repository

import (
	"context"
	"errors"
	"fmt"

	"livex/internal/domain/event"
	livex_errors "livex/pkg/errors"

	"github.com/avast/retry-go"
	"github.com/jackc/pgx/v5"
)

type PostgresEventRepository struct {
	db       DBTX
	attempts uint
}

func NewEventRepository(db DBTX) *PostgresEventRepository {
	return &PostgresEventRepository{db: db, attempts: 3}
}

const insertEventSQL = `
INSERT INTO events (id, source, kind, user_id, widget_id, amount_cents, payload, received_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8)
ON CONFLICT (id) DO NOTHING`

// Append inserts the event. Re-appending the same event id is a no-op, which
// keeps retries safe.
func (r *PostgresEventRepository) Append(ctx context.Context, e *event.Event) error {
	var payload any
	if len(e.Payload) > 0 {
		payload = string(e.Payload)
	}

	err := retry.Do(
		func() error {
			_, err := r.db.Exec(ctx, insertEventSQL,
				e.ID, e.Source, e.Kind, e.UserID, e.WidgetID, e.AmountCents, payload, e.ReceivedAt)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(r.attempts),
		retry.RetryIf(isTransient),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", e.ID, err)
	}
	return nil
}

// Get loads a single event by id. Used by tests and operators.
func (r *PostgresEventRepository) Get(ctx context.Context, id string) (event.Event, error) {
	var (
		e       event.Event
		kind    *string
		payload []byte
	)
	err := r.db.QueryRow(ctx, `
SELECT id, source, kind, user_id, widget_id, amount_cents, payload, received_at
FROM events WHERE id = $1`, id).
		Scan(&e.ID, &e.Source, &kind, &e.UserID, &e.WidgetID, &e.AmountCents, &payload, &e.ReceivedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return event.Event{}, livex_errors.ErrNotFound
	}
	if err != nil {
		return event.Event{}, fmt.Errorf("get event %s: %w", id, err)
	}
	if kind != nil {
		e.Kind = *kind
	}
	e.Payload = payload
	return e, nil
}
