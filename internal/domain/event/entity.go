package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const DefaultSource = "direct"

// Event is one external occurrence as accepted by the ingestion pipeline.
// Once appended to the event log it is never mutated.
type Event struct {
	ID          uuid.UUID       `json:"id"`
	Source      string          `json:"source"`
	Kind        string          `json:"kind,omitempty"`
	UserID      string          `json:"userId"`
	WidgetID    *string         `json:"widgetId,omitempty"`
	AmountCents int64           `json:"amountCents"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	ReceivedAt  time.Time       `json:"receivedAt"`
}

// HasWidget reports whether the event targets a widget.
func (e *Event) HasWidget() bool {
	return e.WidgetID != nil && *e.WidgetID != ""
}

func (Event) TableName() string {
	return "events"
}
