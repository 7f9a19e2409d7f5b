package httpdto

import "encoding/json"

type IngestEventRequest struct {
	UserID      string          `json:"userId"`
	WidgetID    string          `json:"widgetId,omitempty"`
	AmountCents *int64          `json:"amountCents"`
	Source      string          `json:"source,omitempty"`
	Kind        string          `json:"kind,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

type IngestEventResponse struct {
	EventID string `json:"eventId"`
}
