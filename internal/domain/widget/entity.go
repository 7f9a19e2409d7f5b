package widget

// UpdateType is the message type of an outbound total update.
const UpdateType = "widget.total"

// Aggregate is the running total of one widget as held by the aggregate store.
type Aggregate struct {
	WidgetID   string `json:"widgetId"`
	TotalCents int64  `json:"totalCents"`
	Currency   string `json:"currency"`
}

// Update is what subscribers receive. It always carries the full total.
type Update struct {
	Type       string `json:"type"`
	WidgetID   string `json:"widgetId"`
	TotalCents int64  `json:"totalCents"`
	Currency   string `json:"currency"`
}

func NewUpdate(a Aggregate) Update {
	return Update{
		Type:       UpdateType,
		WidgetID:   a.WidgetID,
		TotalCents: a.TotalCents,
		Currency:   a.Currency,
	}
}

func (u Update) Aggregate() Aggregate {
	return Aggregate{WidgetID: u.WidgetID, TotalCents: u.TotalCents, Currency: u.Currency}
}

// EventMessageType is the message type of a per-event push.
const EventMessageType = "widget.event"

// EventNotice tells a widget's viewers about one ingested event. It is sent
// after the total update the event produced and never replaces it.
type EventNotice struct {
	Type        string `json:"type"`
	WidgetID    string `json:"widgetId"`
	EventID     string `json:"eventId"`
	Source      string `json:"source"`
	Kind        string `json:"kind,omitempty"`
	UserID      string `json:"userId"`
	AmountCents int64  `json:"amountCents"`
}
