package httpdto

type CreateWidgetRequest struct {
	WidgetID     string `json:"widgetId" binding:"required"`
	Currency     string `json:"currency" binding:"required"`
	InitialCents int64  `json:"initialCents"`
}

type WidgetResponse struct {
	WidgetID   string `json:"widgetId"`
	TotalCents int64  `json:"totalCents"`
	Currency   string `json:"currency"`
}
