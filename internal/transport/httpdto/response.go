package httpdto

// Response is the envelope of every JSON answer except /health.
type Response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	// Field names the offending request field on INVALID_REQUEST.
	Field string `json:"field,omitempty"`
}

func NewSuccessResponse[T any](data T) Response[T] {
	return Response[T]{
		Success: true,
		Data:    data,
	}
}

func NewErrorResponse(err string, code string) Response[any] {
	return Response[any]{
		Success: false,
		Error:   err,
		Code:    code,
	}
}

func NewValidationErrorResponse(field, reason string) Response[any] {
	resp := NewErrorResponse(reason, "INVALID_REQUEST")
	resp.Field = field
	return resp
}
