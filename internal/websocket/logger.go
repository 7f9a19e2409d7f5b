package websocket

import (
	"livex/pkg/logger"

	"go.uber.org/zap"
)

// WebSocketLogger provides structured logging for connection lifecycle events
type WebSocketLogger struct {
	logger *zap.Logger
}

func NewWebSocketLogger(l *logger.Logger) *WebSocketLogger {
	if l == nil {
		l = logger.NewNop()
	}
	return &WebSocketLogger{
		logger: l.Logger.With(zap.String("component", "websocket")),
	}
}

func (l *WebSocketLogger) Info(event string, connectionID string, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("event", event),
		zap.String("connection_id", connectionID),
	}, fields...)
	l.logger.Info("websocket_event", allFields...)
}

func (l *WebSocketLogger) Error(event string, connectionID string, err error, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("event", event),
		zap.String("connection_id", connectionID),
		zap.Error(err),
	}, fields...)
	l.logger.Error("websocket_error", allFields...)
}

func (l *WebSocketLogger) Warn(event string, connectionID string, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("event", event),
		zap.String("connection_id", connectionID),
	}, fields...)
	l.logger.Warn("websocket_warning", allFields...)
}
