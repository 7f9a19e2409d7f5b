package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"livex/internal/domain/widget"
	"livex/internal/metrics"
	livex_errors "livex/pkg/errors"
	"livex/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	snapshotTimeout = 2 * time.Second
	maxWidgetIDLen  = 128
)

// Inbound message types
const (
	MessageJoin  = "join"
	MessageLeave = "leave"
	MessagePing  = "ping"
)

type inboundMessage struct {
	Type     string `json:"type"`
	WidgetID string `json:"widgetId,omitempty"`
}

type controlMessage struct {
	Type     string `json:"type"`
	WidgetID string `json:"widgetId,omitempty"`
	Error    string `json:"error,omitempty"`
}

// SnapshotReader reads the current aggregate sent to a connection on join.
type SnapshotReader interface {
	Read(ctx context.Context, widgetID string) (widget.Aggregate, error)
}

type HandlerConfig struct {
	AllowedOrigins  []string
	DefaultCurrency string
	SendBuffer      int
}

type Handler struct {
	registry *Registry
	store    SnapshotReader
	config   HandlerConfig
	upgrader websocket.Upgrader
	logger   *WebSocketLogger
}

func NewHandler(registry *Registry, store SnapshotReader, cfg HandlerConfig, l *logger.Logger) *Handler {
	h := &Handler{
		registry: registry,
		store:    store,
		config:   cfg,
		logger:   NewWebSocketLogger(l),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// Connect upgrades the request and serves the connection until it closes.
func (h *Handler) Connect(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("upgrade_failed", "", zap.Error(err))
		return
	}

	client := NewClient(conn, h.config.SendBuffer)
	metrics.WebSocketConnections.Inc()
	h.logger.Info("connected", client.ID(), zap.String("remote_addr", c.ClientIP()))

	defer func() {
		client.Close()
		h.registry.OnDisconnect(client)
		metrics.WebSocketConnections.Dec()
		h.logger.Info("disconnected", client.ID())
	}()

	go client.WriteLoop()

	if raw := c.Query("widget"); raw != "" {
		if widgetID, ok := normalizeWidgetID(raw); ok {
			h.handleJoin(client, widgetID)
		} else {
			h.reply(client, controlMessage{Type: "error", Error: "invalid widgetId"})
		}
	}

	h.readLoop(client)
}

func (h *Handler) readLoop(client *Client) {
	conn := client.conn
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("read_failed", client.ID(), zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reply(client, controlMessage{Type: "error", Error: "malformed message"})
			continue
		}

		switch msg.Type {
		case MessageJoin, MessageLeave:
			widgetID, ok := normalizeWidgetID(msg.WidgetID)
			if !ok {
				h.reply(client, controlMessage{Type: "error", Error: "invalid widgetId"})
				continue
			}
			if msg.Type == MessageJoin {
				h.handleJoin(client, widgetID)
			} else {
				h.registry.Leave(client, widgetID)
				client.forget(widgetID)
			}
		case MessagePing:
			h.reply(client, controlMessage{Type: "pong"})
		default:
			h.reply(client, controlMessage{Type: "error", Error: "unknown message type"})
		}
	}
}

// normalizeWidgetID trims raw and reports whether it is a usable widget id.
func normalizeWidgetID(raw string) (string, bool) {
	widgetID := strings.TrimSpace(raw)
	if widgetID == "" || len(widgetID) > maxWidgetIDLen {
		return "", false
	}
	return widgetID, true
}

// handleJoin subscribes the client and sends it the current total so it
// does not wait for the next event to render.
func (h *Handler) handleJoin(client *Client, widgetID string) {
	if !h.registry.Join(client, widgetID) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	agg, err := h.store.Read(ctx, widgetID)
	switch {
	case errors.Is(err, livex_errors.ErrWidgetNotFound):
		agg = widget.Aggregate{WidgetID: widgetID, Currency: h.config.DefaultCurrency}
	case err != nil:
		h.logger.Error("snapshot_failed", client.ID(), err, zap.String("widget_id", widgetID))
		h.reply(client, controlMessage{Type: "error", WidgetID: widgetID, Error: "widget state unavailable"})
		return
	}

	msg, err := EncodeUpdate(agg)
	if err != nil {
		h.logger.Error("snapshot_encode_failed", client.ID(), err, zap.String("widget_id", widgetID))
		return
	}
	if err := client.Send(msg); err != nil && !errors.Is(err, ErrStaleUpdate) {
		h.logger.Warn("snapshot_dropped", client.ID(), zap.String("widget_id", widgetID), zap.Error(err))
	}
}

func (h *Handler) reply(client *Client, msg controlMessage) {
	if err := client.sendControl(msg); err != nil {
		h.logger.Warn("reply_dropped", client.ID(), zap.String("type", msg.Type), zap.Error(err))
	}
}
