package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"livex/config"
	"livex/internal/domain/widget"
	"livex/internal/handler"
	"livex/internal/repository"
	"livex/internal/services"
	"livex/internal/websocket"
	"livex/pkg/logger"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	server   *httptest.Server
	registry *websocket.Registry
	store    *repository.MemoryAggregateStore
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	cfg := &config.Config{
		AppMode:         TestMode,
		AllowedOrigins:  []string{"*"},
		DefaultCurrency: "USD",
		SendBuffer:      16,
	}
	l := logger.NewNop()

	store := repository.NewMemoryAggregateStore(cfg.DefaultCurrency)
	registry := websocket.NewRegistry()
	dispatcher := websocket.NewDispatcher(registry, l)
	ingest := services.NewIngestService(repository.NewMemoryEventRepository(), store, dispatcher, services.IngestConfig{}, l)
	widgets := services.NewWidgetService(store, dispatcher, l)

	srv := New(cfg, l)
	srv.SetupRoutes(&Handlers{
		Health: handler.NewHealthHandler(nil),
		Event:  handler.NewEventHandler(ingest),
		Widget: handler.NewWidgetHandler(widgets),
		WebSocket: websocket.NewHandler(registry, store, websocket.HandlerConfig{
			AllowedOrigins:  cfg.AllowedOrigins,
			DefaultCurrency: cfg.DefaultCurrency,
			SendBuffer:      cfg.SendBuffer,
		}, l),
	}, nil)

	ts := httptest.NewServer(srv.Engine())
	t.Cleanup(ts.Close)
	return &testApp{server: ts, registry: registry, store: store}
}

func (a *testApp) dial(t *testing.T, query string) *gorillaws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(a.server.URL, "http") + "/ws" + query
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (a *testApp) postEvent(t *testing.T, body string) {
	t.Helper()
	resp, err := http.Post(a.server.URL+"/event", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func readUpdate(t *testing.T, conn *gorillaws.Conn) widget.Update {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var u widget.Update
	require.NoError(t, conn.ReadJSON(&u))
	return u
}

func readNotice(t *testing.T, conn *gorillaws.Conn) widget.EventNotice {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var n widget.EventNotice
	require.NoError(t, conn.ReadJSON(&n))
	require.Equal(t, widget.EventMessageType, n.Type)
	return n
}

func waitSubscribers(t *testing.T, a *testApp, widgetID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return a.registry.SubscriberCount(widgetID) == n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestViewerReceivesCumulativeTotals(t *testing.T) {
	app := newTestApp(t)
	resp, err := http.Post(app.server.URL+"/v1/widgets", "application/json",
		bytes.NewBufferString(`{"widgetId":"W1","currency":"USD"}`))
	require.NoError(t, err)
	resp.Body.Close()

	conn := app.dial(t, "?widget=W1")
	snapshot := readUpdate(t, conn)
	assert.Equal(t, widget.Update{Type: widget.UpdateType, WidgetID: "W1", TotalCents: 0, Currency: "USD"}, snapshot)

	app.postEvent(t, `{"userId":"u1","widgetId":"W1","amountCents":500}`)
	assert.Equal(t, int64(500), readUpdate(t, conn).TotalCents)
	readNotice(t, conn)

	app.postEvent(t, `{"userId":"u2","widgetId":"W1","amountCents":250,"source":"twitch","kind":"donation"}`)
	assert.Equal(t, widget.Update{Type: widget.UpdateType, WidgetID: "W1", TotalCents: 750, Currency: "USD"}, readUpdate(t, conn))

	notice := readNotice(t, conn)
	assert.Equal(t, widget.EventMessageType, notice.Type)
	assert.Equal(t, "W1", notice.WidgetID)
	assert.Equal(t, "u2", notice.UserID)
	assert.Equal(t, "twitch", notice.Source)
	assert.Equal(t, "donation", notice.Kind)
	assert.Equal(t, int64(250), notice.AmountCents)
	assert.NotEmpty(t, notice.EventID)
}

func TestQueryJoinRejectsOversizedWidgetID(t *testing.T) {
	app := newTestApp(t)
	conn := app.dial(t, "?widget="+strings.Repeat("w", 129))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "invalid widgetId", msg["error"])
	assert.Zero(t, app.registry.ConnectionCount())
}

func TestJoinLeaveOverSocket(t *testing.T) {
	app := newTestApp(t)
	conn := app.dial(t, "")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "join", "widgetId": "W9"}))
	snapshot := readUpdate(t, conn)
	assert.Equal(t, "W9", snapshot.WidgetID)
	assert.Equal(t, "USD", snapshot.Currency)
	assert.Zero(t, snapshot.TotalCents)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var pong map[string]any
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, "pong", pong["type"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "leave", "widgetId": "W9"}))
	waitSubscribers(t, app, "W9", 0)

	app.postEvent(t, `{"userId":"u1","widgetId":"W9","amountCents":100}`)

	// the next frame must be the pong, not an update for W9
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var next map[string]any
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, "pong", next["type"])
}

func TestMalformedMessageGetsError(t *testing.T) {
	app := newTestApp(t)
	conn := app.dial(t, "")

	require.NoError(t, conn.WriteMessage(gorillaws.TextMessage, []byte("{nope")))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "error", msg["type"])
}

func TestDisconnectRemovesSubscriptions(t *testing.T) {
	app := newTestApp(t)
	conn := app.dial(t, "?widget=W1")
	readUpdate(t, conn)
	waitSubscribers(t, app, "W1", 1)

	require.NoError(t, conn.Close())

	waitSubscribers(t, app, "W1", 0)
	assert.Zero(t, app.registry.ConnectionCount())

	app.postEvent(t, `{"userId":"u1","widgetId":"W1","amountCents":100}`)
	agg, err := app.store.Read(t.Context(), "W1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), agg.TotalCents)
}

func TestRoutes(t *testing.T) {
	app := newTestApp(t)

	for path, want := range map[string]int{
		"/":        http.StatusOK,
		"/ping":    http.StatusOK,
		"/health":  http.StatusOK,
		"/metrics": http.StatusOK,
	} {
		resp, err := http.Get(app.server.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode, path)
	}

	resp, err := http.Post(app.server.URL+"/v1/events", "application/json", bytes.NewBufferString(`{"userId":"u1","amountCents":1}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
