package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	livex_errors "livex/pkg/errors"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096

	defaultSendBuffer = 64
)

// ErrStaleUpdate is returned by Send when the connection already delivered a
// higher total for the same widget.
var ErrStaleUpdate = errors.New("stale update")

// Client is one viewer connection. Outbound messages go through a bounded
// buffer drained by WriteLoop; Send never blocks.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex       // serializes the stale check with the enqueue
	totals map[string]int64 // last total enqueued per widget
}

func NewClient(conn *websocket.Conn, buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &Client{
		id:     uuid.New().String(),
		conn:   conn,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
		totals: make(map[string]int64),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Done() <-chan struct{} { return c.done }

// Send enqueues msg for delivery. Widget updates lower than the last total
// enqueued for that widget are dropped with ErrStaleUpdate.
func (c *Client) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return livex_errors.ErrConnectionClosed
	default:
	}

	if msg.WidgetID != "" {
		if last, ok := c.totals[msg.WidgetID]; ok && msg.TotalCents < last {
			return ErrStaleUpdate
		}
	}

	select {
	case c.send <- msg.Data:
		if msg.WidgetID != "" {
			c.totals[msg.WidgetID] = msg.TotalCents
		}
		return nil
	default:
		return livex_errors.ErrSendBufferFull
	}
}

// sendControl enqueues a message that is not a widget update.
func (c *Client) sendControl(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(Message{Data: data})
}

// forget drops the ordering state kept for widgetID after a leave.
func (c *Client) forget(widgetID string) {
	c.mu.Lock()
	delete(c.totals, widgetID)
	c.mu.Unlock()
}

// Close marks the client done and closes the socket. Safe to call repeatedly.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// WriteLoop drains the send buffer to the socket and keeps the connection
// alive with pings until the client is closed or a write fails.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
