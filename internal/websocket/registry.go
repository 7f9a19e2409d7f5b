package websocket

import (
	"sync"

	"livex/internal/metrics"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 32

// Message is an encoded widget update ready for the wire.
type Message struct {
	WidgetID   string
	TotalCents int64
	Data       []byte
}

// Connection is a live subscriber channel as seen by the registry.
//
// Send must not block: implementations enqueue into a bounded buffer and
// report ErrSendBufferFull or ErrConnectionClosed instead of waiting.
// Done is closed when the connection is torn down, before OnDisconnect runs.
type Connection interface {
	ID() string
	Send(msg Message) error
	Done() <-chan struct{}
}

type topicShard struct {
	mu     sync.RWMutex
	topics map[string]map[string]Connection // widget id -> connection id -> connection
}

type membership struct {
	mu      sync.Mutex
	widgets map[string]struct{}
	closed  bool
}

type memberShard struct {
	mu      sync.Mutex
	members map[string]*membership // connection id -> widgets joined
}

// Registry maps widgets to the connections subscribed to them. Widget sets
// and connection memberships are sharded independently, so contention only
// happens between operations that hash to the same shard.
//
// The registry never decides a connection's lifetime: it drops every
// reference to a connection in OnDisconnect and refuses to Join connections
// whose Done channel is closed.
type Registry struct {
	topics  [shardCount]topicShard
	members [shardCount]memberShard
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.topics {
		r.topics[i].topics = make(map[string]map[string]Connection)
		r.members[i].members = make(map[string]*membership)
	}
	return r
}

func shardIndex(key string) uint64 {
	return xxhash.Sum64String(key) % shardCount
}

func (r *Registry) topicShard(widgetID string) *topicShard {
	return &r.topics[shardIndex(widgetID)]
}

func (r *Registry) memberShard(connID string) *memberShard {
	return &r.members[shardIndex(connID)]
}

func isDone(conn Connection) bool {
	select {
	case <-conn.Done():
		return true
	default:
		return false
	}
}

// Join subscribes conn to widgetID. Joining twice is the same as joining
// once. It returns false, without effect, if conn is already closed.
func (r *Registry) Join(conn Connection, widgetID string) bool {
	if isDone(conn) {
		return false
	}

	ms := r.memberShard(conn.ID())
	ms.mu.Lock()
	m, ok := ms.members[conn.ID()]
	if !ok {
		m = &membership{widgets: make(map[string]struct{})}
		ms.members[conn.ID()] = m
	}
	ms.mu.Unlock()

	m.mu.Lock()
	// A disconnect may have completed between the first check and the
	// membership lookup; in that case nobody will clean up after us.
	if m.closed || isDone(conn) {
		m.closed = true
		empty := len(m.widgets) == 0
		m.mu.Unlock()
		if empty {
			ms.mu.Lock()
			if ms.members[conn.ID()] == m {
				delete(ms.members, conn.ID())
			}
			ms.mu.Unlock()
		}
		return false
	}
	defer m.mu.Unlock()

	if _, ok := m.widgets[widgetID]; ok {
		return true
	}
	m.widgets[widgetID] = struct{}{}

	ts := r.topicShard(widgetID)
	ts.mu.Lock()
	subs, ok := ts.topics[widgetID]
	if !ok {
		subs = make(map[string]Connection)
		ts.topics[widgetID] = subs
	}
	subs[conn.ID()] = conn
	ts.mu.Unlock()

	metrics.WidgetSubscriptions.Inc()
	return true
}

// Leave unsubscribes conn from widgetID. It is a no-op if conn never joined.
func (r *Registry) Leave(conn Connection, widgetID string) {
	ms := r.memberShard(conn.ID())
	ms.mu.Lock()
	m, ok := ms.members[conn.ID()]
	ms.mu.Unlock()
	if !ok {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if _, ok := m.widgets[widgetID]; !ok {
		return
	}
	delete(m.widgets, widgetID)
	r.removeFromTopic(widgetID, conn.ID())
}

// OnDisconnect removes conn from every widget it joined. Calling it again
// for the same connection does nothing.
func (r *Registry) OnDisconnect(conn Connection) {
	ms := r.memberShard(conn.ID())
	ms.mu.Lock()
	m, ok := ms.members[conn.ID()]
	delete(ms.members, conn.ID())
	ms.mu.Unlock()
	if !ok {
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	widgets := m.widgets
	m.widgets = nil
	m.mu.Unlock()

	for widgetID := range widgets {
		r.removeFromTopic(widgetID, conn.ID())
	}
}

func (r *Registry) removeFromTopic(widgetID, connID string) {
	ts := r.topicShard(widgetID)
	ts.mu.Lock()
	defer ts.mu.Unlock()

	subs, ok := ts.topics[widgetID]
	if !ok {
		return
	}
	if _, ok := subs[connID]; !ok {
		return
	}
	delete(subs, connID)
	if len(subs) == 0 {
		delete(ts.topics, widgetID)
	}
	metrics.WidgetSubscriptions.Dec()
}

// SubscribersOf returns a snapshot of the connections subscribed to widgetID.
// The slice is owned by the caller.
func (r *Registry) SubscribersOf(widgetID string) []Connection {
	ts := r.topicShard(widgetID)
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	subs := ts.topics[widgetID]
	if len(subs) == 0 {
		return nil
	}
	out := make([]Connection, 0, len(subs))
	for _, conn := range subs {
		out = append(out, conn)
	}
	return out
}

// SubscriberCount returns the number of connections subscribed to widgetID.
func (r *Registry) SubscriberCount(widgetID string) int {
	ts := r.topicShard(widgetID)
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.topics[widgetID])
}

// Widgets returns the widgets conn is currently subscribed to.
func (r *Registry) Widgets(conn Connection) []string {
	ms := r.memberShard(conn.ID())
	ms.mu.Lock()
	m, ok := ms.members[conn.ID()]
	ms.mu.Unlock()
	if !ok {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.widgets))
	for widgetID := range m.widgets {
		out = append(out, widgetID)
	}
	return out
}

// ConnectionCount returns the number of connections holding at least one
// subscription.
func (r *Registry) ConnectionCount() int {
	n := 0
	for i := range r.members {
		ms := &r.members[i]
		ms.mu.Lock()
		n += len(ms.members)
		ms.mu.Unlock()
	}
	return n
}
