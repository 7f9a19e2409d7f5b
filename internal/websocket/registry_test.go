package websocket

import (
	"fmt"
	"sync"
	"testing"

	livex_errors "livex/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id   string
	done chan struct{}

	mu      sync.Mutex
	msgs    []Message
	sendErr error
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, done: make(chan struct{})}
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Done() <-chan struct{} { return f.done }

func (f *fakeConn) Send(msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.done:
		return livex_errors.ErrConnectionClosed
	default:
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeConn) close() { close(f.done) }

func (f *fakeConn) received() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.msgs...)
}

func TestRegistryJoinIsIdempotent(t *testing.T) {
	r := NewRegistry()
	c := newFakeConn("c1")

	assert.True(t, r.Join(c, "W1"))
	assert.True(t, r.Join(c, "W1"))

	subs := r.SubscribersOf("W1")
	require.Len(t, subs, 1)
	assert.Equal(t, "c1", subs[0].ID())
	assert.Equal(t, []string{"W1"}, r.Widgets(c))
	assert.Equal(t, 1, r.ConnectionCount())
}

func TestRegistryLeave(t *testing.T) {
	r := NewRegistry()
	c := newFakeConn("c1")

	r.Leave(c, "W1") // never joined

	r.Join(c, "W1")
	r.Join(c, "W2")
	r.Leave(c, "W1")
	r.Leave(c, "W1")

	assert.Empty(t, r.SubscribersOf("W1"))
	assert.Equal(t, 1, r.SubscriberCount("W2"))
	assert.Equal(t, []string{"W2"}, r.Widgets(c))
}

func TestRegistryOnDisconnectRemovesEverything(t *testing.T) {
	r := NewRegistry()
	c1 := newFakeConn("c1")
	c2 := newFakeConn("c2")

	r.Join(c1, "W1")
	r.Join(c1, "W2")
	r.Join(c2, "W1")

	c1.close()
	r.OnDisconnect(c1)
	r.OnDisconnect(c1)

	subs := r.SubscribersOf("W1")
	require.Len(t, subs, 1)
	assert.Equal(t, "c2", subs[0].ID())
	assert.Zero(t, r.SubscriberCount("W2"))
	assert.Nil(t, r.Widgets(c1))
	assert.Equal(t, 1, r.ConnectionCount())
}

func TestRegistryRefusesClosedConnection(t *testing.T) {
	r := NewRegistry()
	c := newFakeConn("c1")
	c.close()

	assert.False(t, r.Join(c, "W1"))
	assert.Empty(t, r.SubscribersOf("W1"))
	assert.Zero(t, r.ConnectionCount())
}

func TestRegistrySubscribersOfIsASnapshot(t *testing.T) {
	r := NewRegistry()
	c1 := newFakeConn("c1")
	r.Join(c1, "W1")

	subs := r.SubscribersOf("W1")
	r.Join(newFakeConn("c2"), "W1")
	r.Leave(c1, "W1")

	require.Len(t, subs, 1)
	assert.Equal(t, "c1", subs[0].ID())
	assert.Equal(t, 1, r.SubscriberCount("W1"))
}

func TestRegistryConcurrentJoinAndDisconnect(t *testing.T) {
	r := NewRegistry()
	const conns = 200

	var wg sync.WaitGroup
	for i := 0; i < conns; i++ {
		c := newFakeConn(fmt.Sprintf("c%d", i))
		wg.Add(2)
		go func() {
			defer wg.Done()
			for w := 0; w < 5; w++ {
				r.Join(c, fmt.Sprintf("W%d", w))
			}
		}()
		go func() {
			defer wg.Done()
			c.close()
			r.OnDisconnect(c)
		}()
	}
	wg.Wait()

	for w := 0; w < 5; w++ {
		assert.Zero(t, r.SubscriberCount(fmt.Sprintf("W%d", w)))
	}
	assert.Zero(t, r.ConnectionCount())
}

func TestRegistryConcurrentJoinLeave(t *testing.T) {
	r := NewRegistry()
	const conns = 100

	var wg sync.WaitGroup
	for i := 0; i < conns; i++ {
		c := newFakeConn(fmt.Sprintf("c%d", i))
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Join(c, "W1")
			r.Join(c, "W2")
			if i%2 == 0 {
				r.Leave(c, "W2")
			}
			_ = r.SubscribersOf("W1")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, conns, r.SubscriberCount("W1"))
	assert.Equal(t, conns/2, r.SubscriberCount("W2"))
}
