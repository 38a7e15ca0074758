package pool

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/anycall-go/anycall/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memTransport connects Pools entirely in-process over net.Pipe, keyed by
// peer id, so pool tests don't need real sockets. Grounded in the
// fakeTransp pattern of pkg/network/helper_test.go.
type memTransport struct {
	id string

	mu       sync.Mutex
	registry map[string]*memTransport
	onStream func(transport.Stream)
}

func newMemTransports(ids ...string) map[string]*memTransport {
	registry := make(map[string]*memTransport)
	ts := make(map[string]*memTransport)
	for _, id := range ids {
		t := &memTransport{id: id, registry: registry}
		registry[id] = t
		ts[id] = t
	}
	return ts
}

func (t *memTransport) Listen(onStream func(transport.Stream)) (transport.Listener, error) {
	t.onStream = onStream
	return noopListener{}, nil
}

func (t *memTransport) Dial(ctx context.Context, peer string) (transport.Stream, error) {
	t.mu.Lock()
	target, ok := t.registry[peer]
	t.mu.Unlock()
	if !ok {
		return nil, errUnknownPeer
	}
	a, b := net.Pipe()
	go target.onStream(b)
	return a, nil
}

type noopListener struct{}

func (noopListener) Stop() error { return nil }

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }

const errUnknownPeer = sentinelErr("pool test: unknown peer")

func newTestPool(t *testing.T, tr transport.Transport, ownID string, onPacket OnPacket) *Pool {
	t.Helper()
	if onPacket == nil {
		onPacket = func(string, string, []byte) {}
	}
	p := New(Config{Transport: tr, OwnID: ownID, OnPacket: onPacket})
	require.NoError(t, p.RegisterType("greeting"))
	require.NoError(t, p.Open())
	return p
}

func TestHandshakeAndSend(t *testing.T) {
	ts := newMemTransports("a:1", "b:1")

	var mu sync.Mutex
	var received []string
	onB := func(peer, typeName string, payload []byte) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, peer+":"+typeName+":"+string(payload))
	}

	poolA := newTestPool(t, ts["a:1"], "a:1", nil)
	defer poolA.Close()
	poolB := newTestPool(t, ts["b:1"], "b:1", onB)
	defer poolB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, poolA.Send(ctx, "b:1", "greeting", []byte("hello")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"a:1:greeting:hello"}, received)
	mu.Unlock()
}

func TestSendReusesLiveSession(t *testing.T) {
	ts := newMemTransports("a:1", "b:1")

	var mu sync.Mutex
	var count int
	onB := func(string, string, []byte) {
		mu.Lock()
		count++
		mu.Unlock()
	}

	poolA := newTestPool(t, ts["a:1"], "a:1", nil)
	defer poolA.Close()
	poolB := newTestPool(t, ts["b:1"], "b:1", onB)
	defer poolB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 0; i < 3; i++ {
		require.NoError(t, poolA.Send(ctx, "b:1", "greeting", []byte("hi")))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 3
	}, 2*time.Second, 10*time.Millisecond)

	poolA.mu.RLock()
	numSessions := len(poolA.sessions["b:1"])
	poolA.mu.RUnlock()
	assert.Equal(t, 1, numSessions, "repeated sends to a live peer must not open new sessions")
}

func TestCloseResolvesAllSessions(t *testing.T) {
	ts := newMemTransports("a:1", "b:1")
	poolA := newTestPool(t, ts["a:1"], "a:1", nil)
	poolB := newTestPool(t, ts["b:1"], "b:1", nil)
	defer poolB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, poolA.Send(ctx, "b:1", "greeting", []byte("hi")))

	done := make(chan struct{})
	go func() {
		poolA.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	poolA.mu.RLock()
	assert.Empty(t, poolA.sessions)
	poolA.mu.RUnlock()
}

func TestSendToUnreachablePeerFails(t *testing.T) {
	ts := newMemTransports("a:1")
	poolA := newTestPool(t, ts["a:1"], "a:1", nil)
	defer poolA.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := poolA.Send(ctx, "ghost:1", "greeting", []byte("hi"))
	assert.Error(t, err)
}

func TestRegisterTypeDuplicateIsNoOp(t *testing.T) {
	ts := newMemTransports("a:1")
	p := New(Config{Transport: ts["a:1"], OwnID: "a:1"})
	require.NoError(t, p.RegisterType("x"))
	// RegisterType delegates collision detection to packet.Protocol,
	// already covered end-to-end in pkg/packet; here we just check the
	// happy path doesn't error and duplicate registration is a no-op.
	require.NoError(t, p.RegisterType("x"))
}
