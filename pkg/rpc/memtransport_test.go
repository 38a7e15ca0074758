package rpc

import (
	"context"
	"net"
	"sync"

	"github.com/anycall-go/anycall/pkg/transport"
)

// memTransport wires RPCSystem instances together over net.Pipe, keyed
// by PeerId, so these tests exercise the real pool/packet/codec stack
// without real sockets. Mirrors pkg/pool's own memTransport helper.
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
	t.mu.Lock()
	t.onStream = onStream
	t.mu.Unlock()
	return noopListener{}, nil
}

func (t *memTransport) Dial(ctx context.Context, peer string) (transport.Stream, error) {
	t.mu.Lock()
	target, ok := t.registry[peer]
	t.mu.Unlock()
	if !ok {
		return nil, errUnreachable(peer)
	}
	target.mu.Lock()
	onStream := target.onStream
	target.mu.Unlock()
	if onStream == nil {
		return nil, errUnreachable(peer)
	}
	a, b := net.Pipe()
	go onStream(b)
	return a, nil
}

type noopListener struct{}

func (noopListener) Stop() error { return nil }

type errUnreachable string

func (e errUnreachable) Error() string { return "rpc test: unreachable peer " + string(e) }
