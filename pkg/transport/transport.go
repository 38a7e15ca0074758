// Package transport provides the stream transport collaborator that the
// connection pool builds sessions on top of. anycall's core treats
// transport construction as an external concern (spec §6); this package
// supplies a reference TCP implementation and a websocket alternative,
// both satisfying the same small interface.
package transport

import (
	"context"
	"io"
)

// Stream is a single bidirectional byte stream between two peers.
type Stream interface {
	io.ReadWriteCloser
}

// Listener accepts inbound Streams until Stop is called.
type Listener interface {
	// Stop stops accepting new inbound streams. It does not close
	// already-accepted streams.
	Stop() error
}

// Transport is the factory collaborator a ConnectionPool is configured
// with: it can dial peers by address and, optionally, listen for inbound
// connections.
type Transport interface {
	// Listen starts accepting inbound streams, invoking onStream for each
	// one as it is established. A nil Listener return together with a nil
	// error means this transport is client-only and does not listen.
	Listen(onStream func(Stream)) (Listener, error)

	// Dial opens an outbound Stream to peer's listening endpoint. peer is
	// transport-specific (for TCP, "host:port").
	Dial(ctx context.Context, peer string) (Stream, error)
}
