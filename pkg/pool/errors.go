package pool

import "errors"

var (
	// ErrClosed is returned by Send and EnsureConnected when they would
	// start a new outbound connect after Close has begun (spec §4.2). A
	// connect that was already dialing when Close began is not stopped by it.
	ErrClosed = errors.New("pool: closed")

	// ErrPeerMismatch is the session-fatal error produced when an
	// outbound connect declared an expected peer id and the handshake
	// reports a different one.
	ErrPeerMismatch = errors.New("pool: peer identity mismatch on handshake")

	// ErrProtocol covers every other session-fatal condition: a
	// non-handshake frame before the handshake completes, or a second
	// handshake on an already-live session.
	ErrProtocol = errors.New("pool: protocol violation")
)
