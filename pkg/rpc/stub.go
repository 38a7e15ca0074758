package rpc

import (
	"context"

	"github.com/google/uuid"
)

// Callable is a locally-registered function reachable by other peers. It
// must respect ctx cancellation: a CallCancel from the caller cancels
// ctx rather than killing the goroutine outright, mirroring spec §4.3's
// cooperative-cancellation edge case.
type Callable func(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error)

// Stub is the caller-side handle produced by CreateFunctionStub: a
// specific remote function, ready to Invoke.
type Stub struct {
	sys  *RPCSystem
	peer string
	id   uuid.UUID
}

// Invoke starts a call and returns immediately with a Handle for its
// eventual result, or an error if the call could not even be sent (dial
// failure, encode failure, pool shutdown).
func (s *Stub) Invoke(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (*Handle, error) {
	return s.sys.invokeFunction(ctx, s.peer, s.id, args, kwargs)
}

// Peer returns the PeerId this stub calls into.
func (s *Stub) Peer() string { return s.peer }
