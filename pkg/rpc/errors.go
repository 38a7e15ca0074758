package rpc

import (
	"errors"
	"fmt"
)

// Error kinds from spec §7. Each is a sentinel wrapped with context at
// the point of use so callers can still errors.Is against it.
var (
	// ErrMalformedURL is returned by CreateFunctionStub for an invalid url.
	ErrMalformedURL = errors.New("rpc: malformed function url")

	// ErrUnknownFunction is reported as a CallFail when a Call references
	// an unregistered FunctionId.
	ErrUnknownFunction = errors.New("rpc: unknown function")

	// ErrUnknownCall covers a CallReturn/CallFail/_PING referencing a
	// missing call. For everything but _PING it is logged, not surfaced;
	// for _PING it fails the caller's handle with this kind.
	ErrUnknownCall = errors.New("rpc: unknown call")

	// ErrCancelled resolves a handle cancelled locally or by the peer.
	ErrCancelled = errors.New("rpc: call cancelled")

	// ErrLostPeer resolves a handle whose ping timed out or whose
	// session closed while the call was in flight.
	ErrLostPeer = errors.New("rpc: lost peer")

	// ErrShutdown resolves every pending local-to-remote call when the
	// system is closed.
	ErrShutdown = errors.New("rpc: system shut down")
)

// Failure kind tags, carried across the wire in a CallFail message and
// reified into one of the sentinels above (or a *RemoteError) on receipt.
const (
	KindUnknownFunction = "UnknownFunction"
	KindUnknownCall     = "UnknownCall"
	KindCancelled       = "Cancelled"
	KindLostPeer        = "LostPeer"
	KindRemoteError     = "RemoteError"
)

// RemoteError reifies an error a user callable raised that doesn't match
// one of the core's own kinds: the original kind tag (if the error came
// from another anycall hop) or "RemoteError", plus its message.
type RemoteError struct {
	Kind    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc: remote error (%s): %s", e.Kind, e.Message)
}

// captureFailure turns an error a local callable raised into a
// codec-encodable Failure record.
func captureFailure(err error) Failure {
	switch {
	case errors.Is(err, ErrUnknownFunction):
		return Failure{Kind: KindUnknownFunction, Message: err.Error()}
	case errors.Is(err, ErrCancelled):
		return Failure{Kind: KindCancelled, Message: err.Error()}
	case errors.Is(err, ErrUnknownCall):
		return Failure{Kind: KindUnknownCall, Message: err.Error()}
	case errors.Is(err, ErrLostPeer):
		return Failure{Kind: KindLostPeer, Message: err.Error()}
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return Failure{Kind: re.Kind, Message: re.Message}
	}
	return Failure{Kind: KindRemoteError, Message: err.Error()}
}

// reify reconstructs a locally-raisable error from a Failure received in
// a CallFail message.
func reify(f Failure) error {
	switch f.Kind {
	case KindUnknownFunction:
		return fmt.Errorf("%w: %s", ErrUnknownFunction, f.Message)
	case KindUnknownCall:
		return fmt.Errorf("%w: %s", ErrUnknownCall, f.Message)
	case KindCancelled:
		return fmt.Errorf("%w: %s", ErrCancelled, f.Message)
	case KindLostPeer:
		return fmt.Errorf("%w: %s", ErrLostPeer, f.Message)
	default:
		return &RemoteError{Kind: f.Kind, Message: f.Message}
	}
}
