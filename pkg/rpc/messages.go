package rpc

import "github.com/google/uuid"

// MessageType is the single pool packet type RPCSystem registers; the
// four wire message kinds from spec §4.3 share it and are distinguished
// by envelope.Kind, since pool.Pool dispatches by packet type name only.
const MessageType = "RPC"

// Failure is the wire form of an error: a stable kind tag plus a
// human-readable message. See captureFailure/reify for the mapping
// to/from Go errors.
type Failure struct {
	Kind    string
	Message string
}

// wireCall is the wire form of a Call message (spec §4.3): an invocation
// of FunctionID with positional and keyword arguments.
type wireCall struct {
	CallID     uuid.UUID
	FunctionID uuid.UUID
	Args       []interface{}
	Kwargs     map[string]interface{}
}

// wireCallReturn carries a successful result back to the caller.
type wireCallReturn struct {
	CallID uuid.UUID
	Value  interface{}
}

// wireCallFail carries a Failure back to the caller.
type wireCallFail struct {
	CallID  uuid.UUID
	Failure Failure
}

// wireCallCancel asks the callee to abandon an in-flight call.
type wireCallCancel struct {
	CallID uuid.UUID
}

// envelope is the single struct actually put on the wire under
// MessageType; Kind selects which of the four payloads is populated.
// fxamacker/cbor omits nil pointer fields tagged omitempty, so only the
// active payload is encoded.
type envelope struct {
	Kind   string
	Call   *wireCall       `cbor:",omitempty"`
	Return *wireCallReturn `cbor:",omitempty"`
	Fail   *wireCallFail   `cbor:",omitempty"`
	Cancel *wireCallCancel `cbor:",omitempty"`
}

const (
	kindCall   = "call"
	kindReturn = "return"
	kindFail   = "fail"
	kindCancel = "cancel"
)
