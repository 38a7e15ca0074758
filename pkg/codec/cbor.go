package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// CBOR is the default Codec, backed by github.com/fxamacker/cbor/v2. CBOR
// round-trips Go maps, slices, and structs without the schema-evolution
// footguns of gob, and is already part of the dependency graph this
// module was grounded on (pariigh-oasis-core's p2p/rpc client makes the
// same choice for encoding RPC envelopes).
type CBOR struct{}

// NewCBOR returns the default Codec implementation.
func NewCBOR() *CBOR {
	return &CBOR{}
}

func (CBOR) Encode(v interface{}) ([]byte, error) {
	return cbor.Marshal(v)
}

func (CBOR) Decode(data []byte, v interface{}) error {
	return cbor.Unmarshal(data, v)
}
