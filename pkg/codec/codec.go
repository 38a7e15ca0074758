// Package codec defines the pluggable value codec collaborator named in
// spec §6: argument/result encoding is external to the RPC core so that
// any encoding capable of round-tripping host values can be plugged in.
package codec

// Codec encodes and decodes values exchanged over the wire: the four RPC
// message records (spec §4.3) as well as any argument, keyword-argument,
// or return value a registered callable accepts or produces.
type Codec interface {
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
}
