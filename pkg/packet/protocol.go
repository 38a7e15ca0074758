// Package packet implements the framed packet protocol that every
// anycall stream speaks: a length-prefixed frame carrying a type tag
// and an opaque payload.
package packet

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/twmb/murmur3"
)

const (
	tagWidth    = 4
	lengthWidth = 4
	headerWidth = tagWidth + lengthWidth
)

// ErrCollision is returned by RegisterType when two distinct type names
// hash to the same tag within one Protocol instance.
var ErrCollision = errors.New("packet: type name hash collision")

// ErrUnknownType is returned by SendPacket for an unregistered type name.
var ErrUnknownType = errors.New("packet: unregistered type name")

// ErrUnknownTag is the error a Protocol session fails with when it reads
// a frame whose tag is not registered in this Protocol instance, whatever
// the sending peer registered.
var ErrUnknownTag = errors.New("packet: unknown tag on wire")

// Tag is the fixed-width, stable hash of a type name.
type Tag uint32

// TagFor derives the wire tag for a type name. Every peer that agrees on
// the name agrees on the tag, since it is a pure function of the bytes.
func TagFor(name string) Tag {
	return Tag(murmur3.Sum32([]byte(name)))
}

// Handler is invoked once per successfully parsed frame whose tag is
// registered in this Protocol instance.
type Handler func(name string, payload []byte)

// Protocol is a bidirectional framed packet codec layered over a single
// byte stream. It is not safe to read concurrently, but SendPacket may be
// called from multiple goroutines.
type Protocol struct {
	mu      sync.Mutex
	names   map[Tag]string
	tags    map[string]Tag
	writeMu sync.Mutex
	w       io.Writer
}

// New creates a Protocol that writes frames to w. Reading is driven
// separately via ReadLoop, so a Protocol may be constructed before the
// underlying stream is fully established.
func New(w io.Writer) *Protocol {
	return &Protocol{
		names: make(map[Tag]string),
		tags:  make(map[string]Tag),
		w:     w,
	}
}

// RegisterType assigns the fixed-width tag derived from name. Registering
// the same name twice is a no-op; registering two distinct names that hash
// to the same tag is an error.
func (p *Protocol) RegisterType(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tag := TagFor(name)
	if existing, ok := p.names[tag]; ok {
		if existing == name {
			return nil
		}
		return fmt.Errorf("%w: %q and %q both hash to %d", ErrCollision, existing, name, tag)
	}
	p.names[tag] = name
	p.tags[name] = tag
	return nil
}

// SendPacket writes a single frame: tag, length, payload. It is safe to
// call concurrently with other SendPacket calls and with ReadLoop.
func (p *Protocol) SendPacket(name string, payload []byte) error {
	p.mu.Lock()
	tag, ok := p.tags[name]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, name)
	}

	header := make([]byte, headerWidth)
	binary.BigEndian.PutUint32(header[:tagWidth], uint32(tag))
	binary.BigEndian.PutUint32(header[tagWidth:], uint32(len(payload)))

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if _, err := p.w.Write(header); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := p.w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// ReadLoop reads frames from r until it hits an error (including io.EOF),
// invoking handler for each successfully parsed, registered frame. A frame
// whose tag is not registered is fatal: ReadLoop returns ErrUnknownTag
// without invoking handler for it, and the caller is expected to close the
// session, per spec: unknown packets indicate peer/version skew.
func (p *Protocol) ReadLoop(r io.Reader, handler Handler) error {
	br := bufio.NewReader(r)
	header := make([]byte, headerWidth)
	for {
		if _, err := io.ReadFull(br, header); err != nil {
			return err
		}
		tag := Tag(binary.BigEndian.Uint32(header[:tagWidth]))
		length := binary.BigEndian.Uint32(header[tagWidth:])

		p.mu.Lock()
		name, ok := p.names[tag]
		p.mu.Unlock()
		if !ok {
			return fmt.Errorf("%w: tag %d", ErrUnknownTag, tag)
		}

		payload := make([]byte, length)
		if length > 0 {
			if _, err := io.ReadFull(br, payload); err != nil {
				return err
			}
		}
		handler(name, payload)
	}
}
