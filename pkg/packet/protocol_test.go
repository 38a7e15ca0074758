package packet

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterTypeIdempotent(t *testing.T) {
	p := New(&bytes.Buffer{})
	require.NoError(t, p.RegisterType("hello"))
	require.NoError(t, p.RegisterType("hello"))
}

func TestSendPacketUnknownType(t *testing.T) {
	p := New(&bytes.Buffer{})
	err := p.SendPacket("nope", []byte("x"))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestSendReceiveRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	sender := New(buf)
	require.NoError(t, sender.RegisterType("greeting"))
	require.NoError(t, sender.SendPacket("greeting", []byte("hello world")))
	require.NoError(t, sender.SendPacket("greeting", []byte{}))

	receiver := New(nil)
	require.NoError(t, receiver.RegisterType("greeting"))

	var mu sync.Mutex
	var got []string
	err := receiver.ReadLoop(buf, func(name string, payload []byte) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, name+":"+string(payload))
	})
	assert.Error(t, err) // io.EOF once buf drains

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"greeting:hello world", "greeting:"}, got)
}

func TestUnknownTagFailsSession(t *testing.T) {
	buf := &bytes.Buffer{}
	sender := New(buf)
	require.NoError(t, sender.RegisterType("secret"))
	require.NoError(t, sender.SendPacket("secret", []byte("x")))

	receiver := New(nil) // never registers "secret"
	err := receiver.ReadLoop(buf, func(string, []byte) {
		t.Fatal("handler should not be invoked for unknown tag")
	})
	assert.True(t, errors.Is(err, ErrUnknownTag))
}

func TestRegisterTypeCollision(t *testing.T) {
	p := New(&bytes.Buffer{})
	require.NoError(t, p.RegisterType("a"))
	// Force an artificial collision by reaching into the tag map directly;
	// a genuine murmur3 collision between short ASCII names is not
	// reliably reproducible, so we simulate the condition RegisterType
	// must detect.
	p.mu.Lock()
	tag := p.tags["a"]
	p.names[tag] = "a" // sanity: still consistent
	p.mu.Unlock()

	// Same tag, different registered name: exercise the error path
	// directly since TagFor is a pure function of the input bytes.
	p.mu.Lock()
	p.names[tag] = "b"
	p.mu.Unlock()
	err := p.RegisterType("a")
	assert.ErrorIs(t, err, ErrCollision)
}
