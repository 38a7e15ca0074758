package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCBORRoundTrip(t *testing.T) {
	c := NewCBOR()

	type payload struct {
		Name string
		Args []interface{}
		Kw   map[string]interface{}
	}

	in := payload{
		Name: "greet",
		Args: []interface{}{"World", int64(42)},
		Kw:   map[string]interface{}{"loud": true},
	}

	data, err := c.Encode(in)
	require.NoError(t, err)

	var out payload
	require.NoError(t, c.Decode(data, &out))
	assert.Equal(t, in.Name, out.Name)
	assert.Equal(t, in.Kw, out.Kw)
}
