package rpc

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

const urlScheme = "anycall"

// buildFunctionURL renders the anycall://<peer-id>/functions/<hex32>
// grammar from spec §4.3.
func buildFunctionURL(peer string, id uuid.UUID) string {
	return fmt.Sprintf("%s://%s/functions/%s", urlScheme, peer, hex.EncodeToString(id[:]))
}

// parseFunctionURL parses and validates the grammar, returning the peer
// id and FunctionId it names.
func parseFunctionURL(raw string) (peer string, id uuid.UUID, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", uuid.UUID{}, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	if u.Scheme != urlScheme {
		return "", uuid.UUID{}, fmt.Errorf("%w: scheme %q, want %q", ErrMalformedURL, u.Scheme, urlScheme)
	}
	if u.Host == "" {
		return "", uuid.UUID{}, fmt.Errorf("%w: missing peer id", ErrMalformedURL)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 || parts[0] != "functions" {
		return "", uuid.UUID{}, fmt.Errorf("%w: path %q, want /functions/<id>", ErrMalformedURL, u.Path)
	}

	raw32 := parts[1]
	if len(raw32) != 32 {
		return "", uuid.UUID{}, fmt.Errorf("%w: function id %q is not 32 hex characters", ErrMalformedURL, raw32)
	}
	b, err := hex.DecodeString(raw32)
	if err != nil {
		return "", uuid.UUID{}, fmt.Errorf("%w: function id %q is not hex: %v", ErrMalformedURL, raw32, err)
	}
	id, err = uuid.FromBytes(b)
	if err != nil {
		return "", uuid.UUID{}, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	return u.Host, id, nil
}
