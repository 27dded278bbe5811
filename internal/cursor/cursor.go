// Package cursor encodes continuation tokens for paginated feed queries.
//
// A token is the base64url encoding of the JSON last-seen key map. Callers
// must treat it as opaque and only replay what they received; the encoding
// is an implementation detail and may change.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalid is returned when a token cannot be decoded.
var ErrInvalid = errors.New("cursor: invalid continuation token")

// Encode serializes a last-seen key map into an opaque token.
// An empty map encodes to the empty token.
func Encode(key map[string]string) (string, error) {
	if len(key) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(key)
	if err != nil {
		return "", fmt.Errorf("cursor: encode: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decode parses a token back into the last-seen key map.
// The empty token decodes to nil.
func Decode(token string) (map[string]string, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalid
	}
	var key map[string]string
	if err := json.Unmarshal(raw, &key); err != nil {
		return nil, ErrInvalid
	}
	if len(key) == 0 {
		return nil, ErrInvalid
	}
	return key, nil
}
