// Package cryptoutil decodes the 32-byte master keys accepted in configuration.
package cryptoutil

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// KeySize is the length of a decoded master key.
const KeySize = 32

// ErrKeyLength is returned for keys that are neither 32 raw bytes nor 64 hex characters.
var ErrKeyLength = errors.New("key must be 32 bytes or 64 hex characters")

// DecodeKey returns the raw key for s, given as 32 raw bytes or 64 hex characters.
func DecodeKey(s string) ([]byte, error) {
	switch {
	case len(s) == 2*KeySize && isHex(s):
		return hex.DecodeString(s)
	case len(s) == KeySize:
		return []byte(s), nil
	}
	return nil, fmt.Errorf("%w (got %d)", ErrKeyLength, len(s))
}

func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
