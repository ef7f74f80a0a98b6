// Package chaintypes defines the block and transaction shapes shared by the
// chain-indexing engine and the services that plug into it.
package chaintypes

import (
	"encoding/hex"
	"fmt"
)

// HashLength is the length in bytes of a block or transaction hash.
const HashLength = 32

// Hash is a 32-byte block or transaction identifier.
type Hash [HashLength]byte

// BytesToHash interprets b as a big-endian hash, left-padding or truncating
// as needed to fit HashLength.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

func (h Hash) IsZero() bool { return h == Hash{} }

// ParseHash decodes a hex-encoded hash string.
func ParseHash(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("chaintypes: decode hash %q: %w", s, err)
	}
	if len(b) != HashLength {
		return Hash{}, fmt.Errorf("chaintypes: hash %q has %d bytes, want %d", s, len(b), HashLength)
	}
	return BytesToHash(b), nil
}
