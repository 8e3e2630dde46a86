// Package chash computes the 32-byte content hashes that address every
// durable object in the core (see spec §3, "Content-addressed objects").
package chash

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Size is the width in bytes of a content hash.
const Size = 32

// Hash is a 32-byte content hash, displayable as 64-character lowercase hex.
type Hash [Size]byte

// Zero is the all-zero hash; never produced by Of, useful as an
// explicit "no value stored" marker in callers that need one.
var Zero Hash

// Of hashes the given canonical byte serialization of an object.
func Of(data []byte) Hash {
	sum := blake2b.Sum256(data)
	var h Hash
	copy(h[:], sum[:])
	return h
}

// String renders the hash as 64-character lowercase hex.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == Zero
}

// Parse decodes a 64-character lowercase hex string into a Hash.
func Parse(s string) (Hash, error) {
	if len(s) != Size*2 {
		return Hash{}, fmt.Errorf("chash: parse: want %d hex chars, got %d", Size*2, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("chash: parse %q: %w", s, err)
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
