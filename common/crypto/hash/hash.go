// Package hash provides a cryptographic hash type used throughout the
// protocol for content-addressing and header digests.
package hash

import (
	"crypto/sha512"
	"encoding"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/oasislabs/enclaved-compute/common/cbor"
)

// Size is the size of the hash in bytes.
const Size = 32

// ErrMalformed is the error returned when a hash is malformed.
var ErrMalformed = errors.New("hash: malformed hash")

var (
	_ encoding.BinaryMarshaler   = (*Hash)(nil)
	_ encoding.BinaryUnmarshaler = (*Hash)(nil)
)

// Hash is a cryptographic hash.
type Hash [Size]byte

// MarshalBinary encodes a hash into binary form.
func (h *Hash) MarshalBinary() (data []byte, err error) {
	data = append([]byte{}, h[:]...)
	return
}

// UnmarshalBinary decodes a binary marshaled hash.
func (h *Hash) UnmarshalBinary(data []byte) error {
	if len(data) != Size {
		return ErrMalformed
	}
	copy(h[:], data)
	return nil
}

// MarshalCBOR encodes a hash as a CBOR byte string, bypassing the
// library's default fixed-array encoding.
func (h Hash) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(h[:]), nil
}

// UnmarshalCBOR decodes a CBOR byte string into a hash.
func (h *Hash) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := cbor.Unmarshal(data, &b); err != nil {
		return err
	}
	return h.UnmarshalBinary(b)
}

// MarshalHex encodes a hash into a hexadecimal string.
func (h Hash) MarshalHex() string {
	return hex.EncodeToString(h[:])
}

// UnmarshalHex decodes a hexadecimal string into a hash.
func (h *Hash) UnmarshalHex(text string) error {
	b, err := hex.DecodeString(text)
	if err != nil {
		return err
	}
	return h.UnmarshalBinary(b)
}

// String returns the string representation of a hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Equal compares vs another hash for equality.
func (h *Hash) Equal(cmp *Hash) bool {
	if cmp == nil {
		return false
	}
	return *h == *cmp
}

// IsEmpty returns true iff the hash is the empty hash.
func (h *Hash) IsEmpty() bool {
	empty := Empty()
	return h.Equal(&empty)
}

// From sets the hash to that of an arbitrary CBOR-serializable value,
// using the canonical CBOR encoding so the digest is deterministic.
func (h *Hash) From(v interface{}) {
	*h = DigestBytes(cbor.Marshal(v))
}

// NewFrom returns a new hash of an arbitrary CBOR-serializable value.
func NewFrom(v interface{}) Hash {
	var h Hash
	h.From(v)
	return h
}

// DigestBytes returns the SHA-512/256 digest of the given byte string.
func DigestBytes(data []byte) Hash {
	return Hash(sha512.Sum512_256(data))
}

// Empty returns the hash of the empty byte string.
func Empty() Hash {
	return DigestBytes([]byte{})
}

// EmptyHash is an alias for Empty, kept for call sites that prefer a
// noun form (mirrors the wire terminology used for "empty hash" roots).
func EmptyHash() Hash {
	return Empty()
}

// FromHex parses a hex string into a hash, panicking on malformed input.
// Intended for test fixtures and constant initialization, not for
// parsing untrusted input.
func FromHex(s string) Hash {
	var h Hash
	if err := h.UnmarshalHex(s); err != nil {
		panic(fmt.Sprintf("hash: malformed hex: %v", err))
	}
	return h
}
