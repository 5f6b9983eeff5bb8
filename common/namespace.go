// Package common defines fixed-size identifier types shared across the
// block header, commitment, and protocol packages.
package common

import (
	"encoding"
	"encoding/hex"
	"errors"

	"github.com/oasislabs/enclaved-compute/common/cbor"
)

// NamespaceSize is the size of a chain namespace identifier in bytes.
const NamespaceSize = 32

// ErrMalformedNamespace is the error returned when a namespace is malformed.
var ErrMalformedNamespace = errors.New("common: malformed namespace")

var (
	_ encoding.BinaryMarshaler   = (*Namespace)(nil)
	_ encoding.BinaryUnmarshaler = (*Namespace)(nil)
)

// Namespace identifies the runtime chain a block or batch belongs to.
type Namespace [NamespaceSize]byte

// MarshalBinary encodes a namespace into binary form.
func (n *Namespace) MarshalBinary() (data []byte, err error) {
	data = append([]byte{}, n[:]...)
	return
}

// UnmarshalBinary decodes a binary marshaled namespace.
func (n *Namespace) UnmarshalBinary(data []byte) error {
	if len(data) != NamespaceSize {
		return ErrMalformedNamespace
	}
	copy(n[:], data)
	return nil
}

// String returns the string representation of a namespace.
func (n Namespace) String() string {
	return hex.EncodeToString(n[:])
}

// Equal compares vs another namespace for equality.
func (n Namespace) Equal(cmp Namespace) bool {
	return n == cmp
}

// IsEmpty returns true iff the namespace is the zero namespace.
func (n Namespace) IsEmpty() bool {
	return n == Namespace{}
}

// MarshalCBOR encodes a namespace as a CBOR byte string, bypassing the
// library's default fixed-array encoding.
func (n Namespace) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(n[:]), nil
}

// UnmarshalCBOR decodes a CBOR byte string into a namespace.
func (n *Namespace) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := cbor.Unmarshal(data, &b); err != nil {
		return err
	}
	return n.UnmarshalBinary(b)
}
