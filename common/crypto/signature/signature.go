// Package signature implements the digital signature primitives used to
// bind the Runtime Attestation Key to committed results and to verify
// node/entity descriptors.
package signature

import (
	"encoding"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/oasislabs/ed25519"

	"github.com/oasislabs/enclaved-compute/common/cbor"
	"github.com/oasislabs/enclaved-compute/common/crypto/hash"
)

const (
	// PublicKeySize is the size of a public key in bytes.
	PublicKeySize = ed25519.PublicKeySize
	// SignatureSize is the size of a signature in bytes.
	SignatureSize = ed25519.SignatureSize
	// contextSize is the length a shorter signature domain-separation
	// context is zero-padded to.
	contextSize = 8
	// maxContextSize is the maximum length of a signature
	// domain-separation context.
	maxContextSize = 255
)

var (
	// ErrMalformedPublicKey is the error returned when a public key is malformed.
	ErrMalformedPublicKey = errors.New("signature: malformed public key")
	// ErrMalformedSignature is the error returned when a signature is malformed.
	ErrMalformedSignature = errors.New("signature: malformed signature")
	// ErrVerifyFailed is the error returned when a signature verification fails.
	ErrVerifyFailed = errors.New("signature: verification failed")
	// ErrContextTooLong is returned when a signing context exceeds maxContextSize.
	ErrContextTooLong = fmt.Errorf("signature: context must be at most %d bytes", maxContextSize)

	_ encoding.BinaryMarshaler   = (*PublicKey)(nil)
	_ encoding.BinaryUnmarshaler = (*PublicKey)(nil)
	_ encoding.BinaryMarshaler   = (*Signature)(nil)
	_ encoding.BinaryUnmarshaler = (*Signature)(nil)
)

// PublicKey is a signature verification key.
type PublicKey [PublicKeySize]byte

// MarshalBinary encodes a public key into binary form.
func (p *PublicKey) MarshalBinary() (data []byte, err error) {
	data = append([]byte{}, p[:]...)
	return
}

// UnmarshalBinary decodes a binary marshaled public key.
func (p *PublicKey) UnmarshalBinary(data []byte) error {
	if len(data) != PublicKeySize {
		return ErrMalformedPublicKey
	}
	copy(p[:], data)
	return nil
}

// String returns the string representation of a public key.
func (p PublicKey) String() string {
	return hex.EncodeToString(p[:])
}

// Equal compares vs another public key for equality.
func (p PublicKey) Equal(cmp PublicKey) bool {
	return p == cmp
}

// MarshalCBOR encodes a public key as a CBOR byte string, bypassing the
// library's default fixed-array encoding.
func (p PublicKey) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(p[:]), nil
}

// UnmarshalCBOR decodes a CBOR byte string into a public key.
func (p *PublicKey) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := cbor.Unmarshal(data, &b); err != nil {
		return err
	}
	return p.UnmarshalBinary(b)
}

// Signature is a raw signature.
type Signature [SignatureSize]byte

// MarshalBinary encodes a signature into binary form.
func (s *Signature) MarshalBinary() (data []byte, err error) {
	data = append([]byte{}, s[:]...)
	return
}

// UnmarshalBinary decodes a binary marshaled signature.
func (s *Signature) UnmarshalBinary(data []byte) error {
	if len(data) != SignatureSize {
		return ErrMalformedSignature
	}
	copy(s[:], data)
	return nil
}

// MarshalCBOR encodes a signature as a CBOR byte string, bypassing the
// library's default fixed-array encoding.
func (s Signature) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(s[:]), nil
}

// UnmarshalCBOR decodes a CBOR byte string into a signature.
func (s *Signature) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := cbor.Unmarshal(data, &b); err != nil {
		return err
	}
	return s.UnmarshalBinary(b)
}

// SignatureBundle is a signature bundled with the public key that produced
// it, as carried alongside block headers and receipts.
type SignatureBundle struct {
	PublicKey PublicKey `json:"public_key"`
	Signature Signature `json:"signature"`
}

// DigestWithContext mixes a domain-separation context (zero-padded to
// contextSize bytes when shorter, at most maxContextSize bytes) into the
// value and reduces it to a fixed-size SHA-512/256 digest, so that a
// signature produced for one purpose can never be replayed as a
// signature for another, and the ed25519 primitive always signs a
// constant-size buffer regardless of message length. Signer
// implementations use this to produce the buffer they pass to
// ed25519.Sign, and verification uses it to reproduce the same buffer.
func DigestWithContext(context []byte, message []byte) ([]byte, error) {
	if len(context) > maxContextSize {
		return nil, ErrContextTooLong
	}

	padded := context
	if len(padded) < contextSize {
		padded = make([]byte, contextSize)
		copy(padded, context)
	}

	buf := make([]byte, 0, len(padded)+len(message))
	buf = append(buf, padded...)
	buf = append(buf, message...)

	digest := hash.DigestBytes(buf)
	return digest[:], nil
}

// Signer signs messages under a fixed private key.
type Signer interface {
	// Public returns the public key corresponding to the signer.
	Public() PublicKey
	// ContextSign signs the message after mixing in the domain-separation
	// context.
	ContextSign(context []byte, message []byte) (Signature, error)
}

// Verifier can verify signatures produced against a fixed public key.
type Verifier interface {
	ContextVerify(context []byte, message []byte, sig Signature) bool
}

// SignCBOR signs the canonical CBOR encoding of v under the given context.
func SignCBOR(signer Signer, context []byte, v interface{}) (Signature, error) {
	return signer.ContextSign(context, cbor.Marshal(v))
}

// VerifyCBOR verifies a signature over the canonical CBOR encoding of v.
func VerifyCBOR(pub PublicKey, context []byte, v interface{}, sig Signature) bool {
	return rawVerify(pub, context, cbor.Marshal(v), sig)
}

// Verify checks that sig is a valid signature by pub over message under
// the given domain-separation context.
func Verify(pub PublicKey, context []byte, message []byte, sig Signature) bool {
	return rawVerify(pub, context, message, sig)
}

func rawVerify(pub PublicKey, context []byte, message []byte, sig Signature) bool {
	buf, err := DigestWithContext(context, message)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub[:], buf, sig[:])
}

// VerifyManyToOne checks that at least one of the provided signatures was
// produced by one of the expected signers over the same message, used
// when validating a set of storage receipt signatures against a roster
// of acceptable signers.
func VerifyManyToOne(context []byte, message []byte, bundles []SignatureBundle, expected map[PublicKey]bool) bool {
	for _, b := range bundles {
		if !expected[b.PublicKey] {
			continue
		}
		if rawVerify(b.PublicKey, context, message, b.Signature) {
			return true
		}
	}
	return false
}
