// Package memory provides a signer backed by an in-memory ed25519 private
// key, suitable for tests and for the enclave's self-generated RAK.
package memory

import (
	"crypto/rand"

	"github.com/oasislabs/ed25519"

	"github.com/oasislabs/enclaved-compute/common/crypto/signature"
)

// Signer is an in-memory ed25519 signer.
type Signer struct {
	privateKey ed25519.PrivateKey
}

// Public implements signature.Signer.
func (s *Signer) Public() signature.PublicKey {
	var pub signature.PublicKey
	copy(pub[:], s.privateKey.Public().(ed25519.PublicKey))
	return pub
}

// ContextSign implements signature.Signer.
func (s *Signer) ContextSign(context []byte, message []byte) (signature.Signature, error) {
	buf, err := signature.DigestWithContext(context, message)
	if err != nil {
		return signature.Signature{}, err
	}

	raw := ed25519.Sign(s.privateKey, buf)

	var sig signature.Signature
	copy(sig[:], raw)
	return sig, nil
}

// NewSigner generates a new random in-memory signer.
func NewSigner() (*Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Signer{privateKey: priv}, nil
}

// NewFromSeed constructs a signer from a fixed 32-byte seed, used by tests
// that need deterministic keys.
func NewFromSeed(seed []byte) *Signer {
	return &Signer{privateKey: ed25519.NewKeyFromSeed(seed)}
}
