// Package block defines the runtime block and header types produced by
// the batch executor and consumed by the consensus commit flow.
package block

import (
	"github.com/oasislabs/enclaved-compute/common"
	"github.com/oasislabs/enclaved-compute/common/cbor"
	"github.com/oasislabs/enclaved-compute/common/crypto/hash"
	"github.com/oasislabs/enclaved-compute/common/crypto/signature"
)

// HeaderType is the type of a block header.
type HeaderType uint8

const (
	// Invalid is an invalid header type, and should never be stored.
	Invalid HeaderType = 0
	// Normal is a normal round, that contains runtime transactions.
	Normal HeaderType = 1
	// RoundFailed is a failed round, where no transactions were applied.
	RoundFailed HeaderType = 2
	// EpochTransition is a pseudo-round that marks an epoch transition.
	EpochTransition HeaderType = 3
	// Suspended is a pseudo-round used on runtime suspension.
	Suspended HeaderType = 4
)

// String returns the string representation of a HeaderType.
func (t HeaderType) String() string {
	switch t {
	case Invalid:
		return "invalid"
	case Normal:
		return "normal"
	case RoundFailed:
		return "round-failed"
	case EpochTransition:
		return "epoch-transition"
	case Suspended:
		return "suspended"
	default:
		return "[unknown]"
	}
}

// Header is a block header.
type Header struct {
	// Version is the protocol version number.
	Version uint16 `cbor:"version"`
	// Namespace is the chain namespace this header belongs to.
	Namespace common.Namespace `cbor:"namespace"`
	// Round is the block round.
	Round uint64 `cbor:"round"`
	// Timestamp is the block timestamp, a POSIX time.
	Timestamp uint64 `cbor:"timestamp"`
	// HeaderType is the type of this header.
	HeaderType HeaderType `cbor:"header_type"`
	// PreviousHash is the previous block's header hash.
	PreviousHash hash.Hash `cbor:"previous_hash"`
	// IORoot is the I/O merkle root.
	IORoot hash.Hash `cbor:"io_root"`
	// StateRoot is the state merkle root.
	StateRoot hash.Hash `cbor:"state_root"`
	// MessagesHash is the hash of messages emitted by the runtime.
	MessagesHash hash.Hash `cbor:"messages_hash"`
	// StorageSignatures are storage receipt signatures for the block, if any.
	StorageSignatures []signature.SignatureBundle `cbor:"storage_signatures"`
}

// EncodedHash returns the SHA-512/256 digest of the header's canonical
// CBOR encoding.
func (h *Header) EncodedHash() hash.Hash {
	return hash.DigestBytes(cbor.Marshal(h))
}

// Block is a runtime block.
type Block struct {
	Header Header `cbor:"header"`
}

// MessagesHash returns the hash of an ordered sequence of runtime
// messages. The empty sequence hashes to the empty hash, not to the
// hash of an encoded empty array.
func MessagesHash(msgs [][]byte) hash.Hash {
	if len(msgs) == 0 {
		return hash.Empty()
	}
	return hash.DigestBytes(cbor.Marshal(msgs))
}
