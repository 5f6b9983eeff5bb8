// Package commitment defines the compressed result header a batch
// executor signs with the Runtime Attestation Key after processing a
// call batch.
package commitment

import (
	"github.com/oasislabs/enclaved-compute/common/cbor"
	"github.com/oasislabs/enclaved-compute/common/crypto/hash"
)

// ResultsHeaderSignatureContext is the domain-separation context used
// to sign a ComputeResultsHeader's encoded hash.
var ResultsHeaderSignatureContext = []byte("oasis-core/roothash: compute results header")

// ComputeResultsHeader is a compressed representation of a computed
// batch's effects: hashes instead of full content.
type ComputeResultsHeader struct {
	// Round is the block round this batch was computed for.
	Round uint64 `cbor:"round"`
	// PreviousHash is the hash of the parent block header this batch
	// was computed against.
	PreviousHash hash.Hash `cbor:"previous_hash"`
	// IORoot is the I/O merkle root, if the batch produced one.
	IORoot *hash.Hash `cbor:"io_root,omitempty"`
	// StateRoot is the state root after applying this batch, if known.
	StateRoot *hash.Hash `cbor:"state_root,omitempty"`
	// MessagesHash is the hash of messages emitted by this batch, if any.
	MessagesHash *hash.Hash `cbor:"messages_hash,omitempty"`
}

// EncodedHash returns the SHA-512/256 digest of the header's canonical
// CBOR encoding.
func (h *ComputeResultsHeader) EncodedHash() hash.Hash {
	return hash.DigestBytes(cbor.Marshal(h))
}
