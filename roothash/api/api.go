// Package api implements the root hash backend API and common datastructures.
package api

import (
	"context"

	"github.com/oasislabs/enclaved-compute/common"
	"github.com/oasislabs/enclaved-compute/common/crypto/hash"
	"github.com/oasislabs/enclaved-compute/common/crypto/signature"
	"github.com/oasislabs/enclaved-compute/common/errors"
	"github.com/oasislabs/enclaved-compute/common/pubsub"
	"github.com/oasislabs/enclaved-compute/roothash/api/block"
	"github.com/oasislabs/enclaved-compute/roothash/api/commitment"
)

// ModuleName is the module name used for error registration.
const ModuleName = "roothash"

var (
	// ErrInvalidArgument is the error returned on malformed argument(s).
	ErrInvalidArgument = errors.New(ModuleName, 1, "roothash: invalid argument")

	// ErrNotFound is the error returned when a block is not found.
	ErrNotFound = errors.New(ModuleName, 2, "roothash: block not found")

	// ErrDiscrepancyDetected is returned by Commit when a submitted
	// commitment's header diverges from the majority of commitments
	// already seen for the same round.
	ErrDiscrepancyDetected = errors.New(ModuleName, 3, "roothash: discrepancy detected")
)

// Commitment is a RAK-signed compute results header, submitted by a
// committee leader to the consensus layer after a batch has executed.
type Commitment struct {
	// RAK is the public key of the Runtime Attestation Key that signed
	// Header.
	RAK signature.PublicKey `json:"rak"`
	// Header is the compute results header being committed to.
	Header commitment.ComputeResultsHeader `json:"header"`
	// Signature is RAK's signature over Header.EncodedHash(), under
	// commitment.ResultsHeaderSignatureContext.
	Signature signature.Signature `json:"signature"`
}

// Sign populates Signature by signing Header's encoded hash with rak,
// and sets RAK to rak's public key.
func (c *Commitment) Sign(rak signature.Signer) error {
	digest := c.Header.EncodedHash()
	sig, err := rak.ContextSign(commitment.ResultsHeaderSignatureContext, digest[:])
	if err != nil {
		return err
	}
	c.RAK = rak.Public()
	c.Signature = sig
	return nil
}

// Verify checks that Signature is a valid signature by RAK over
// Header's encoded hash.
func (c *Commitment) Verify() bool {
	digest := c.Header.EncodedHash()
	return signature.Verify(c.RAK, commitment.ResultsHeaderSignatureContext, digest[:], c.Signature)
}

// Backend is a root hash consensus implementation. Compared to a full
// BFT state machine replication backend, the scope here is narrowed to
// what a compute worker needs: observing blocks for the runtimes it
// services and submitting its own commitments.
type Backend interface {
	// GetLatestBlock returns the latest block for runtimeID.
	GetLatestBlock(ctx context.Context, runtimeID common.Namespace) (*block.Block, error)

	// GetBlock returns the block at the given round.
	GetBlock(ctx context.Context, runtimeID common.Namespace, round uint64) (*block.Block, error)

	// WatchBlocks returns a channel that produces a stream of blocks
	// for runtimeID. The latest block, if any, is pushed immediately.
	WatchBlocks(runtimeID common.Namespace) (<-chan *block.Block, *pubsub.Subscription, error)

	// WatchEvents returns a stream of protocol events for runtimeID.
	WatchEvents(runtimeID common.Namespace) (<-chan *Event, *pubsub.Subscription, error)

	// Commit submits a leader's aggregated commitment for runtimeID.
	Commit(ctx context.Context, runtimeID common.Namespace, commit *Commitment) error

	// Cleanup cleans up the roothash backend.
	Cleanup()
}

// TestableBackend is implemented by backends built for deterministic
// testing of the commit flow. None of these hooks affect production
// behavior; a production Backend need not implement this interface.
type TestableBackend interface {
	Backend

	// InjectDiscrepancy forces the next Commit call for runtimeID to
	// return ErrDiscrepancyDetected regardless of the commitment
	// submitted, simulating a backup-worker re-execution trigger.
	InjectDiscrepancy(runtimeID common.Namespace)

	// FailAfterCommit arranges for the backend to accept and record
	// the next Commit call for runtimeID as usual, but then behave as
	// if the round had failed to finalize (no block is produced).
	FailAfterCommit(runtimeID common.Namespace)

	// SkipCommitUntilRound causes every Commit call for runtimeID
	// whose Header.Round is below round to be silently accepted
	// without advancing the chain, simulating a committee that is
	// behind.
	SkipCommitUntilRound(runtimeID common.Namespace, round uint64)
}

// DiscrepancyDetectedEvent is emitted when a discrepancy is detected
// between commitments for the same round.
type DiscrepancyDetectedEvent struct {
	// IORoot is the I/O merkle root that backup workers should use to
	// fetch the batch that needs to be re-executed.
	IORoot hash.Hash `json:"io_root"`

	// BlockHeader is the block header of the block on which the backup
	// computation should be based.
	BlockHeader block.Header `json:"header"`
}

// Event is a protocol event.
type Event struct {
	// DiscrepancyDetected is set when a discrepancy is detected,
	// signaling to backup workers that a computation should be
	// re-executed.
	DiscrepancyDetected *DiscrepancyDetectedEvent
}

// AnnotatedBlock is a roothash block annotated with the underlying
// consensus backend's block height that produced it.
type AnnotatedBlock struct {
	// Height is the underlying consensus backend's block height that
	// generated this block.
	Height int64

	// Block is the roothash block.
	Block *block.Block
}

// MapAnnotatedBlockToBlock maps a channel of annotated blocks to a
// channel of plain blocks.
func MapAnnotatedBlockToBlock(annCh <-chan *AnnotatedBlock) <-chan *block.Block {
	ch := make(chan *block.Block)
	go func() {
		for {
			ann, ok := <-annCh
			if !ok {
				close(ch)
				return
			}
			ch <- ann.Block
		}
	}()
	return ch
}

// PrunedBlock describes a block that was pruned from a backend's local
// history.
type PrunedBlock struct {
	// RuntimeID is the runtime identifier of the block that was pruned.
	RuntimeID common.Namespace
	// Round is the block round.
	Round uint64
}
