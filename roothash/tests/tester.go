// Package tests provides a conformance harness for roothash.Backend
// implementations, plus an in-memory MemoryBackend good enough to run
// it against.
package tests

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oasislabs/enclaved-compute/common"
	"github.com/oasislabs/enclaved-compute/common/crypto/signature"
	"github.com/oasislabs/enclaved-compute/common/pubsub"
	"github.com/oasislabs/enclaved-compute/roothash/api"
	"github.com/oasislabs/enclaved-compute/roothash/api/block"
	"github.com/oasislabs/enclaved-compute/roothash/api/commitment"
)

const recvTimeout = 5 * time.Second

// MemoryBackend is an in-memory api.TestableBackend. Blocks are kept
// entirely in process memory; Cleanup only closes the block and event
// subscriptions and does not drop stored blocks. It exists to drive
// conformance tests, not for production use.
type MemoryBackend struct {
	mu sync.Mutex

	blocks    map[common.Namespace][]*block.Block
	notifiers map[common.Namespace]*pubsub.Broker
	events    map[common.Namespace]*pubsub.Broker

	injectDiscrepancy map[common.Namespace]bool
	failAfterCommit   map[common.Namespace]bool
	skipUntilRound    map[common.Namespace]uint64
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		blocks:            make(map[common.Namespace][]*block.Block),
		notifiers:         make(map[common.Namespace]*pubsub.Broker),
		events:            make(map[common.Namespace]*pubsub.Broker),
		injectDiscrepancy: make(map[common.Namespace]bool),
		failAfterCommit:   make(map[common.Namespace]bool),
		skipUntilRound:    make(map[common.Namespace]uint64),
	}
}

func (b *MemoryBackend) genesisLocked(runtimeID common.Namespace) *block.Block {
	if blocks, ok := b.blocks[runtimeID]; ok {
		return blocks[0]
	}
	genesis := &block.Block{Header: block.Header{
		Namespace:  runtimeID,
		Round:      0,
		HeaderType: block.Normal,
	}}
	b.blocks[runtimeID] = []*block.Block{genesis}
	return genesis
}

func (b *MemoryBackend) notifierLocked(runtimeID common.Namespace) *pubsub.Broker {
	n, ok := b.notifiers[runtimeID]
	if !ok {
		n = pubsub.NewBroker(false)
		b.notifiers[runtimeID] = n
	}
	return n
}

func (b *MemoryBackend) eventNotifierLocked(runtimeID common.Namespace) *pubsub.Broker {
	n, ok := b.events[runtimeID]
	if !ok {
		n = pubsub.NewBroker(false)
		b.events[runtimeID] = n
	}
	return n
}

// GetLatestBlock implements api.Backend.
func (b *MemoryBackend) GetLatestBlock(ctx context.Context, runtimeID common.Namespace) (*block.Block, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.genesisLocked(runtimeID)
	blocks := b.blocks[runtimeID]
	return blocks[len(blocks)-1], nil
}

// GetBlock implements api.Backend.
func (b *MemoryBackend) GetBlock(ctx context.Context, runtimeID common.Namespace, round uint64) (*block.Block, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.genesisLocked(runtimeID)
	for _, blk := range b.blocks[runtimeID] {
		if blk.Header.Round == round {
			return blk, nil
		}
	}
	return nil, api.ErrNotFound
}

// WatchBlocks implements api.Backend. The current latest block, if
// any, is pushed to the returned channel immediately.
func (b *MemoryBackend) WatchBlocks(runtimeID common.Namespace) (<-chan *block.Block, *pubsub.Subscription, error) {
	b.mu.Lock()
	b.genesisLocked(runtimeID)
	current := b.blocks[runtimeID][len(b.blocks[runtimeID])-1]
	notifier := b.notifierLocked(runtimeID)
	b.mu.Unlock()

	untyped, sub := notifier.Subscribe()
	ch := make(chan *block.Block, 1)
	ch <- current
	go func() {
		for v := range untyped {
			ch <- v.(*block.Block)
		}
		close(ch)
	}()
	return ch, sub, nil
}

// WatchEvents implements api.Backend.
func (b *MemoryBackend) WatchEvents(runtimeID common.Namespace) (<-chan *api.Event, *pubsub.Subscription, error) {
	b.mu.Lock()
	notifier := b.eventNotifierLocked(runtimeID)
	b.mu.Unlock()

	untyped, sub := notifier.Subscribe()
	ch := make(chan *api.Event)
	go func() {
		for v := range untyped {
			ch <- v.(*api.Event)
		}
		close(ch)
	}()
	return ch, sub, nil
}

// Commit implements api.Backend.
func (b *MemoryBackend) Commit(ctx context.Context, runtimeID common.Namespace, commit *api.Commitment) error {
	if !commit.Verify() {
		return api.ErrInvalidArgument
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	parent := b.genesisLocked(runtimeID)

	if round, ok := b.skipUntilRound[runtimeID]; ok && commit.Header.Round < round {
		return nil
	}

	if b.injectDiscrepancy[runtimeID] {
		delete(b.injectDiscrepancy, runtimeID)
		ev := &api.Event{DiscrepancyDetected: &api.DiscrepancyDetectedEvent{
			BlockHeader: parent.Header,
		}}
		if commit.Header.IORoot != nil {
			ev.DiscrepancyDetected.IORoot = *commit.Header.IORoot
		}
		b.eventNotifierLocked(runtimeID).Broadcast(ev)
		return api.ErrDiscrepancyDetected
	}

	next := &block.Block{Header: block.Header{
		Version:      parent.Header.Version,
		Namespace:    runtimeID,
		Round:        commit.Header.Round,
		Timestamp:    uint64(commit.Header.Round),
		HeaderType:   block.Normal,
		PreviousHash: commit.Header.PreviousHash,
	}}
	if commit.Header.IORoot != nil {
		next.Header.IORoot = *commit.Header.IORoot
	}
	if commit.Header.StateRoot != nil {
		next.Header.StateRoot = *commit.Header.StateRoot
	}
	if commit.Header.MessagesHash != nil {
		next.Header.MessagesHash = *commit.Header.MessagesHash
	}

	if b.failAfterCommit[runtimeID] {
		delete(b.failAfterCommit, runtimeID)
		return nil
	}

	b.blocks[runtimeID] = append(b.blocks[runtimeID], next)
	b.notifierLocked(runtimeID).Broadcast(next)
	return nil
}

// Cleanup implements api.Backend.
func (b *MemoryBackend) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, n := range b.notifiers {
		n.Close()
	}
	for _, n := range b.events {
		n.Close()
	}
}

// InjectDiscrepancy implements api.TestableBackend.
func (b *MemoryBackend) InjectDiscrepancy(runtimeID common.Namespace) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.injectDiscrepancy[runtimeID] = true
}

// FailAfterCommit implements api.TestableBackend.
func (b *MemoryBackend) FailAfterCommit(runtimeID common.Namespace) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failAfterCommit[runtimeID] = true
}

// SkipCommitUntilRound implements api.TestableBackend.
func (b *MemoryBackend) SkipCommitUntilRound(runtimeID common.Namespace, round uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.skipUntilRound[runtimeID] = round
}

var _ api.TestableBackend = (*MemoryBackend)(nil)

// RootHashImplementationTests exercises the basic commit flow of a
// roothash backend: genesis block visibility, a successful commit
// advancing the chain, and the InjectDiscrepancy and SkipCommitUntilRound
// fault injectors. FailAfterCommit is not exercised.
func RootHashImplementationTests(t *testing.T, backend api.TestableBackend, rak signature.Signer, runtimeID common.Namespace) {
	testGenesisBlock(t, backend, runtimeID)
	testSuccessfulCommit(t, backend, rak, runtimeID)
	testDiscrepancyDetected(t, backend, rak, runtimeID)
	testSkipCommitUntilRound(t, backend, rak, runtimeID)
}

func testGenesisBlock(t *testing.T, backend api.Backend, runtimeID common.Namespace) {
	require := require.New(t)

	blk, err := backend.GetLatestBlock(context.Background(), runtimeID)
	require.NoError(err, "GetLatestBlock")
	require.EqualValues(0, blk.Header.Round, "genesis block round")

	fetched, err := backend.GetBlock(context.Background(), runtimeID, 0)
	require.NoError(err, "GetBlock")
	require.EqualValues(blk, fetched, "GetBlock returns the genesis block")
}

func testSuccessfulCommit(t *testing.T, backend api.Backend, rak signature.Signer, runtimeID common.Namespace) {
	require := require.New(t)

	parent, err := backend.GetLatestBlock(context.Background(), runtimeID)
	require.NoError(err, "GetLatestBlock")

	ch, sub, err := backend.WatchBlocks(runtimeID)
	require.NoError(err, "WatchBlocks")
	defer sub.Close()

	<-ch // discard the replayed current block

	commit := &api.Commitment{Header: commitment.ComputeResultsHeader{
		Round:        parent.Header.Round + 1,
		PreviousHash: parent.Header.EncodedHash(),
	}}
	require.NoError(commit.Sign(rak), "Sign")

	require.NoError(backend.Commit(context.Background(), runtimeID, commit), "Commit")

	select {
	case blk := <-ch:
		require.EqualValues(parent.Header.Round+1, blk.Header.Round, "committed round")
	case <-time.After(recvTimeout):
		t.Fatal("timed out waiting for committed block")
	}
}

func testDiscrepancyDetected(t *testing.T, backend api.TestableBackend, rak signature.Signer, runtimeID common.Namespace) {
	require := require.New(t)

	parent, err := backend.GetLatestBlock(context.Background(), runtimeID)
	require.NoError(err, "GetLatestBlock")

	evCh, sub, err := backend.WatchEvents(runtimeID)
	require.NoError(err, "WatchEvents")
	defer sub.Close()

	backend.InjectDiscrepancy(runtimeID)

	commit := &api.Commitment{Header: commitment.ComputeResultsHeader{
		Round:        parent.Header.Round + 1,
		PreviousHash: parent.Header.EncodedHash(),
	}}
	require.NoError(commit.Sign(rak), "Sign")

	err = backend.Commit(context.Background(), runtimeID, commit)
	require.Equal(api.ErrDiscrepancyDetected, err, "Commit surfaces the injected discrepancy")

	select {
	case ev := <-evCh:
		require.NotNil(ev.DiscrepancyDetected, "discrepancy event populated")
	case <-time.After(recvTimeout):
		t.Fatal("timed out waiting for discrepancy event")
	}
}

func testSkipCommitUntilRound(t *testing.T, backend api.TestableBackend, rak signature.Signer, runtimeID common.Namespace) {
	require := require.New(t)

	before, err := backend.GetLatestBlock(context.Background(), runtimeID)
	require.NoError(err, "GetLatestBlock")

	backend.SkipCommitUntilRound(runtimeID, before.Header.Round+2)

	commit := &api.Commitment{Header: commitment.ComputeResultsHeader{
		Round:        before.Header.Round + 1,
		PreviousHash: before.Header.EncodedHash(),
	}}
	require.NoError(commit.Sign(rak), "Sign")
	require.NoError(backend.Commit(context.Background(), runtimeID, commit), "Commit below the skip round is accepted but ignored")

	after, err := backend.GetLatestBlock(context.Background(), runtimeID)
	require.NoError(err, "GetLatestBlock")
	require.EqualValues(before.Header.Round, after.Header.Round, "chain did not advance")
}
