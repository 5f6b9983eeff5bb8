package executor

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oasislabs/enclaved-compute/common"
	"github.com/oasislabs/enclaved-compute/common/crypto/hash"
	"github.com/oasislabs/enclaved-compute/roothash/api/block"
	storage "github.com/oasislabs/enclaved-compute/storage/api"
	"github.com/oasislabs/enclaved-compute/storage/batch"
)

type memBackend struct {
	mu     sync.Mutex
	values map[hash.Hash]storage.Value
}

func newMemBackend() *memBackend {
	return &memBackend{values: make(map[hash.Hash]storage.Value)}
}

func (b *memBackend) Get(ctx context.Context, key hash.Hash) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.values[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return v.Data, nil
}

func (b *memBackend) GetBatch(ctx context.Context, keys []hash.Hash) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		if v, err := b.Get(ctx, k); err == nil {
			out[i] = v
		}
	}
	return out, nil
}

func (b *memBackend) InsertBatch(ctx context.Context, values []storage.Value) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, v := range values {
		b.values[storage.HashValue(v.Data)] = v
	}
	return nil
}

func (b *memBackend) Close() {}

func (b *memBackend) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.values)
}

// echoRuntime inserts one storage value per call and echoes the call
// bytes as the output, reporting a fixed new state root.
type echoRuntime struct {
	failWith     error
	newStateRoot hash.Hash
}

func (r *echoRuntime) CallBatch(ctx context.Context, calls [][]byte, header block.Header, st *batch.Storage) ([][]byte, hash.Hash, error) {
	if r.failWith != nil {
		return nil, hash.Hash{}, r.failWith
	}
	outputs := make([][]byte, len(calls))
	for i, c := range calls {
		st.Insert(c, 0)
		outputs[i] = c
	}
	return outputs, r.newStateRoot, nil
}

func testBlock() block.Block {
	var blk block.Block
	blk.Header.Round = 1
	blk.Header.HeaderType = block.Normal
	return blk
}

func TestExecuteBatchCommitsToBackend(t *testing.T) {
	backend := newMemBackend()
	var runtimeID common.Namespace
	var newRoot hash.Hash
	newRoot[0] = 0xAB

	e := New(runtimeID, &echoRuntime{newStateRoot: newRoot}, backend)
	defer e.Close()

	calls := [][]byte{[]byte("call-one"), []byte("call-two")}
	computed, err := e.ExecuteBatch(context.Background(), calls, testBlock(), true)
	require.NoError(t, err)
	require.Equal(t, calls, computed.Outputs)
	require.Equal(t, newRoot, computed.NewStateRoot)
	require.Len(t, computed.StorageInserts, 2)
	require.Equal(t, 2, backend.size(), "durable commit must reach the backend")
}

func TestExecuteBatchLocalOnlyDoesNotReachBackend(t *testing.T) {
	backend := newMemBackend()
	var runtimeID common.Namespace

	e := New(runtimeID, &echoRuntime{}, backend)
	defer e.Close()

	_, err := e.ExecuteBatch(context.Background(), [][]byte{[]byte("x")}, testBlock(), false)
	require.NoError(t, err)
	require.Equal(t, 0, backend.size(), "local-only commit must not reach the backend")
}

func TestCheckBatchNeverCommits(t *testing.T) {
	backend := newMemBackend()
	var runtimeID common.Namespace

	e := New(runtimeID, &echoRuntime{}, backend)
	defer e.Close()

	results, err := e.CheckBatch(context.Background(), [][]byte{[]byte("probe")}, testBlock())
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("probe")}, results)
	require.Equal(t, 0, backend.size())
}

func TestExecuteBatchPropagatesRuntimeError(t *testing.T) {
	backend := newMemBackend()
	var runtimeID common.Namespace

	e := New(runtimeID, &echoRuntime{failWith: ErrRuntimeAborted}, backend)
	defer e.Close()

	_, err := e.ExecuteBatch(context.Background(), [][]byte{[]byte("x")}, testBlock(), true)
	require.Equal(t, ErrRuntimeAborted, err)
}

func TestExecutorProcessesEveryQueuedCommand(t *testing.T) {
	backend := newMemBackend()
	var runtimeID common.Namespace

	e := New(runtimeID, &echoRuntime{}, backend)
	defer e.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := e.ExecuteBatch(context.Background(), [][]byte{[]byte{byte(n)}}, testBlock(), true)
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()
	require.Equal(t, 10, backend.size())
}
