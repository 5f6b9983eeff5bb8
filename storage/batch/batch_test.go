package batch

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oasislabs/enclaved-compute/common/crypto/hash"
	api "github.com/oasislabs/enclaved-compute/storage/api"
)

// memBackend is an in-memory api.Backend stand-in for tests.
type memBackend struct {
	mu     sync.Mutex
	values map[hash.Hash][]byte
	inserts int
}

func newMemBackend() *memBackend {
	return &memBackend{values: make(map[hash.Hash][]byte)}
}

func (b *memBackend) Get(ctx context.Context, key hash.Hash) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.values[key]
	if !ok {
		return nil, api.ErrNotFound
	}
	return v, nil
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

func (b *memBackend) InsertBatch(ctx context.Context, values []api.Value) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, v := range values {
		b.values[api.HashValue(v.Data)] = v.Data
		b.inserts++
	}
	return nil
}

func (b *memBackend) Close() {}

func TestBatchStorageGetPrefersBuffer(t *testing.T) {
	backend := newMemBackend()
	s := New(backend)

	key := s.Insert([]byte("hello"), 10)

	v, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), v)

	_, err = backend.Get(context.Background(), key)
	require.Equal(t, api.ErrNotFound, err, "uncommitted insert must not reach the backend")
}

func TestBatchStorageCommit(t *testing.T) {
	backend := newMemBackend()
	s := New(backend)
	key := s.Insert([]byte("hello"), 10)

	require.NoError(t, s.Commit(context.Background(), false))
	require.True(t, s.Durable())

	v, err := backend.Get(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), v)
}

func TestBatchStorageLocalOnlyCommit(t *testing.T) {
	backend := newMemBackend()
	s := New(backend)
	key := s.Insert([]byte("hello"), 10)

	require.NoError(t, s.Commit(context.Background(), true))
	require.False(t, s.Durable())

	_, err := backend.Get(context.Background(), key)
	require.Equal(t, api.ErrNotFound, err, "local-only commit must not reach the backend")

	v, err := s.Get(context.Background(), key)
	require.NoError(t, err, "local-only commit must still be readable from the buffer")
	require.Equal(t, []byte("hello"), v)
}

func TestBatchStorageIdempotentCommit(t *testing.T) {
	backend := newMemBackend()
	s := New(backend)
	s.Insert([]byte("hello"), 10)

	require.NoError(t, s.Commit(context.Background(), false))
	require.NoError(t, s.Commit(context.Background(), false))
	require.Equal(t, 1, len(backend.values), "re-committing must not duplicate the value")
}
