package badgerdb

import (
	"context"
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oasislabs/enclaved-compute/common/crypto/hash"
	api "github.com/oasislabs/enclaved-compute/storage/api"
)

func newTestBackend(t *testing.T) (*Backend, func()) {
	dir, err := ioutil.TempDir("", "badgerdb-test")
	require.NoError(t, err)

	b, err := New(dir)
	require.NoError(t, err)

	return b, func() {
		b.Close()
		_ = os.RemoveAll(dir)
	}
}

func TestInsertAndGet(t *testing.T) {
	b, cleanup := newTestBackend(t)
	defer cleanup()

	ctx := context.Background()
	value := []byte("a payload worth compressing")

	require.NoError(t, b.InsertBatch(ctx, []api.Value{{Data: value, ExpiryEpoch: 42}}))

	key := api.HashValue(value)
	got, err := b.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, value, got)
}

func TestGetMissingKey(t *testing.T) {
	b, cleanup := newTestBackend(t)
	defer cleanup()

	_, err := b.Get(context.Background(), hash.Empty())
	require.Equal(t, api.ErrNotFound, err)
}

func TestGetBatch(t *testing.T) {
	b, cleanup := newTestBackend(t)
	defer cleanup()

	ctx := context.Background()
	v1, v2 := []byte("one"), []byte("two")
	require.NoError(t, b.InsertBatch(ctx, []api.Value{{Data: v1}, {Data: v2}}))

	got, err := b.GetBatch(ctx, []hash.Hash{api.HashValue(v1), hash.Empty(), api.HashValue(v2)})
	require.NoError(t, err)
	require.Equal(t, v1, got[0])
	require.Nil(t, got[1])
	require.Equal(t, v2, got[2])
}

func TestInsertBatchIsIdempotent(t *testing.T) {
	b, cleanup := newTestBackend(t)
	defer cleanup()

	ctx := context.Background()
	value := []byte("repeat me")

	require.NoError(t, b.InsertBatch(ctx, []api.Value{{Data: value}}))
	require.NoError(t, b.InsertBatch(ctx, []api.Value{{Data: value}}))

	got, err := b.Get(ctx, api.HashValue(value))
	require.NoError(t, err)
	require.Equal(t, value, got)
}
