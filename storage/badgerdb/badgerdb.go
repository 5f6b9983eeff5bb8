// Package badgerdb implements the durable content-addressed storage
// backend on top of dgraph-io/badger, with values compressed using
// snappy before they hit disk.
package badgerdb

import (
	"context"

	"github.com/dgraph-io/badger/v2"
	"github.com/golang/snappy"

	"github.com/oasislabs/enclaved-compute/common/crypto/hash"
	"github.com/oasislabs/enclaved-compute/common/logging"
	api "github.com/oasislabs/enclaved-compute/storage/api"
)

var logger = logging.GetLogger("storage/badgerdb")

// Backend is a durable api.Backend backed by a badger key-value store.
// Keys are the raw 32-byte content hash; values are snappy-compressed
// before insertion and decompressed on read.
type Backend struct {
	db *badger.DB
}

// New opens (creating if necessary) a badger database at path.
func New(path string) (*Backend, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // badger's own logger is noisy at Info; this package logs via common/logging instead
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Backend{db: db}, nil
}

// Get implements api.Backend.
func (b *Backend) Get(ctx context.Context, key hash.Hash) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key[:])
		switch err {
		case nil:
		case badger.ErrKeyNotFound:
			return api.ErrNotFound
		default:
			return err
		}
		return item.Value(func(compressed []byte) error {
			decoded, derr := snappy.Decode(nil, compressed)
			if derr != nil {
				return derr
			}
			value = append([]byte{}, decoded...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// GetBatch implements api.Backend.
func (b *Backend) GetBatch(ctx context.Context, keys []hash.Hash) ([][]byte, error) {
	out := make([][]byte, len(keys))
	err := b.db.View(func(txn *badger.Txn) error {
		for i, key := range keys {
			item, err := txn.Get(key[:])
			switch err {
			case nil:
			case badger.ErrKeyNotFound:
				continue
			default:
				return err
			}
			if err := item.Value(func(compressed []byte) error {
				decoded, derr := snappy.Decode(nil, compressed)
				if derr != nil {
					return derr
				}
				out[i] = append([]byte{}, decoded...)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InsertBatch implements api.Backend. Re-inserting an already-present
// key overwrites it with an identical value (keys are value-derived),
// making repeated commits of the same batch idempotent.
func (b *Backend) InsertBatch(ctx context.Context, values []api.Value) error {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for _, v := range values {
		// ExpiryEpoch governs consensus-layer garbage collection, which
		// runs outside this backend; badger holds every inserted value
		// until an explicit Prune, not implemented here.
		key := api.HashValue(v.Data)
		compressed := snappy.Encode(nil, v.Data)
		if err := wb.Set(key[:], compressed); err != nil {
			return err
		}
	}

	if err := wb.Flush(); err != nil {
		logger.Error("failed to flush storage batch", "err", err)
		return err
	}
	return nil
}

// Close implements api.Backend.
func (b *Backend) Close() {
	if err := b.db.Close(); err != nil {
		logger.Error("error while closing badger database", "err", err)
	}
}
