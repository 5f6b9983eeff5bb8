// Package api defines the content-addressed storage backend contract
// used by the batch insert layer and its durable implementations.
package api

import (
	"context"

	"github.com/oasislabs/enclaved-compute/common/crypto/hash"
	"github.com/oasislabs/enclaved-compute/common/errors"
)

// ModuleName is the module name used for this package's coded errors.
const ModuleName = "storage"

var (
	// ErrNotFound is returned when a value is not present under a key.
	ErrNotFound = errors.New(ModuleName, 1, "storage: key not found")
)

// Value is a single content-addressed value with its expiry epoch.
type Value struct {
	Data        []byte
	ExpiryEpoch uint64
}

// HashValue computes the SHA-512/256 digest that keys a value. The
// digest algorithm is fixed for every backend: backends must never
// choose their own.
func HashValue(value []byte) hash.Hash {
	return hash.DigestBytes(value)
}

// Backend is a content-addressed storage backend. Values are keyed by
// HashValue(data); inserting the same value twice is a no-op.
type Backend interface {
	// Get retrieves the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key hash.Hash) ([]byte, error)

	// GetBatch retrieves the values stored under keys, in request
	// order. An absent key yields a nil entry rather than an error.
	GetBatch(ctx context.Context, keys []hash.Hash) ([][]byte, error)

	// InsertBatch durably stores a batch of values in a single pass.
	InsertBatch(ctx context.Context, values []Value) error

	// Close releases any resources held by the backend.
	Close()
}
