// Package batch implements the buffering insert layer a single batch
// execution uses to stage writes before they are committed to the
// durable storage backend.
package batch

import (
	"context"
	"sync"

	"github.com/oasislabs/enclaved-compute/common/crypto/hash"
	api "github.com/oasislabs/enclaved-compute/storage/api"
)

// Storage buffers writes produced by one batch execution and commits
// them to a backend atomically. A Storage instance is scoped to a
// single batch: it is discarded after commit, successful or not.
type Storage struct {
	mu      sync.Mutex
	backend api.Backend
	buffer  map[hash.Hash]api.Value
	durable bool
}

// New creates a Storage wrapping backend. backend is only consulted on
// Get for keys not present in the local buffer, and on Commit.
func New(backend api.Backend) *Storage {
	return &Storage{
		backend: backend,
		buffer:  make(map[hash.Hash]api.Value),
	}
}

// Insert buffers value, keyed by api.HashValue(value), with the given
// expiry epoch. It does not touch the backend.
func (s *Storage) Insert(value []byte, expiryEpoch uint64) hash.Hash {
	key := api.HashValue(value)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer[key] = api.Value{Data: value, ExpiryEpoch: expiryEpoch}
	return key
}

// Get returns the value stored under key, checking the local buffer
// before falling through to the backend.
func (s *Storage) Get(ctx context.Context, key hash.Hash) ([]byte, error) {
	s.mu.Lock()
	if v, ok := s.buffer[key]; ok {
		s.mu.Unlock()
		return v.Data, nil
	}
	s.mu.Unlock()

	return s.backend.Get(ctx, key)
}

// Commit writes every buffered value to the backend in one pass unless
// localOnly is set, in which case the buffer is kept but marked
// non-durable: a later discrepancy-resolution dry-run may still read
// from it via Get, but nothing has reached the backend. Committing the
// same buffer twice inserts every value again on the second call; this
// leaves the backend as one commit would, because keys are value-derived
// and the backend treats re-inserting an existing key as idempotent.
func (s *Storage) Commit(ctx context.Context, localOnly bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if localOnly {
		s.durable = false
		return nil
	}

	values := make([]api.Value, 0, len(s.buffer))
	for _, v := range s.buffer {
		values = append(values, v)
	}
	if err := s.backend.InsertBatch(ctx, values); err != nil {
		return err
	}
	s.durable = true
	return nil
}

// Durable reports whether the last Commit call wrote through to the
// backend rather than staying local-only.
func (s *Storage) Durable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.durable
}

// Values returns every value currently buffered, in no particular
// order. Callers use this after a batch finishes executing to report
// what it wrote, independent of whether Commit has run yet.
func (s *Storage) Values() []api.Value {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := make([]api.Value, 0, len(s.buffer))
	for _, v := range s.buffer {
		values = append(values, v)
	}
	return values
}

// Size returns the number of distinct values currently buffered.
func (s *Storage) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}
