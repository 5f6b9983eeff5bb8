// Package executor implements the batch executor: a single-threaded
// worker that runs call batches against a pinned parent block and
// produces a ComputedBatch, consuming requests FIFO from an unbounded
// command queue so a caller submitting a batch never blocks on a
// previous one still running.
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/eapache/channels"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/oasislabs/enclaved-compute/common"
	"github.com/oasislabs/enclaved-compute/common/crypto/hash"
	"github.com/oasislabs/enclaved-compute/common/errors"
	"github.com/oasislabs/enclaved-compute/common/logging"
	"github.com/oasislabs/enclaved-compute/roothash/api/block"
	"github.com/oasislabs/enclaved-compute/runtime/host/protocol"
	storage "github.com/oasislabs/enclaved-compute/storage/api"
	"github.com/oasislabs/enclaved-compute/storage/batch"
)

// ModuleName is the module name used for error registration.
const ModuleName = "worker/compute/executor"

// ErrRuntimeAborted is returned when the runtime reports a batch-wide
// failure rather than encoding per-call errors into its outputs.
var ErrRuntimeAborted = errors.New(ModuleName, 1, "executor: runtime aborted batch processing")

// Runtime is the in-enclave contract call dispatcher. It is the only
// collaborator an Executor cannot provide a production implementation
// of in pure Go: a real one drives calls into SGX over a CGO boundary,
// which is why this stays an interface rather than a concrete type.
type Runtime interface {
	// CallBatch executes calls against header, with storage pinned to
	// header.StateRoot for reads and staging writes into storage. A
	// returned error means the whole batch failed to run (ErrRuntimeAborted
	// territory); per-call failures belong in outputs, not err.
	CallBatch(ctx context.Context, calls [][]byte, header block.Header, storage *batch.Storage) (outputs [][]byte, newStateRoot hash.Hash, err error)
}

type command struct {
	calls         [][]byte
	blk           block.Block
	commitStorage bool
	checkOnly     bool
	resultCh      chan result
}

type result struct {
	outputs      [][]byte
	inserts      []protocol.StorageInsert
	newStateRoot hash.Hash
	err          error
}

// Executor runs call batches one at a time against a shared durable
// storage backend, implementing runtime/host/dispatcher.Executor.
type Executor struct {
	runtimeID common.Namespace
	runtime   Runtime
	backend   storage.Backend

	commands *channels.InfiniteChannel
	doneCh   chan struct{}
	closeOnce sync.Once

	logger *logging.Logger
}

// New creates an Executor and starts its worker goroutine. Close stops
// it and waits for any in-flight batch to finish.
func New(runtimeID common.Namespace, runtime Runtime, backend storage.Backend) *Executor {
	registerMetricsOnce()

	e := &Executor{
		runtimeID: runtimeID,
		runtime:   runtime,
		backend:   backend,
		commands:  channels.NewInfiniteChannel(),
		doneCh:    make(chan struct{}),
		logger:    logging.GetLogger("worker/compute/executor"),
	}
	go e.work()
	return e
}

// Close stops accepting new commands and waits for the worker to drain
// and exit. Any command already queued still runs before the worker
// returns.
func (e *Executor) Close() {
	e.closeOnce.Do(func() {
		e.commands.Close()
	})
	<-e.doneCh
}

func (e *Executor) work() {
	defer close(e.doneCh)

	for v := range e.commands.Out() {
		cmd := v.(*command)
		e.process(cmd)
	}
}

func (e *Executor) submit(ctx context.Context, cmd *command) (result, error) {
	cmd.resultCh = make(chan result, 1)
	e.commands.In() <- cmd

	select {
	case res := <-cmd.resultCh:
		return res, nil
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}

// CheckBatch implements dispatcher.Executor. It runs calls against blk
// without committing any storage writes, local or durable.
func (e *Executor) CheckBatch(ctx context.Context, calls [][]byte, blk block.Block) ([][]byte, error) {
	res, err := e.submit(ctx, &command{calls: calls, blk: blk, checkOnly: true})
	if err != nil {
		return nil, err
	}
	return res.outputs, res.err
}

// ExecuteBatch implements dispatcher.Executor.
func (e *Executor) ExecuteBatch(ctx context.Context, calls [][]byte, blk block.Block, commitStorage bool) (protocol.ComputedBatch, error) {
	res, err := e.submit(ctx, &command{calls: calls, blk: blk, commitStorage: commitStorage})
	if err != nil {
		return protocol.ComputedBatch{}, err
	}
	if res.err != nil {
		return protocol.ComputedBatch{}, res.err
	}
	return protocol.ComputedBatch{
		Block:          blk,
		Calls:          calls,
		Outputs:        res.outputs,
		StorageInserts: res.inserts,
		NewStateRoot:   res.newStateRoot,
	}, res.err
}

func (e *Executor) process(cmd *command) {
	labels := e.metricLabels()
	batchSize.With(labels).Observe(float64(len(cmd.calls)))

	ctx := context.Background()
	bs := batch.New(e.backend)

	enclaveStart := time.Now()
	outputs, newStateRoot, err := e.runtime.CallBatch(ctx, cmd.calls, cmd.blk.Header, bs)
	batchRuntimeProcessingTime.With(labels).Observe(time.Since(enclaveStart).Seconds())

	if err != nil {
		abortedBatchCount.With(labels).Inc()
		cmd.resultCh <- result{err: err}
		return
	}

	if cmd.checkOnly {
		cmd.resultCh <- result{outputs: outputs}
		return
	}

	storageInsertCount.With(labels).Observe(float64(bs.Size()))

	commitStart := time.Now()
	if err := bs.Commit(ctx, !cmd.commitStorage); err != nil {
		cmd.resultCh <- result{err: err}
		return
	}
	storageCommitLatency.With(labels).Observe(time.Since(commitStart).Seconds())

	values := bs.Values()
	inserts := make([]protocol.StorageInsert, 0, len(values))
	for _, v := range values {
		inserts = append(inserts, protocol.StorageInsert{Value: v.Data, ExpiryEpoch: v.ExpiryEpoch})
	}

	batchProcessed.With(labels).Inc()
	cmd.resultCh <- result{
		outputs:      outputs,
		inserts:      inserts,
		newStateRoot: newStateRoot,
	}
}

func (e *Executor) metricLabels() prometheus.Labels {
	return prometheus.Labels{"runtime": e.runtimeID.String()}
}
