// Package dispatcher routes decoded worker-host protocol requests to
// the RAK attestation handlers, the RPC forwarder, and the batch
// executor. It implements protocol.Handler; the mux itself answers
// WorkerInfoRequest/WorkerPingRequest/WorkerShutdownRequest and
// enforces the attestation gate before a request ever reaches here.
package dispatcher

import (
	"context"

	"github.com/oasislabs/enclaved-compute/common/crypto/signature"
	"github.com/oasislabs/enclaved-compute/common/logging"
	"github.com/oasislabs/enclaved-compute/roothash/api/block"
	"github.com/oasislabs/enclaved-compute/runtime/host/protocol"
)

// RAK manages the enclave's Runtime Attestation Key lifecycle.
type RAK interface {
	// Init generates a fresh RAK bound to targetInfo and returns the
	// SGX report ready to be forwarded to IAS.
	Init(ctx context.Context, targetInfo []byte) (report []byte, err error)

	// Report returns the current RAK's public key, SGX report, and
	// report nonce.
	Report(ctx context.Context) (pub signature.PublicKey, report []byte, nonce string, err error)

	// BindAVR binds an IAS Attestation Verification Report to the
	// current RAK, after which runtime requests are accepted.
	BindAVR(ctx context.Context, avr []byte) error
}

// Executor runs call batches against a parent block.
type Executor interface {
	// CheckBatch validates calls without committing any state changes.
	CheckBatch(ctx context.Context, calls [][]byte, blk block.Block) (results [][]byte, err error)

	// ExecuteBatch runs calls against blk and returns the resulting
	// ComputedBatch. commitStorage controls whether writes propagate to
	// the durable backend or remain local to the batch.
	ExecuteBatch(ctx context.Context, calls [][]byte, blk block.Block, commitStorage bool) (protocol.ComputedBatch, error)
}

// RPCForwarder services opaque RPC calls forwarded from the host, such
// as key-manager requests.
type RPCForwarder interface {
	Call(ctx context.Context, request []byte) (response []byte, err error)
	LocalCall(ctx context.Context, request []byte) (response []byte, err error)
}

// Dispatcher implements protocol.Handler by routing each runtime
// request kind to its owning collaborator.
type Dispatcher struct {
	rak      RAK
	executor Executor
	rpc      RPCForwarder

	logger *logging.Logger
}

// New creates a Dispatcher. Any collaborator may be nil if the worker
// does not support the requests it would serve; such requests are
// answered with protocol.ErrMethodNotSupported.
func New(rak RAK, executor Executor, rpc RPCForwarder) *Dispatcher {
	return &Dispatcher{
		rak:      rak,
		executor: executor,
		rpc:      rpc,
		logger:   logging.GetLogger("runtime/host/dispatcher"),
	}
}

// Handle implements protocol.Handler.
func (d *Dispatcher) Handle(ctx context.Context, body *protocol.Body) (*protocol.Body, error) {
	switch {
	case body.WorkerAbortRequest != nil:
		return &protocol.Body{WorkerAbortResponse: &protocol.WorkerAbortResponse{}}, nil

	case body.WorkerCapabilityTEERakInitRequest != nil:
		return d.handleRakInit(ctx, body.WorkerCapabilityTEERakInitRequest)

	case body.WorkerCapabilityTEERakReportRequest != nil:
		return d.handleRakReport(ctx)

	case body.WorkerCapabilityTEERakAvrRequest != nil:
		return d.handleRakAvr(ctx, body.WorkerCapabilityTEERakAvrRequest)

	case body.WorkerRPCCallRequest != nil:
		return d.handleRPCCall(ctx, body.WorkerRPCCallRequest)

	case body.WorkerLocalRPCCallRequest != nil:
		return d.handleLocalRPCCall(ctx, body.WorkerLocalRPCCallRequest)

	case body.WorkerCheckTxBatchRequest != nil:
		return d.handleCheckTxBatch(ctx, body.WorkerCheckTxBatchRequest)

	case body.WorkerExecuteTxBatchRequest != nil:
		return d.handleExecuteTxBatch(ctx, body.WorkerExecuteTxBatchRequest)

	case body.WorkerRuntimeCallBatchRequest != nil:
		return d.handleRuntimeCallBatch(ctx, body.WorkerRuntimeCallBatchRequest)

	default:
		return nil, protocol.ErrMethodNotSupported
	}
}

func (d *Dispatcher) handleRakInit(ctx context.Context, req *protocol.WorkerCapabilityTEERakInitRequest) (*protocol.Body, error) {
	if d.rak == nil {
		return nil, protocol.ErrMethodNotSupported
	}
	report, err := d.rak.Init(ctx, req.TargetInfo)
	if err != nil {
		return nil, err
	}
	return &protocol.Body{WorkerCapabilityTEERakInitResponse: &protocol.WorkerCapabilityTEERakInitResponse{Report: report}}, nil
}

func (d *Dispatcher) handleRakReport(ctx context.Context) (*protocol.Body, error) {
	if d.rak == nil {
		return nil, protocol.ErrMethodNotSupported
	}
	pub, report, nonce, err := d.rak.Report(ctx)
	if err != nil {
		return nil, err
	}
	return &protocol.Body{WorkerCapabilityTEERakReportResponse: &protocol.WorkerCapabilityTEERakReportResponse{
		RakPub: pub,
		Report: report,
		Nonce:  nonce,
	}}, nil
}

func (d *Dispatcher) handleRakAvr(ctx context.Context, req *protocol.WorkerCapabilityTEERakAvrRequest) (*protocol.Body, error) {
	if d.rak == nil {
		return nil, protocol.ErrMethodNotSupported
	}
	if err := d.rak.BindAVR(ctx, req.AVR); err != nil {
		return nil, err
	}
	return &protocol.Body{WorkerCapabilityTEERakAvrResponse: &protocol.WorkerCapabilityTEERakAvrResponse{}}, nil
}

func (d *Dispatcher) handleRPCCall(ctx context.Context, req *protocol.WorkerRPCCallRequest) (*protocol.Body, error) {
	if d.rpc == nil {
		return nil, protocol.ErrMethodNotSupported
	}
	resp, err := d.rpc.Call(ctx, req.Request)
	if err != nil {
		return nil, err
	}
	return &protocol.Body{WorkerRPCCallResponse: &protocol.WorkerRPCCallResponse{Response: resp}}, nil
}

func (d *Dispatcher) handleLocalRPCCall(ctx context.Context, req *protocol.WorkerLocalRPCCallRequest) (*protocol.Body, error) {
	if d.rpc == nil {
		return nil, protocol.ErrMethodNotSupported
	}
	resp, err := d.rpc.LocalCall(ctx, req.Request)
	if err != nil {
		return nil, err
	}
	return &protocol.Body{WorkerLocalRPCCallResponse: &protocol.WorkerLocalRPCCallResponse{Response: resp}}, nil
}

func (d *Dispatcher) handleCheckTxBatch(ctx context.Context, req *protocol.WorkerCheckTxBatchRequest) (*protocol.Body, error) {
	if d.executor == nil {
		return nil, protocol.ErrMethodNotSupported
	}
	results, err := d.executor.CheckBatch(ctx, req.Calls, req.Block)
	if err != nil {
		return nil, err
	}
	return &protocol.Body{WorkerCheckTxBatchResponse: &protocol.WorkerCheckTxBatchResponse{Results: results}}, nil
}

func (d *Dispatcher) handleExecuteTxBatch(ctx context.Context, req *protocol.WorkerExecuteTxBatchRequest) (*protocol.Body, error) {
	if d.executor == nil {
		return nil, protocol.ErrMethodNotSupported
	}
	batch, err := d.executor.ExecuteBatch(ctx, req.Calls, req.Block, req.CommitStorage)
	if err != nil {
		d.logger.Error("batch execution failed", "err", err)
		return nil, err
	}
	return &protocol.Body{WorkerExecuteTxBatchResponse: &protocol.WorkerExecuteTxBatchResponse{Batch: batch}}, nil
}

func (d *Dispatcher) handleRuntimeCallBatch(ctx context.Context, req *protocol.WorkerRuntimeCallBatchRequest) (*protocol.Body, error) {
	if d.executor == nil {
		return nil, protocol.ErrMethodNotSupported
	}
	// WorkerRuntimeCallBatchRequest has no commit_storage field of its
	// own; writes always commit, unlike WorkerExecuteTxBatchRequest.
	batch, err := d.executor.ExecuteBatch(ctx, req.Calls, req.Block, true)
	if err != nil {
		d.logger.Error("batch execution failed", "err", err)
		return nil, err
	}
	return &protocol.Body{WorkerRuntimeCallBatchResponse: &protocol.WorkerRuntimeCallBatchResponse{Batch: batch}}, nil
}
