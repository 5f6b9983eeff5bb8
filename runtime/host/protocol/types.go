package protocol

import (
	"github.com/oasislabs/enclaved-compute/common"
	"github.com/oasislabs/enclaved-compute/common/crypto/hash"
	"github.com/oasislabs/enclaved-compute/common/crypto/signature"
	"github.com/oasislabs/enclaved-compute/roothash/api/block"
)

// MessageType is the type of a framed message.
type MessageType uint8

const (
	// MessageInvalid is an invalid message type and must never be sent.
	MessageInvalid MessageType = 0
	// MessageRequest is a request message.
	MessageRequest MessageType = 1
	// MessageResponse is a response message.
	MessageResponse MessageType = 2
	// MessageKeepAlive is a keep-alive message carrying an empty body.
	MessageKeepAlive MessageType = 3
)

// Message is the envelope exchanged between the host and the enclave
// worker over a length-framed connection.
type Message struct {
	ID          uint64      `cbor:"id"`
	MessageType MessageType `cbor:"message_type"`
	Body        Body        `cbor:"body"`
	SpanContext []byte      `cbor:"span_context"`
}

// EmptyBody carries no data; it is the body of a successful response
// that has nothing to report, such as WorkerPingRequest's reply.
type EmptyBody struct{}

// Error is the body of a failed response.
type Error struct {
	Module  string `cbor:"module,omitempty"`
	Code    uint32 `cbor:"code,omitempty"`
	Message string `cbor:"message"`
}

// WorkerInfoRequest asks the worker to report its protocol and runtime
// version.
type WorkerInfoRequest struct {
	RuntimeID common.Namespace `cbor:"runtime_id"`
}

// WorkerInfoResponse carries the worker's protocol and runtime version.
type WorkerInfoResponse struct {
	ProtocolVersion uint64 `cbor:"protocol_version"`
	RuntimeVersion  uint64 `cbor:"runtime_version"`
}

// WorkerPingRequest is a liveness probe; the worker replies with Empty.
type WorkerPingRequest struct{}

// WorkerShutdownRequest asks the worker to terminate. Unsupported by
// this implementation; any receipt is answered with MethodNotSupported.
type WorkerShutdownRequest struct{}

// WorkerAbortRequest asks the worker to abort whatever it is currently
// doing and reset to a clean state.
type WorkerAbortRequest struct{}

// WorkerAbortResponse acknowledges a completed abort.
type WorkerAbortResponse struct{}

// WorkerCapabilityTEEGidRequest asks the enclave for its SGX group id.
type WorkerCapabilityTEEGidRequest struct{}

// WorkerCapabilityTEEGidResponse carries the enclave's SGX group id.
type WorkerCapabilityTEEGidResponse struct {
	Gid [4]byte `cbor:"gid"`
}

// WorkerCapabilityTEERakInitRequest asks the enclave to generate a
// fresh Runtime Attestation Key bound to the given target info.
type WorkerCapabilityTEERakInitRequest struct {
	TargetInfo []byte `cbor:"target_info"`
}

// WorkerCapabilityTEERakInitResponse carries the freshly generated RAK
// report, ready to be forwarded to IAS.
type WorkerCapabilityTEERakInitResponse struct {
	Report []byte `cbor:"report"`
}

// WorkerCapabilityTEERakReportRequest asks the enclave for its current
// RAK binding materials.
type WorkerCapabilityTEERakReportRequest struct{}

// WorkerCapabilityTEERakReportResponse carries the enclave's current
// RAK public key, SGX report, and report nonce.
type WorkerCapabilityTEERakReportResponse struct {
	RakPub signature.PublicKey `cbor:"rak_pub"`
	Report []byte              `cbor:"report"`
	Nonce  string              `cbor:"nonce"`
}

// WorkerCapabilityTEERakAvrRequest delivers an IAS Attestation
// Verification Report to bind to the current RAK.
type WorkerCapabilityTEERakAvrRequest struct {
	AVR []byte `cbor:"avr"`
}

// WorkerCapabilityTEERakAvrResponse acknowledges a bound AVR.
type WorkerCapabilityTEERakAvrResponse struct{}

// WorkerRPCCallRequest forwards an opaque RPC request to the enclave.
type WorkerRPCCallRequest struct {
	Request []byte `cbor:"request"`
}

// WorkerRPCCallResponse carries the enclave's opaque RPC response.
type WorkerRPCCallResponse struct {
	Response []byte `cbor:"response"`
}

// WorkerLocalRPCCallRequest forwards an opaque local (non-replicated)
// RPC request to the enclave.
type WorkerLocalRPCCallRequest struct {
	Request []byte `cbor:"request"`
}

// WorkerLocalRPCCallResponse carries the enclave's opaque local RPC
// response.
type WorkerLocalRPCCallResponse struct {
	Response []byte `cbor:"response"`
}

// WorkerCheckTxBatchRequest asks the enclave to validate a batch of
// transactions without committing any state changes.
type WorkerCheckTxBatchRequest struct {
	Calls [][]byte    `cbor:"calls"`
	Block block.Block `cbor:"block"`
}

// WorkerCheckTxBatchResponse carries the per-call validation outputs.
type WorkerCheckTxBatchResponse struct {
	Results [][]byte `cbor:"results"`
}

// WorkerExecuteTxBatchRequest asks the enclave to execute a batch of
// transactions against a parent block.
type WorkerExecuteTxBatchRequest struct {
	Calls         [][]byte    `cbor:"calls"`
	Block         block.Block `cbor:"block"`
	CommitStorage bool        `cbor:"commit_storage"`
}

// WorkerExecuteTxBatchResponse carries the executed batch's results.
type WorkerExecuteTxBatchResponse struct {
	Batch ComputedBatch `cbor:"batch"`
}

// WorkerRuntimeCallBatchRequest is the primary entry point: execute
// calls against the given parent block and produce a ComputedBatch.
type WorkerRuntimeCallBatchRequest struct {
	Calls [][]byte    `cbor:"calls"`
	Block block.Block `cbor:"block"`
}

// WorkerRuntimeCallBatchResponse carries the resulting ComputedBatch.
type WorkerRuntimeCallBatchResponse struct {
	Batch ComputedBatch `cbor:"batch"`
}

// StorageInsert is a single value inserted by a batch execution, keyed
// by the SHA-512/256 hash of its contents once committed.
type StorageInsert struct {
	Value       []byte `cbor:"value"`
	ExpiryEpoch uint64 `cbor:"expiry_epoch"`
}

// ComputedBatch is the result of executing a call batch against a
// parent block.
type ComputedBatch struct {
	Block          block.Block     `cbor:"block"`
	Calls          [][]byte        `cbor:"calls"`
	Outputs        [][]byte        `cbor:"outputs"`
	StorageInserts []StorageInsert `cbor:"storage_inserts"`
	NewStateRoot   hash.Hash       `cbor:"new_state_root"`
}

// HostRPCCallRequest is issued by the worker to forward an RPC call to
// a remote endpoint (e.g. the key manager) via the host.
type HostRPCCallRequest struct {
	Endpoint string `cbor:"endpoint"`
	Request  []byte `cbor:"request"`
}

// HostRPCCallResponse carries the forwarded call's opaque response.
type HostRPCCallResponse struct {
	Response []byte `cbor:"response"`
}

// HostIasGetSpidRequest asks the host for the IAS SPID to use.
type HostIasGetSpidRequest struct{}

// HostIasGetSpidResponse carries the 16-byte IAS SPID.
type HostIasGetSpidResponse struct {
	SPID [16]byte `cbor:"spid"`
}

// HostIasGetQuoteTypeRequest asks the host for the configured IAS quote type.
type HostIasGetQuoteTypeRequest struct{}

// HostIasGetQuoteTypeResponse carries the configured quote type.
type HostIasGetQuoteTypeResponse struct {
	QuoteType uint32 `cbor:"quote_type"`
}

// HostIasSigRlRequest asks the host to fetch the IAS signature
// revocation list for an EPID group.
type HostIasSigRlRequest struct {
	EpidGroupID [4]byte `cbor:"epid_group_id"`
}

// HostIasSigRlResponse carries the opaque signature revocation list.
type HostIasSigRlResponse struct {
	SigRl []byte `cbor:"sig_rl"`
}

// HostIasReportRequest asks the host to submit a quote to IAS for
// verification.
type HostIasReportRequest struct {
	Quote []byte `cbor:"quote"`
}

// HostIasReportResponse carries the opaque IAS report bytes.
type HostIasReportResponse struct {
	AVR []byte `cbor:"avr"`
}

// HostLocalStorageGetRequest reads a value from untrusted host-local KV.
type HostLocalStorageGetRequest struct {
	Key []byte `cbor:"key"`
}

// HostLocalStorageGetResponse carries the value, or an empty slice if
// the key was absent.
type HostLocalStorageGetResponse struct {
	Value []byte `cbor:"value"`
}

// HostLocalStorageSetRequest writes a value to untrusted host-local KV.
type HostLocalStorageSetRequest struct {
	Key   []byte `cbor:"key"`
	Value []byte `cbor:"value"`
}

// HostLocalStorageSetResponse acknowledges a completed write.
type HostLocalStorageSetResponse struct{}

// HostStorageGetRequest reads a single content-addressed value.
type HostStorageGetRequest struct {
	Key hash.Hash `cbor:"key"`
}

// HostStorageGetResponse carries the value, or nil if it was absent.
type HostStorageGetResponse struct {
	Value []byte `cbor:"value"`
}

// HostStorageGetBatchRequest reads a batch of content-addressed values.
type HostStorageGetBatchRequest struct {
	Keys []hash.Hash `cbor:"keys"`
}

// HostStorageGetBatchResponse carries the values in request order; an
// absent key is represented by a nil entry.
type HostStorageGetBatchResponse struct {
	Values [][]byte `cbor:"values"`
}

// HostStorageSyncGetSubtreeRequest lazily fetches a Merkle subtree
// rooted at a node the enclave's local tree is missing.
type HostStorageSyncGetSubtreeRequest struct {
	Root     hash.Hash `cbor:"root"`
	NodeID   hash.Hash `cbor:"node_id"`
	MaxDepth uint8     `cbor:"max_depth"`
}

// HostStorageSyncGetPathRequest fetches the path to a key within a
// subtree rooted at a node the enclave's local tree is missing.
type HostStorageSyncGetPathRequest struct {
	Root   hash.Hash `cbor:"root"`
	NodeID hash.Hash `cbor:"node_id"`
	Key    []byte    `cbor:"key"`
}

// HostStorageSyncGetNodeRequest fetches a single node the enclave's
// local tree is missing.
type HostStorageSyncGetNodeRequest struct {
	Root   hash.Hash `cbor:"root"`
	NodeID hash.Hash `cbor:"node_id"`
}

// HostStorageSyncSerializedResponse carries an opaque serialized
// subtree or node, the sole response shape for all three sync request
// kinds.
type HostStorageSyncSerializedResponse struct {
	Serialized []byte `cbor:"serialized"`
}

// Body is a tagged union of every message body this protocol carries.
// Exactly one field is non-nil (the Empty variant is a non-nil Empty
// field). Variant names are wire-significant and MUST NOT change.
type Body struct {
	Empty *EmptyBody `cbor:"Empty,omitempty"`
	Error *Error     `cbor:"Error,omitempty"`

	WorkerInfoRequest  *WorkerInfoRequest  `cbor:"WorkerInfoRequest,omitempty"`
	WorkerInfoResponse *WorkerInfoResponse `cbor:"WorkerInfoResponse,omitempty"`

	WorkerPingRequest     *WorkerPingRequest     `cbor:"WorkerPingRequest,omitempty"`
	WorkerShutdownRequest *WorkerShutdownRequest `cbor:"WorkerShutdownRequest,omitempty"`

	WorkerAbortRequest  *WorkerAbortRequest  `cbor:"WorkerAbortRequest,omitempty"`
	WorkerAbortResponse *WorkerAbortResponse `cbor:"WorkerAbortResponse,omitempty"`

	WorkerCapabilityTEEGidRequest  *WorkerCapabilityTEEGidRequest  `cbor:"WorkerCapabilityTEEGidRequest,omitempty"`
	WorkerCapabilityTEEGidResponse *WorkerCapabilityTEEGidResponse `cbor:"WorkerCapabilityTEEGidResponse,omitempty"`

	WorkerCapabilityTEERakInitRequest  *WorkerCapabilityTEERakInitRequest  `cbor:"WorkerCapabilityTEERakInitRequest,omitempty"`
	WorkerCapabilityTEERakInitResponse *WorkerCapabilityTEERakInitResponse `cbor:"WorkerCapabilityTEERakInitResponse,omitempty"`

	WorkerCapabilityTEERakReportRequest  *WorkerCapabilityTEERakReportRequest  `cbor:"WorkerCapabilityTEERakReportRequest,omitempty"`
	WorkerCapabilityTEERakReportResponse *WorkerCapabilityTEERakReportResponse `cbor:"WorkerCapabilityTEERakReportResponse,omitempty"`

	WorkerCapabilityTEERakAvrRequest  *WorkerCapabilityTEERakAvrRequest  `cbor:"WorkerCapabilityTEERakAvrRequest,omitempty"`
	WorkerCapabilityTEERakAvrResponse *WorkerCapabilityTEERakAvrResponse `cbor:"WorkerCapabilityTEERakAvrResponse,omitempty"`

	WorkerRPCCallRequest  *WorkerRPCCallRequest  `cbor:"WorkerRPCCallRequest,omitempty"`
	WorkerRPCCallResponse *WorkerRPCCallResponse `cbor:"WorkerRPCCallResponse,omitempty"`

	WorkerLocalRPCCallRequest  *WorkerLocalRPCCallRequest  `cbor:"WorkerLocalRPCCallRequest,omitempty"`
	WorkerLocalRPCCallResponse *WorkerLocalRPCCallResponse `cbor:"WorkerLocalRPCCallResponse,omitempty"`

	WorkerCheckTxBatchRequest  *WorkerCheckTxBatchRequest  `cbor:"WorkerCheckTxBatchRequest,omitempty"`
	WorkerCheckTxBatchResponse *WorkerCheckTxBatchResponse `cbor:"WorkerCheckTxBatchResponse,omitempty"`

	WorkerExecuteTxBatchRequest  *WorkerExecuteTxBatchRequest  `cbor:"WorkerExecuteTxBatchRequest,omitempty"`
	WorkerExecuteTxBatchResponse *WorkerExecuteTxBatchResponse `cbor:"WorkerExecuteTxBatchResponse,omitempty"`

	WorkerRuntimeCallBatchRequest  *WorkerRuntimeCallBatchRequest  `cbor:"WorkerRuntimeCallBatchRequest,omitempty"`
	WorkerRuntimeCallBatchResponse *WorkerRuntimeCallBatchResponse `cbor:"WorkerRuntimeCallBatchResponse,omitempty"`

	HostRPCCallRequest  *HostRPCCallRequest  `cbor:"HostRPCCallRequest,omitempty"`
	HostRPCCallResponse *HostRPCCallResponse `cbor:"HostRPCCallResponse,omitempty"`

	HostIasGetSpidRequest  *HostIasGetSpidRequest  `cbor:"HostIasGetSpidRequest,omitempty"`
	HostIasGetSpidResponse *HostIasGetSpidResponse `cbor:"HostIasGetSpidResponse,omitempty"`

	HostIasGetQuoteTypeRequest  *HostIasGetQuoteTypeRequest  `cbor:"HostIasGetQuoteTypeRequest,omitempty"`
	HostIasGetQuoteTypeResponse *HostIasGetQuoteTypeResponse `cbor:"HostIasGetQuoteTypeResponse,omitempty"`

	HostIasSigRlRequest  *HostIasSigRlRequest  `cbor:"HostIasSigRlRequest,omitempty"`
	HostIasSigRlResponse *HostIasSigRlResponse `cbor:"HostIasSigRlResponse,omitempty"`

	HostIasReportRequest  *HostIasReportRequest  `cbor:"HostIasReportRequest,omitempty"`
	HostIasReportResponse *HostIasReportResponse `cbor:"HostIasReportResponse,omitempty"`

	HostLocalStorageGetRequest  *HostLocalStorageGetRequest  `cbor:"HostLocalStorageGetRequest,omitempty"`
	HostLocalStorageGetResponse *HostLocalStorageGetResponse `cbor:"HostLocalStorageGetResponse,omitempty"`

	HostLocalStorageSetRequest  *HostLocalStorageSetRequest  `cbor:"HostLocalStorageSetRequest,omitempty"`
	HostLocalStorageSetResponse *HostLocalStorageSetResponse `cbor:"HostLocalStorageSetResponse,omitempty"`

	HostStorageGetRequest  *HostStorageGetRequest  `cbor:"HostStorageGetRequest,omitempty"`
	HostStorageGetResponse *HostStorageGetResponse `cbor:"HostStorageGetResponse,omitempty"`

	HostStorageGetBatchRequest  *HostStorageGetBatchRequest  `cbor:"HostStorageGetBatchRequest,omitempty"`
	HostStorageGetBatchResponse *HostStorageGetBatchResponse `cbor:"HostStorageGetBatchResponse,omitempty"`

	HostStorageSyncGetSubtreeRequest *HostStorageSyncGetSubtreeRequest `cbor:"HostStorageSyncGetSubtreeRequest,omitempty"`
	HostStorageSyncGetPathRequest    *HostStorageSyncGetPathRequest    `cbor:"HostStorageSyncGetPathRequest,omitempty"`
	HostStorageSyncGetNodeRequest    *HostStorageSyncGetNodeRequest    `cbor:"HostStorageSyncGetNodeRequest,omitempty"`

	HostStorageSyncSerializedResponse *HostStorageSyncSerializedResponse `cbor:"HostStorageSyncSerializedResponse,omitempty"`
}

// IsEmpty returns true iff the body carries no variant at all. A body
// carrying the Empty variant (non-nil Empty field) is not reported as
// empty.
func (b *Body) IsEmpty() bool {
	return *b == Body{}
}
