package protocol

import "github.com/oasislabs/enclaved-compute/common/errors"

const moduleName = "rhp"

var (
	// ErrNotReady is returned when a call is attempted before the
	// connection has completed its init handshake.
	ErrNotReady = errors.New(moduleName, 1, "rhp: not ready")
	// ErrMessageTooLarge is returned when a frame's declared length
	// exceeds the maximum permitted message size.
	ErrMessageTooLarge = errors.New(moduleName, 2, "rhp: message too large")
	// ErrMethodNotSupported is returned for requests this worker
	// recognizes but deliberately does not implement.
	ErrMethodNotSupported = errors.New(moduleName, 3, "rhp: method not supported")
	// ErrInvalidResponse is returned when a reply's body does not match
	// the variant the caller expected.
	ErrInvalidResponse = errors.New(moduleName, 4, "rhp: invalid response")
	// ErrAttestationRequired is returned for any runtime request issued
	// before a valid AVR has been bound to the RAK.
	ErrAttestationRequired = errors.New(moduleName, 5, "rhp: attestation required")
	// ErrTransitionShutdown is the distinguished error a leader client
	// reports when it is torn down following a committee leader change.
	ErrTransitionShutdown = errors.New(moduleName, 6, "rhp: shutdown due to committee transition")
	// ErrMissingCommitteeLeader is returned when the current committee
	// has no member in the Leader role.
	ErrMissingCommitteeLeader = errors.New(moduleName, 7, "rhp: committee has no leader")
	// ErrBatchExecutionFailed is returned when a batch-wide error
	// aborted execution before any outputs were produced.
	ErrBatchExecutionFailed = errors.New(moduleName, 8, "rhp: batch execution failed")
	// ErrStorageUnavailable is returned when the storage backend cannot
	// service a read or commit.
	ErrStorageUnavailable = errors.New(moduleName, 9, "rhp: storage unavailable")
	// ErrSignatureVerificationFailed is returned when a signature over
	// a header or receipt does not verify.
	ErrSignatureVerificationFailed = errors.New(moduleName, 10, "rhp: signature verification failed")
	// ErrMalformedFrame is returned when a frame cannot be decoded.
	ErrMalformedFrame = errors.New(moduleName, 11, "rhp: malformed frame")
)
