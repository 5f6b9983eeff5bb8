package client

import (
	"google.golang.org/grpc/encoding"

	"github.com/oasislabs/enclaved-compute/common/cbor"
)

// codecName is the gRPC content-subtype this codec registers under. A
// client selects it per-call with grpc.CallContentSubtype(codecName).
const codecName = "cbor"

// cborCodec implements encoding.Codec by delegating to the same
// canonical CBOR encoder used for the worker-host protocol, so wire
// values hash identically regardless of which transport carried them.
type cborCodec struct{}

func (cborCodec) Marshal(v interface{}) ([]byte, error) {
	return cbor.Marshal(v), nil
}

func (cborCodec) Unmarshal(data []byte, v interface{}) error {
	return cbor.Unmarshal(data, v)
}

func (cborCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(cborCodec{})
}
