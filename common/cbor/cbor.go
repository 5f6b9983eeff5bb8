// Package cbor provides helpers for canonical CBOR serialization and a
// length-framed message codec used by the worker-host protocol.
package cbor

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// MaxMessageSize is the maximum permitted size, in bytes, of a single
// framed message (header prefix excluded).
const MaxMessageSize = 100 * 1024 * 1024 // 100 MiB

// ErrMessageTooLarge is returned when a frame's declared length exceeds
// MaxMessageSize.
var ErrMessageTooLarge = fmt.Errorf("cbor: message too large")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	// Canonical encoding (RFC 7049 §3.9/core deterministic encoding) is
	// required so that two independent encoders of the same value produce
	// byte-identical output, which is what the header-hashing invariants
	// depend on.
	encOpts := cbor.CanonicalEncOptions()
	encOpts.Time = cbor.TimeUnix
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(err)
	}

	decOpts := cbor.DecOptions{
		MaxArrayElements: 1 << 20,
		MaxMapPairs:      1 << 20,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(err)
	}
}

// Marshal serializes a value into canonical CBOR form.
func Marshal(v interface{}) []byte {
	b, err := encMode.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("cbor: marshal failed: %v", err))
	}
	return b
}

// Unmarshal deserializes a canonical CBOR byte string into v.
func Unmarshal(data []byte, v interface{}) error {
	return decMode.Unmarshal(data, v)
}

// Marshaler is implemented by types providing custom CBOR serialization.
// The signature matches cbor.Marshaler from the underlying library so
// that implementations are picked up automatically during encoding.
type Marshaler interface {
	MarshalCBOR() ([]byte, error)
}

// Unmarshaler is implemented by types providing custom CBOR
// deserialization, matching the underlying library's Unmarshaler.
type Unmarshaler interface {
	UnmarshalCBOR([]byte) error
}

// FixSliceForSerde normalizes a nil byte slice to an empty (non-nil) one.
// CBOR encodes a nil slice as null, which round-trips back to nil, but
// several message fields (e.g. span_context) are specified as an always-
// present byte string; this keeps encode(decode(x)) == x for those fields.
func FixSliceForSerde(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// lengthPrefixSize is the size, in bytes, of the big-endian frame length
// prefix that precedes every CBOR-encoded message on the wire.
const lengthPrefixSize = 4

// MessageCodec reads and writes length-framed CBOR messages on a byte
// stream: a 32-bit big-endian length prefix followed by that many bytes
// of canonical CBOR.
//
// Reads are unsynchronized (callers are expected to drive a single reader
// loop); writes are serialized internally so frame boundaries are
// preserved across concurrent callers.
type MessageCodec struct {
	writeMu sync.Mutex

	r *bufio.Reader
	w io.Writer
}

// NewMessageCodec creates a codec that reads and writes frames on rw.
func NewMessageCodec(rw io.ReadWriter) *MessageCodec {
	return &MessageCodec{
		r: bufio.NewReader(rw),
		w: rw,
	}
}

// Read decodes the next frame from the stream into v. It returns
// ErrMessageTooLarge (without consuming the payload) if the frame's
// declared length exceeds MaxMessageSize.
func (c *MessageCodec) Read(v interface{}) error {
	var lenBuf [lengthPrefixSize]byte
	if _, err := io.ReadFull(c.r, lenBuf[:]); err != nil {
		return err
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > MaxMessageSize {
		return ErrMessageTooLarge
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return err
	}

	return Unmarshal(buf, v)
}

// Write encodes v and writes it as a single frame. The write is atomic
// with respect to other goroutines calling Write on the same codec.
func (c *MessageCodec) Write(v interface{}) error {
	buf := Marshal(v)
	if len(buf) > MaxMessageSize {
		return ErrMessageTooLarge
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var lenBuf [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(buf)))

	if _, err := c.w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := c.w.Write(buf); err != nil {
		return err
	}
	return nil
}
