// Package protocol implements the worker-host protocol: a length-framed,
// canonically CBOR-encoded, bidirectional request/response multiplexer
// between the untrusted host process and the trusted enclave worker.
package protocol

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/opentracing/opentracing-go"
	opentracingExt "github.com/opentracing/opentracing-go/ext"

	"github.com/oasislabs/enclaved-compute/common"
	"github.com/oasislabs/enclaved-compute/common/cbor"
	"github.com/oasislabs/enclaved-compute/common/errors"
	"github.com/oasislabs/enclaved-compute/common/logging"
	"github.com/oasislabs/enclaved-compute/common/tracing"
	"github.com/oasislabs/enclaved-compute/common/version"
)

// Handler services decoded requests on behalf of a Connection. The
// enclave's Dispatcher is the production implementation; tests supply
// stand-ins.
type Handler interface {
	// Handle processes a request body and returns the response body, or
	// an error to be reported back to the peer as an Error body.
	Handle(ctx context.Context, body *Body) (*Body, error)
}

// Connection is a worker-host protocol connection.
type Connection interface {
	// Close tears down the connection and waits for its goroutines to exit.
	Close()

	// Call sends a request to the peer and returns its response or error.
	Call(ctx context.Context, body *Body) (*Body, error)

	// InitHost performs host-side initialization: it queries the worker's
	// protocol/runtime version and transitions the connection to Ready.
	InitHost(ctx context.Context, conn net.Conn) (*version.Version, error)

	// InitGuest performs enclave-side initialization and transitions the
	// connection directly to Ready; no handshake is required.
	InitGuest(ctx context.Context, conn net.Conn) error
}

type state uint8

const (
	stateUninitialized state = iota
	stateInitializing
	stateReady
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateInitializing:
		return "initializing"
	case stateReady:
		return "ready"
	case stateClosed:
		return "closed"
	default:
		return fmt.Sprintf("[malformed: %d]", s)
	}
}

var validStateTransitions = map[state][]state{
	stateUninitialized: {stateInitializing},
	stateInitializing:  {stateReady, stateClosed},
	stateReady:         {stateClosed},
	stateClosed:        {},
}

// requiresAttestation reports whether body is one of the runtime
// request kinds that must be refused with ErrAttestationRequired until
// an AVR has been bound to the RAK.
func requiresAttestation(body *Body) bool {
	switch {
	case body.WorkerRPCCallRequest != nil:
	case body.WorkerLocalRPCCallRequest != nil:
	case body.WorkerCheckTxBatchRequest != nil:
	case body.WorkerExecuteTxBatchRequest != nil:
	case body.WorkerRuntimeCallBatchRequest != nil:
	default:
		return false
	}
	return true
}

type connection struct { // nolint: maligned
	sync.RWMutex

	conn  net.Conn
	codec *cbor.MessageCodec

	runtimeID common.Namespace
	handler   Handler

	state           state
	avrBound        bool
	pendingRequests map[uint64]chan *Body
	nextRequestID   uint64

	outCh   chan *Message
	closeCh chan struct{}
	quitWg  sync.WaitGroup

	logger *logging.Logger
}

func (c *connection) getState() state {
	c.RLock()
	s := c.state
	c.RUnlock()
	return s
}

func (c *connection) setStateLocked(s state) {
	var valid bool
	for _, dest := range validStateTransitions[c.state] {
		if dest == s {
			valid = true
			break
		}
	}
	if !valid {
		panic(fmt.Sprintf("rhp: invalid state transition: %s -> %s", c.state, s))
	}
	c.state = s
}

// Close implements Connection.
func (c *connection) Close() {
	c.Lock()
	if c.state != stateReady && c.state != stateInitializing {
		c.Unlock()
		return
	}
	c.setStateLocked(stateClosed)
	c.Unlock()

	if err := c.conn.Close(); err != nil {
		c.logger.Error("error while closing connection", "err", err)
	}

	c.quitWg.Wait()
}

// Call implements Connection.
func (c *connection) Call(ctx context.Context, body *Body) (*Body, error) {
	if c.getState() != stateReady {
		return nil, ErrNotReady
	}
	return c.call(ctx, body)
}

func (c *connection) call(ctx context.Context, body *Body) (*Body, error) {
	id, respCh, err := c.makeRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	select {
	case resp, ok := <-respCh:
		if !ok {
			return nil, fmt.Errorf("rhp: connection closed while awaiting response")
		}
		if resp.Error != nil {
			if decoded := errors.FromCode(resp.Error.Module, resp.Error.Code); decoded != nil {
				return nil, decoded
			}
			return nil, fmt.Errorf("%s", resp.Error.Message)
		}
		return resp, nil
	case <-ctx.Done():
		// Abandon the pending entry; a response that arrives after this
		// point is dropped by handleMessage with a warning.
		c.Lock()
		delete(c.pendingRequests, id)
		c.Unlock()
		return nil, ctx.Err()
	}
}

func (c *connection) makeRequest(ctx context.Context, body *Body) (uint64, chan *Body, error) {
	ch := make(chan *Body, 1)

	c.Lock()
	id := c.nextRequestID
	c.nextRequestID++
	c.pendingRequests[id] = ch
	c.Unlock()

	var scBinary []byte
	if span := opentracing.SpanFromContext(ctx); span != nil {
		var err error
		scBinary, err = tracing.SpanContextToBinary(span.Context())
		if err != nil {
			c.logger.Error("error while marshalling span context", "err", err)
		}
	}

	msg := Message{
		ID:          id,
		MessageType: MessageRequest,
		Body:        *body,
		SpanContext: cbor.FixSliceForSerde(scBinary),
	}

	if err := c.sendMessage(ctx, &msg); err != nil {
		return 0, nil, fmt.Errorf("rhp: failed to send message: %w", err)
	}
	return id, ch, nil
}

func (c *connection) sendMessage(ctx context.Context, msg *Message) error {
	select {
	case c.outCh <- msg:
		return nil
	case <-c.closeCh:
		return fmt.Errorf("rhp: connection closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *connection) workerOutgoing() {
	defer c.quitWg.Done()

	for {
		select {
		case msg := <-c.outCh:
			if err := c.codec.Write(msg); err != nil {
				c.logger.Error("error while sending message", "err", err)
			}
		case <-c.closeCh:
			return
		}
	}
}

func errorToBody(err error) *Body {
	module, code := errors.Code(err)
	return &Body{Error: &Error{Module: module, Code: code, Message: err.Error()}}
}

func newResponseMessage(req *Message, body *Body) *Message {
	return &Message{
		ID:          req.ID,
		MessageType: MessageResponse,
		Body:        *body,
		SpanContext: cbor.FixSliceForSerde(nil),
	}
}

// localHandle answers the requests the multiplexer itself owns (§4.2 of
// the protocol design), without involving the Dispatcher.
func (c *connection) localHandle(body *Body) (*Body, bool) {
	switch {
	case body.WorkerInfoRequest != nil:
		return &Body{WorkerInfoResponse: &WorkerInfoResponse{
			ProtocolVersion: version.RuntimeProtocol.ToU64(),
			RuntimeVersion:  version.RuntimeProtocol.ToU64(),
		}}, true
	case body.WorkerPingRequest != nil:
		return &Body{Empty: &EmptyBody{}}, true
	case body.WorkerShutdownRequest != nil:
		return nil, false // answered by handleRequest before localHandle runs
	default:
		return nil, false
	}
}

func (c *connection) handleRequest(ctx context.Context, body *Body) *Body {
	if body.WorkerShutdownRequest != nil {
		return errorToBody(ErrMethodNotSupported)
	}

	if resp, ok := c.localHandle(body); ok {
		return resp
	}

	if requiresAttestation(body) {
		c.RLock()
		bound := c.avrBound
		c.RUnlock()
		if !bound {
			return errorToBody(ErrAttestationRequired)
		}
	}

	resp, err := c.handler.Handle(ctx, body)
	if err != nil {
		return errorToBody(err)
	}

	if body.WorkerCapabilityTEERakAvrRequest != nil && resp.WorkerCapabilityTEERakAvrResponse != nil {
		c.Lock()
		c.avrBound = true
		c.Unlock()
	}

	return resp
}

func (c *connection) handleMessage(ctx context.Context, message *Message) {
	switch message.MessageType {
	case MessageRequest:
		state := c.getState()
		if state != stateReady {
			c.logger.Warn("rejecting incoming request before being ready", "state", state)
			_ = c.sendMessage(ctx, newResponseMessage(message, errorToBody(ErrNotReady)))
			return
		}

		span := opentracing.SpanFromContext(ctx)
		if len(message.SpanContext) != 0 {
			sc, err := tracing.SpanContextFromBinary(message.SpanContext)
			if err != nil {
				c.logger.Error("error while unmarshalling span context", "err", err)
			} else {
				span = opentracing.StartSpan("rhp.request", opentracingExt.RPCServerOption(sc))
				defer span.Finish()
				ctx = opentracing.ContextWithSpan(ctx, span)
			}
		}

		body := c.handleRequest(ctx, &message.Body)
		if err := c.sendMessage(ctx, newResponseMessage(message, body)); err != nil {
			c.logger.Warn("failed to send response message", "err", err)
		}
	case MessageResponse:
		c.Lock()
		respCh, ok := c.pendingRequests[message.ID]
		delete(c.pendingRequests, message.ID)
		c.Unlock()

		if !ok {
			c.logger.Warn("received a response but no request with id is outstanding", "id", message.ID)
			return
		}
		respCh <- &message.Body
		close(respCh)
	case MessageKeepAlive:
		// No action required; receipt alone keeps the connection's idle
		// timers (if any) from firing.
	default:
		c.logger.Warn("received a malformed message, closing connection", "message_type", message.MessageType)
		c.Close()
	}
}

func (c *connection) workerIncoming() {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		_ = c.conn.Close()
		close(c.closeCh)
		cancel()

		c.Lock()
		for id, ch := range c.pendingRequests {
			close(ch)
			delete(c.pendingRequests, id)
		}
		c.Unlock()

		c.quitWg.Done()
	}()

	for {
		var message Message
		if err := c.codec.Read(&message); err != nil {
			c.logger.Error("error while receiving message, closing connection", "err", err)
			return
		}
		go c.handleMessage(ctx, &message)
	}
}

func (c *connection) initConn(conn net.Conn) {
	c.Lock()
	defer c.Unlock()

	if c.state != stateUninitialized {
		panic("rhp: connection already initialized")
	}

	c.conn = conn
	c.codec = cbor.NewMessageCodec(conn)

	c.quitWg.Add(2)
	go c.workerIncoming()
	go c.workerOutgoing()

	c.setStateLocked(stateInitializing)
}

// InitGuest implements Connection.
func (c *connection) InitGuest(ctx context.Context, conn net.Conn) error {
	c.initConn(conn)

	c.Lock()
	c.setStateLocked(stateReady)
	c.Unlock()

	return nil
}

// InitHost implements Connection.
func (c *connection) InitHost(ctx context.Context, conn net.Conn) (*version.Version, error) {
	c.initConn(conn)

	rsp, err := c.call(ctx, &Body{WorkerInfoRequest: &WorkerInfoRequest{RuntimeID: c.runtimeID}})
	switch {
	case err != nil:
		return nil, fmt.Errorf("rhp: error while requesting worker info: %w", err)
	case rsp.WorkerInfoResponse == nil:
		return nil, fmt.Errorf("rhp: unexpected response to WorkerInfoRequest")
	}

	info := rsp.WorkerInfoResponse
	if ver := version.FromU64(info.ProtocolVersion); ver.MajorMinor() != version.RuntimeProtocol.MajorMinor() {
		return nil, fmt.Errorf("rhp: incompatible protocol version (expected: %s got: %s)",
			version.RuntimeProtocol, ver)
	}

	rtVersion := version.FromU64(info.RuntimeVersion)
	c.logger.Info("worker-host protocol initialized", "runtime_version", rtVersion)

	c.Lock()
	c.setStateLocked(stateReady)
	c.Unlock()

	return &rtVersion, nil
}

// NewConnection creates a new uninitialized worker-host protocol
// connection. Call InitHost (from the host process) or InitGuest (from
// the enclave) before issuing or receiving any requests.
func NewConnection(logger *logging.Logger, runtimeID common.Namespace, handler Handler) (Connection, error) {
	return &connection{
		runtimeID:       runtimeID,
		handler:         handler,
		state:           stateUninitialized,
		pendingRequests: make(map[uint64]chan *Body),
		outCh:           make(chan *Message),
		closeCh:         make(chan struct{}),
		logger:          logger,
	}, nil
}
