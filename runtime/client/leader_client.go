package client

import (
	"context"
	"crypto/x509"
	"fmt"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/security/advancedtls"

	"github.com/oasislabs/enclaved-compute/common"
	"github.com/oasislabs/enclaved-compute/runtime/host/protocol"
)

// runtimeCallMethod is the gRPC method a committee leader exposes for
// forwarding runtime calls into its enclave.
const runtimeCallMethod = "/oasis_core.Runtime/Call"

// CallRequest is the wire request a LeaderClient sends for a runtime call.
type CallRequest struct {
	Method string `cbor:"method"`
	Args   []byte `cbor:"args"`
}

// CallResponse is the wire response to a CallRequest.
type CallResponse struct {
	Result []byte `cbor:"result"`
}

// LeaderClient is a gRPC client pinned to a single committee leader
// node, authenticated against that node's own certificate rather than
// a shared CA (the node's certificate is learned from the registry,
// not a PKI).
type LeaderClient struct {
	conn *grpc.ClientConn

	shutdown int32
}

// DialLeader opens a TLS-authenticated connection to node, pinning the
// server certificate instead of trusting a CA: the node's self-signed
// certificate, as published in the registry, is the only root and the
// peer's certificate must equal it exactly. No TLS server name (SNI)
// override is set.
func DialLeader(ctx context.Context, node *common.Node) (*LeaderClient, error) {
	if len(node.Addresses) == 0 {
		return nil, fmt.Errorf("runtime/client: node %s has no addresses", node.ID)
	}
	addr := node.Addresses[0]

	cert, err := x509.ParseCertificate(node.Certificate)
	if err != nil {
		return nil, fmt.Errorf("runtime/client: parsing node certificate: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AddCert(cert)

	verify := func(params *advancedtls.VerificationFuncParams) (*advancedtls.VerificationResults, error) {
		if len(params.RawCerts) == 0 {
			return nil, fmt.Errorf("runtime/client: peer presented no certificate")
		}
		peer, err := x509.ParseCertificate(params.RawCerts[0])
		if err != nil {
			return nil, fmt.Errorf("runtime/client: parsing peer certificate: %w", err)
		}
		if !peer.Equal(cert) {
			return nil, fmt.Errorf("runtime/client: peer certificate does not match the node's registered certificate")
		}
		return &advancedtls.VerificationResults{}, nil
	}

	creds, err := advancedtls.NewClientCreds(&advancedtls.ClientOptions{
		VerifyPeer: verify,
		RootOptions: advancedtls.RootCertificateOptions{
			RootCACerts: pool,
		},
		VType: advancedtls.CertVerification,
	})
	if err != nil {
		return nil, fmt.Errorf("runtime/client: building TLS credentials: %w", err)
	}

	target := fmt.Sprintf("%s:%d", addr.IP, addr.Port)
	conn, err := grpc.DialContext(ctx, target,
		grpc.WithTransportCredentials(creds),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, fmt.Errorf("runtime/client: dialing leader %s: %w", target, err)
	}

	return &LeaderClient{conn: conn}, nil
}

// Call invokes method on the leader, passing args and returning the
// raw result bytes.
func (c *LeaderClient) Call(ctx context.Context, method string, args []byte) ([]byte, error) {
	req := &CallRequest{Method: method, Args: args}
	resp := &CallResponse{}

	err := c.conn.Invoke(ctx, runtimeCallMethod, req, resp, grpc.CallContentSubtype(codecName))
	if err != nil {
		if atomic.LoadInt32(&c.shutdown) != 0 {
			return nil, protocol.ErrTransitionShutdown
		}
		return nil, err
	}
	return resp.Result, nil
}

// Shutdown marks the client as retired and closes its connection. Any
// call already in flight fails with protocol.ErrTransitionShutdown
// rather than its underlying transport error.
func (c *LeaderClient) Shutdown() {
	atomic.StoreInt32(&c.shutdown, 1)
	_ = c.conn.Close()
}
