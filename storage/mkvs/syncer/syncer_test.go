package syncer

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oasislabs/enclaved-compute/common/crypto/hash"
	"github.com/oasislabs/enclaved-compute/common/version"
	"github.com/oasislabs/enclaved-compute/runtime/host/protocol"
)

// connStub is a minimal protocol.Connection stand-in that returns a
// canned response or error from Call and records the last request body,
// since hostProxy never touches the connection's lifecycle methods.
type connStub struct {
	lastBody *protocol.Body
	resp     *protocol.Body
	err      error
}

func (c *connStub) Close() {}

func (c *connStub) Call(ctx context.Context, body *protocol.Body) (*protocol.Body, error) {
	c.lastBody = body
	return c.resp, c.err
}

func (c *connStub) InitHost(ctx context.Context, conn net.Conn) (*version.Version, error) {
	panic("not used")
}

func (c *connStub) InitGuest(ctx context.Context, conn net.Conn) error {
	panic("not used")
}

func TestHostProxyGetNode(t *testing.T) {
	root := hash.DigestBytes([]byte("root"))
	nodeID := hash.DigestBytes([]byte("node"))

	conn := &connStub{
		resp: &protocol.Body{
			HostStorageSyncSerializedResponse: &protocol.HostStorageSyncSerializedResponse{
				Serialized: []byte("opaque-node-bytes"),
			},
		},
	}
	proxy := NewHostProxy(conn)

	n, err := proxy.GetNode(context.Background(), root, nodeID)
	require.NoError(t, err)
	require.Equal(t, []byte("opaque-node-bytes"), n.Serialized)

	require.NotNil(t, conn.lastBody.HostStorageSyncGetNodeRequest)
	require.Equal(t, root, conn.lastBody.HostStorageSyncGetNodeRequest.Root)
	require.Equal(t, nodeID, conn.lastBody.HostStorageSyncGetNodeRequest.NodeID)
}

func TestHostProxyInvalidResponse(t *testing.T) {
	conn := &connStub{resp: &protocol.Body{Empty: &protocol.EmptyBody{}}}
	proxy := NewHostProxy(conn)

	_, err := proxy.GetSubtree(context.Background(), hash.Empty(), hash.Empty(), 4)
	require.Equal(t, protocol.ErrInvalidResponse, err)
}

func TestHostProxyPropagatesCallError(t *testing.T) {
	conn := &connStub{err: protocol.ErrStorageUnavailable}
	proxy := NewHostProxy(conn)

	_, err := proxy.GetPath(context.Background(), hash.Empty(), hash.Empty(), []byte("key"))
	require.Equal(t, protocol.ErrStorageUnavailable, err)
}
