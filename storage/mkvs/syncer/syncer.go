// Package syncer implements the enclave side of the content-addressed
// storage sync protocol: lazily materializing Merkle-tree subtrees and
// nodes the local tree is missing, by proxying the request to the host
// over the worker-host protocol connection.
package syncer

import (
	"context"

	"github.com/oasislabs/enclaved-compute/common/crypto/hash"
	"github.com/oasislabs/enclaved-compute/runtime/host/protocol"
)

// Subtree is an opaque, host-serialized Merkle subtree. The layout of
// its contents is the tree implementation's concern, not this
// package's; ReadSync only round-trips the bytes.
type Subtree struct {
	Serialized []byte
}

// Node is an opaque, host-serialized Merkle tree node.
type Node struct {
	Serialized []byte
}

// ReadSync lazily fetches subtrees, paths, and individual nodes that an
// in-enclave Merkle tree is missing locally.
type ReadSync interface {
	GetSubtree(ctx context.Context, root hash.Hash, nodeID hash.Hash, maxDepth uint8) (*Subtree, error)
	GetPath(ctx context.Context, root hash.Hash, nodeID hash.Hash, key []byte) (*Subtree, error)
	GetNode(ctx context.Context, root hash.Hash, nodeID hash.Hash) (*Node, error)
}

// hostProxy is the production ReadSync: every call is forwarded to the
// host process over the worker-host protocol connection and answered
// with a HostStorageSyncSerializedResponse.
type hostProxy struct {
	conn protocol.Connection
}

// NewHostProxy returns a ReadSync that proxies every call to the host
// over conn, which must already be in the Ready state.
func NewHostProxy(conn protocol.Connection) ReadSync {
	return &hostProxy{conn: conn}
}

func (p *hostProxy) GetSubtree(ctx context.Context, root hash.Hash, nodeID hash.Hash, maxDepth uint8) (*Subtree, error) {
	resp, err := p.conn.Call(ctx, &protocol.Body{
		HostStorageSyncGetSubtreeRequest: &protocol.HostStorageSyncGetSubtreeRequest{
			Root:     root,
			NodeID:   nodeID,
			MaxDepth: maxDepth,
		},
	})
	if err != nil {
		return nil, err
	}
	serialized, err := unwrapSerialized(resp)
	if err != nil {
		return nil, err
	}
	return &Subtree{Serialized: serialized}, nil
}

func (p *hostProxy) GetPath(ctx context.Context, root hash.Hash, nodeID hash.Hash, key []byte) (*Subtree, error) {
	resp, err := p.conn.Call(ctx, &protocol.Body{
		HostStorageSyncGetPathRequest: &protocol.HostStorageSyncGetPathRequest{
			Root:   root,
			NodeID: nodeID,
			Key:    key,
		},
	})
	if err != nil {
		return nil, err
	}
	serialized, err := unwrapSerialized(resp)
	if err != nil {
		return nil, err
	}
	return &Subtree{Serialized: serialized}, nil
}

func (p *hostProxy) GetNode(ctx context.Context, root hash.Hash, nodeID hash.Hash) (*Node, error) {
	resp, err := p.conn.Call(ctx, &protocol.Body{
		HostStorageSyncGetNodeRequest: &protocol.HostStorageSyncGetNodeRequest{
			Root:   root,
			NodeID: nodeID,
		},
	})
	if err != nil {
		return nil, err
	}
	serialized, err := unwrapSerialized(resp)
	if err != nil {
		return nil, err
	}
	return &Node{Serialized: serialized}, nil
}

func unwrapSerialized(resp *protocol.Body) ([]byte, error) {
	if resp.HostStorageSyncSerializedResponse == nil {
		return nil, protocol.ErrInvalidResponse
	}
	return resp.HostStorageSyncSerializedResponse.Serialized, nil
}
