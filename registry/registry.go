// Package registry implements an in-memory node registry: signed node
// registration (RegisterNode), lookup of a node id into its descriptor
// (Node, GetNodes) that runtime/client.Manager needs to dial a committee
// leader, and a stream of node registrations (WatchNodes). Deregistration
// and entity/contract registries are not implemented.
package registry

import (
	"context"
	"sync"

	"github.com/oasislabs/enclaved-compute/common"
	"github.com/oasislabs/enclaved-compute/common/crypto/signature"
	"github.com/oasislabs/enclaved-compute/common/errors"
	"github.com/oasislabs/enclaved-compute/common/pubsub"
	schedulerAPI "github.com/oasislabs/enclaved-compute/scheduler/api"
)

var _ schedulerAPI.NodeLookup = (*Registry)(nil)

// ModuleName is the module name used for error registration.
const ModuleName = "registry"

// RegisterNodeSignatureContext is the domain-separation context a node
// descriptor is signed under before RegisterNode accepts it.
var RegisterNodeSignatureContext = []byte("oasis-core/registry: register node")

var (
	// ErrInvalidArgument is returned on a malformed node descriptor.
	ErrInvalidArgument = errors.New(ModuleName, 1, "registry: invalid argument")
	// ErrInvalidSignature is returned when a RegisterNode signature fails
	// to verify against the node's own id.
	ErrInvalidSignature = errors.New(ModuleName, 2, "registry: invalid signature")
	// ErrNodeNotFound is returned by Node for an unknown id.
	ErrNodeNotFound = errors.New(ModuleName, 3, "registry: node not found")
)

// NodeEvent signals a node registration change.
type NodeEvent struct {
	Node           *common.Node
	IsRegistration bool
}

// Registry is an in-memory node registry: the production source the
// committee-watching side of the system uses to turn a committee
// member's node id into a dialable descriptor. It is populated by
// RegisterNode, which a consensus-event follower (out of scope here)
// would call as node registrations are observed on-chain.
type Registry struct {
	mu    sync.RWMutex
	nodes map[signature.PublicKey]*common.Node

	notifier *pubsub.Broker
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		nodes:    make(map[signature.PublicKey]*common.Node),
		notifier: pubsub.NewBroker(false),
	}
}

// RegisterNode adds or updates a node's descriptor, after verifying
// that sig is a valid signature by the node's own id over node's
// canonical CBOR encoding under RegisterNodeSignatureContext.
func (r *Registry) RegisterNode(n *common.Node, sig *signature.Signature) error {
	if n == nil || sig == nil {
		return ErrInvalidArgument
	}
	if !signature.VerifyCBOR(n.ID, RegisterNodeSignatureContext, n, *sig) {
		return ErrInvalidSignature
	}

	r.mu.Lock()
	r.nodes[n.ID] = n
	r.mu.Unlock()

	r.notifier.Broadcast(&NodeEvent{Node: n, IsRegistration: true})
	return nil
}

// Node implements scheduler/api.NodeLookup.
func (r *Registry) Node(ctx context.Context, id signature.PublicKey) (*common.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return n, nil
}

// GetNodes returns every currently registered node, in no particular
// order.
func (r *Registry) GetNodes() []*common.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes := make([]*common.Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		nodes = append(nodes, n)
	}
	return nodes
}

// WatchNodes subscribes to the stream of node registration changes.
func (r *Registry) WatchNodes() (<-chan *NodeEvent, *pubsub.Subscription) {
	ch, sub := r.notifier.Subscribe()
	typedCh := make(chan *NodeEvent)
	go func() {
		defer close(typedCh)
		for v := range ch {
			typedCh <- v.(*NodeEvent)
		}
	}()
	return typedCh, sub
}
