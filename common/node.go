package common

import (
	"github.com/oasislabs/enclaved-compute/common/crypto/hash"
	"github.com/oasislabs/enclaved-compute/common/crypto/signature"
)

// TEEHardware is the kind of trusted execution environment a node's
// runtime capability is backed by.
type TEEHardware uint8

const (
	// TEEHardwareInvalid means no TEE is in use.
	TEEHardwareInvalid TEEHardware = iota
	// TEEHardwareIntelSGX means the node's runtime executes inside Intel SGX.
	TEEHardwareIntelSGX
)

// String returns the string representation of a TEEHardware value.
func (h TEEHardware) String() string {
	switch h {
	case TEEHardwareInvalid:
		return "invalid"
	case TEEHardwareIntelSGX:
		return "intel-sgx"
	default:
		return "[unknown]"
	}
}

// CapabilityTEE describes a node's attested trusted execution capability.
type CapabilityTEE struct {
	Hardware    TEEHardware         `json:"hardware"`
	RAK         signature.PublicKey `json:"rak"`
	Attestation []byte              `json:"attestation"`
}

// RuntimeCapability describes one runtime a node is configured to run,
// and the TEE capability backing it, if any.
type RuntimeCapability struct {
	ID hash.Hash `json:"id"`

	TEE *CapabilityTEE `json:"tee,omitempty"`
}

// Address is a single reachable network endpoint for a node.
type Address struct {
	IP   string `json:"ip"`
	Port uint16 `json:"port"`
}

// Node is a descriptor of a registered network participant, as resolved
// by the registry when the Runtime Client Manager needs to dial a
// committee leader.
type Node struct {
	ID         signature.PublicKey `json:"id"`
	EntityID   signature.PublicKey `json:"entity_id"`
	Expiration uint64              `json:"expiration"`

	Addresses   []Address           `json:"addresses"`
	Certificate []byte              `json:"certificate"`
	Runtimes    []RuntimeCapability `json:"runtimes"`
}

// RuntimeForID returns the node's capability entry for the given runtime,
// if it is configured to run it.
func (n *Node) RuntimeForID(id hash.Hash) *RuntimeCapability {
	for i := range n.Runtimes {
		if n.Runtimes[i].ID.Equal(&id) {
			return &n.Runtimes[i]
		}
	}
	return nil
}
