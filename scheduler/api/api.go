// Package api defines the compute committee shapes the worker node
// tracks across epoch transitions, and the node-lookup capability the
// Runtime Client Manager uses to resolve a committee member into a
// dialable address.
package api

import (
	"context"

	"github.com/oasislabs/enclaved-compute/common"
	"github.com/oasislabs/enclaved-compute/common/crypto/hash"
	"github.com/oasislabs/enclaved-compute/common/crypto/signature"
)

// CommitteeKind distinguishes the purpose of a committee.
type CommitteeKind uint8

const (
	// KindCompute is a committee responsible for executing batches.
	KindCompute CommitteeKind = iota
	// KindStorage is a committee responsible for storage replication.
	KindStorage
)

// String returns the string representation of a CommitteeKind.
func (k CommitteeKind) String() string {
	switch k {
	case KindCompute:
		return "compute"
	case KindStorage:
		return "storage"
	default:
		return "[unknown]"
	}
}

// Role is a committee member's role.
type Role uint8

const (
	// Worker is a regular, non-leader committee member.
	Worker Role = iota
	// Leader is the committee member responsible for batch dispatch and
	// result commitment.
	Leader
	// BackupWorker stands in for the leader on an epoch transition or
	// discrepancy.
	BackupWorker
)

// String returns the string representation of a Role.
func (r Role) String() string {
	switch r {
	case Worker:
		return "worker"
	case Leader:
		return "leader"
	case BackupWorker:
		return "backup-worker"
	default:
		return "[unknown]"
	}
}

// CommitteeMember is one node's assignment within a committee.
type CommitteeMember struct {
	NodeID signature.PublicKey `json:"node_id"`
	Role   Role                `json:"role"`
}

// EpochRange is the inclusive-exclusive epoch span a committee is valid for.
type EpochRange struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"` // zero means "until superseded"
}

// Contains reports whether epoch e falls within the range.
func (r EpochRange) Contains(e uint64) bool {
	if e < r.From {
		return false
	}
	return r.To == 0 || e < r.To
}

// Committee describes the set of nodes responsible for a runtime during
// a span of epochs, including which one of them is the current leader.
type Committee struct {
	RuntimeID hash.Hash         `json:"runtime_id"`
	Kind      CommitteeKind     `json:"kind"`
	Members   []CommitteeMember `json:"members"`
	ValidFor  EpochRange        `json:"valid_for"`
}

// Leader returns the committee's leader member. ok is false if the
// committee has no leader, which callers must treat as a protocol error:
// a valid committee always has exactly one.
func (c *Committee) Leader() (member CommitteeMember, ok bool) {
	for _, m := range c.Members {
		if m.Role == Leader {
			return m, true
		}
	}
	return CommitteeMember{}, false
}

// NodeLookup resolves a node id into its full descriptor. The
// registry package provides the production implementation; tests
// substitute an in-memory map.
type NodeLookup interface {
	Node(ctx context.Context, id signature.PublicKey) (*common.Node, error)
}

// Watcher delivers a stream of Committee updates for a single
// (runtime, kind) pair. A closed Updates channel signals the end of
// the stream, which callers MUST treat as fatal.
type Watcher interface {
	Updates() <-chan *Committee
	Close()
}
