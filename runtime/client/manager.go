// Package client implements the Runtime Client Manager: it tracks the
// current compute committee leader for a runtime and routes calls to
// it, retrying once across an epoch transition.
package client

import (
	"context"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"github.com/oasislabs/enclaved-compute/common"
	"github.com/oasislabs/enclaved-compute/common/crypto/signature"
	"github.com/oasislabs/enclaved-compute/common/logging"
	"github.com/oasislabs/enclaved-compute/runtime/host/protocol"
	"github.com/oasislabs/enclaved-compute/scheduler/api"
)

var logger = logging.GetLogger("runtime/client")

// leaderCaller is the subset of *LeaderClient the Manager depends on.
// Tests substitute a fake to exercise leader-swap logic without a real
// gRPC dial.
type leaderCaller interface {
	Call(ctx context.Context, method string, args []byte) ([]byte, error)
	Shutdown()
}

// leader pairs a dialed leaderCaller with the id of the node it was
// dialed from, so a later log line or metric can name which node is
// currently serving calls.
type leader struct {
	nodeID signature.PublicKey
	client leaderCaller
}

// Manager routes runtime calls to the current compute committee
// leader, re-resolving the leader whenever the committee changes.
type Manager struct {
	runtimeID common.Namespace

	nodes   api.NodeLookup
	watcher api.Watcher
	dial    func(ctx context.Context, node *common.Node) (leaderCaller, error)

	mu          sync.RWMutex
	current     *leader
	firstLeader chan struct{}
	closedFirst bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewManager creates a Manager and starts its committee-follower
// goroutine. Call Close to stop it and release the watcher.
func NewManager(runtimeID common.Namespace, nodes api.NodeLookup, watcher api.Watcher) *Manager {
	m := &Manager{
		runtimeID:   runtimeID,
		nodes:       nodes,
		watcher:     watcher,
		dial:        dialLeaderCaller,
		firstLeader: make(chan struct{}),
		stop:        make(chan struct{}),
	}

	m.wg.Add(1)
	go m.followCommittees()

	return m
}

// Close stops the committee-follower goroutine and shuts down the
// current leader client, if any.
func (m *Manager) Close() {
	close(m.stop)
	m.wg.Wait()
	m.watcher.Close()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.client.Shutdown()
		m.current = nil
	}
}

func (m *Manager) followCommittees() {
	defer m.wg.Done()

	for {
		select {
		case <-m.stop:
			return
		case committee, ok := <-m.watcher.Updates():
			if !ok {
				logger.Error("committee update stream ended unexpectedly")
				panic("runtime/client: committee update stream ended unexpectedly")
			}
			m.handleCommittee(committee)
		}
	}
}

func (m *Manager) handleCommittee(committee *api.Committee) {
	member, ok := committee.Leader()
	if !ok {
		logger.Warn("committee has no leader, waiting for the next update")
		return
	}

	m.mu.RLock()
	unchanged := m.current != nil && m.current.nodeID.Equal(member.NodeID)
	m.mu.RUnlock()
	if unchanged {
		return
	}

	node, err := m.nodes.Node(context.Background(), member.NodeID)
	if err != nil {
		logger.Error("failed to resolve new leader's node descriptor", "err", err, "node_id", member.NodeID, "runtime_id", m.runtimeID)
		return
	}

	newClient, err := m.dial(context.Background(), node)
	if err != nil {
		logger.Error("failed to dial new leader", "err", err, "node_id", member.NodeID, "runtime_id", m.runtimeID)
		return
	}

	logger.Info("compute committee leader changed", "node_id", member.NodeID, "runtime_id", m.runtimeID)

	m.mu.Lock()
	previous := m.current
	m.current = &leader{nodeID: member.NodeID, client: newClient}
	if !m.closedFirst {
		m.closedFirst = true
		close(m.firstLeader)
	}
	m.mu.Unlock()

	if previous != nil {
		previous.client.Shutdown()
	}
}

func (m *Manager) callLeader(ctx context.Context, method string, args []byte) ([]byte, error) {
	m.mu.RLock()
	cur := m.current
	m.mu.RUnlock()

	if cur == nil {
		select {
		case <-m.firstLeader:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		m.mu.RLock()
		cur = m.current
		m.mu.RUnlock()
	}

	return cur.client.Call(ctx, method, args)
}

// Call routes a runtime call to the current leader, retrying exactly
// once if the call is interrupted by an epoch transition. A second
// transition within the same call surfaces protocol.ErrTransitionShutdown
// to the caller rather than retrying further: two consecutive epoch
// transitions inside one round trip would indicate a deeper problem a
// retry loop would only mask.
func (m *Manager) Call(ctx context.Context, method string, args []byte) ([]byte, error) {
	var result []byte
	attempt := 0

	op := func() error {
		attempt++
		res, err := m.callLeader(ctx, method, args)
		if err != nil {
			if err == protocol.ErrTransitionShutdown && attempt < 2 {
				return err
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}

	if err := backoff.Retry(op, backoff.WithMaxRetries(backoff.NewConstantBackOff(0), 1)); err != nil {
		if perm, ok := err.(*backoff.PermanentError); ok {
			return nil, perm.Err
		}
		return nil, err
	}
	return result, nil
}

func dialLeaderCaller(ctx context.Context, node *common.Node) (leaderCaller, error) {
	return DialLeader(ctx, node)
}
