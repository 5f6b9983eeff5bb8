package client

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oasislabs/enclaved-compute/common"
	"github.com/oasislabs/enclaved-compute/common/crypto/signature"
	"github.com/oasislabs/enclaved-compute/runtime/host/protocol"
	"github.com/oasislabs/enclaved-compute/scheduler/api"
)

type fakeNodeLookup struct {
	nodes map[signature.PublicKey]*common.Node
}

func (f *fakeNodeLookup) Node(ctx context.Context, id signature.PublicKey) (*common.Node, error) {
	n, ok := f.nodes[id]
	if !ok {
		return nil, fmt.Errorf("unknown node %s", id)
	}
	return n, nil
}

type fakeWatcher struct {
	ch     chan *api.Committee
	closed bool
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{ch: make(chan *api.Committee, 4)}
}

func (f *fakeWatcher) Updates() <-chan *api.Committee { return f.ch }
func (f *fakeWatcher) Close() {
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
}

type fakeLeaderCaller struct {
	name       string
	shutdownCh chan struct{}
	mu         sync.Mutex
	shutdown   bool

	// pinned, if non-nil, is closed by Call as soon as it is entered and
	// before Call does anything else. release, if non-nil, is then
	// waited on before Call returns pinnedErr. This lets a test hold a
	// call in flight against this leader until it has observed some
	// other state change (e.g. a leader swap) and only then let the
	// call complete.
	pinned    chan struct{}
	release   chan struct{}
	pinnedErr error
}

func newFakeLeaderCaller(name string) *fakeLeaderCaller {
	return &fakeLeaderCaller{name: name, shutdownCh: make(chan struct{})}
}

func (f *fakeLeaderCaller) Call(ctx context.Context, method string, args []byte) ([]byte, error) {
	if f.pinned != nil {
		close(f.pinned)
		<-f.release
		return nil, f.pinnedErr
	}

	f.mu.Lock()
	down := f.shutdown
	f.mu.Unlock()
	if down {
		return nil, protocol.ErrTransitionShutdown
	}
	return []byte(f.name + ":" + method), nil
}

func (f *fakeLeaderCaller) Shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.shutdown {
		f.shutdown = true
		close(f.shutdownCh)
	}
}

func newTestManager(t *testing.T, nodes *fakeNodeLookup, watcher *fakeWatcher, dialers map[signature.PublicKey]*fakeLeaderCaller) *Manager {
	var runtimeID common.Namespace
	m := &Manager{
		runtimeID:   runtimeID,
		nodes:       nodes,
		watcher:     watcher,
		firstLeader: make(chan struct{}),
		stop:        make(chan struct{}),
	}
	m.dial = func(ctx context.Context, node *common.Node) (leaderCaller, error) {
		c, ok := dialers[node.ID]
		require.True(t, ok, "unexpected dial for node %s", node.ID)
		return c, nil
	}
	m.wg.Add(1)
	go m.followCommittees()
	return m
}

func TestManagerRoutesToLeader(t *testing.T) {
	var nodeID signature.PublicKey
	nodeID[0] = 1

	nodes := &fakeNodeLookup{nodes: map[signature.PublicKey]*common.Node{nodeID: {ID: nodeID}}}
	watcher := newFakeWatcher()
	leaderClient := newFakeLeaderCaller("leader-1")

	m := newTestManager(t, nodes, watcher, map[signature.PublicKey]*fakeLeaderCaller{nodeID: leaderClient})
	defer m.Close()

	watcher.ch <- &api.Committee{Members: []api.CommitteeMember{{NodeID: nodeID, Role: api.Leader}}}

	waitForLeader(t, m)

	result, err := m.Call(context.Background(), "echo", []byte("hi"))
	require.NoError(t, err)
	require.Equal(t, "leader-1:echo", string(result))
}

func TestManagerSwapsLeaderAndShutsDownPrevious(t *testing.T) {
	var n1, n2 signature.PublicKey
	n1[0], n2[0] = 1, 2

	nodes := &fakeNodeLookup{nodes: map[signature.PublicKey]*common.Node{
		n1: {ID: n1},
		n2: {ID: n2},
	}}
	watcher := newFakeWatcher()
	c1, c2 := newFakeLeaderCaller("leader-1"), newFakeLeaderCaller("leader-2")

	m := newTestManager(t, nodes, watcher, map[signature.PublicKey]*fakeLeaderCaller{n1: c1, n2: c2})
	defer m.Close()

	watcher.ch <- &api.Committee{Members: []api.CommitteeMember{{NodeID: n1, Role: api.Leader}}}
	waitForLeader(t, m)

	watcher.ch <- &api.Committee{Members: []api.CommitteeMember{{NodeID: n2, Role: api.Leader}}}

	require.Eventually(t, func() bool {
		select {
		case <-c1.shutdownCh:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond, "previous leader must be shut down")

	result, err := m.Call(context.Background(), "echo", nil)
	require.NoError(t, err)
	require.Equal(t, "leader-2:echo", string(result))
}

func TestManagerCallWaitsForFirstLeader(t *testing.T) {
	var nodeID signature.PublicKey
	nodeID[0] = 1

	nodes := &fakeNodeLookup{nodes: map[signature.PublicKey]*common.Node{nodeID: {ID: nodeID}}}
	watcher := newFakeWatcher()
	leaderClient := newFakeLeaderCaller("leader-1")

	m := newTestManager(t, nodes, watcher, map[signature.PublicKey]*fakeLeaderCaller{nodeID: leaderClient})
	defer m.Close()

	resultCh := make(chan []byte, 1)
	go func() {
		res, err := m.Call(context.Background(), "echo", nil)
		require.NoError(t, err)
		resultCh <- res
	}()

	time.Sleep(20 * time.Millisecond)
	watcher.ch <- &api.Committee{Members: []api.CommitteeMember{{NodeID: nodeID, Role: api.Leader}}}

	select {
	case res := <-resultCh:
		require.Equal(t, "leader-1:echo", string(res))
	case <-time.After(time.Second):
		t.Fatal("Call never returned after the first leader appeared")
	}
}

func TestManagerMissingLeaderIsIgnored(t *testing.T) {
	nodes := &fakeNodeLookup{nodes: map[signature.PublicKey]*common.Node{}}
	watcher := newFakeWatcher()

	m := newTestManager(t, nodes, watcher, nil)
	defer m.Close()

	watcher.ch <- &api.Committee{Members: []api.CommitteeMember{{Role: api.Worker}}}

	select {
	case <-m.firstLeader:
		t.Fatal("firstLeader must not fire for a leaderless committee")
	case <-time.After(50 * time.Millisecond):
	}
}

// TestManagerRetriesOnInFlightLeaderSwap exercises the retry path in
// Call itself: a call already in progress against leader-1 receives
// ErrTransitionShutdown after the committee has already swapped to
// leader-2, and the single retry must transparently route it to
// leader-2 rather than surfacing the error to the caller.
func TestManagerRetriesOnInFlightLeaderSwap(t *testing.T) {
	var n1, n2 signature.PublicKey
	n1[0], n2[0] = 1, 2

	nodes := &fakeNodeLookup{nodes: map[signature.PublicKey]*common.Node{
		n1: {ID: n1},
		n2: {ID: n2},
	}}
	watcher := newFakeWatcher()
	c1 := newFakeLeaderCaller("leader-1")
	c1.pinned = make(chan struct{})
	c1.release = make(chan struct{})
	c1.pinnedErr = protocol.ErrTransitionShutdown
	c2 := newFakeLeaderCaller("leader-2")

	m := newTestManager(t, nodes, watcher, map[signature.PublicKey]*fakeLeaderCaller{n1: c1, n2: c2})
	defer m.Close()

	watcher.ch <- &api.Committee{Members: []api.CommitteeMember{{NodeID: n1, Role: api.Leader}}}
	waitForLeader(t, m)

	resultCh := make(chan []byte, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := m.Call(context.Background(), "echo", []byte("hi"))
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- res
	}()

	select {
	case <-c1.pinned:
	case <-time.After(time.Second):
		t.Fatal("Call never reached leader-1")
	}

	watcher.ch <- &api.Committee{Members: []api.CommitteeMember{{NodeID: n2, Role: api.Leader}}}
	require.Eventually(t, func() bool {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.current != nil && m.current.nodeID.Equal(n2)
	}, time.Second, 10*time.Millisecond, "leader must swap to leader-2 before the in-flight call is released")

	close(c1.release)

	select {
	case res := <-resultCh:
		require.Equal(t, "leader-2:echo", string(res))
	case err := <-errCh:
		t.Fatalf("Call returned an error instead of retrying against the new leader: %v", err)
	case <-time.After(time.Second):
		t.Fatal("Call never returned after the retry")
	}
}

func waitForLeader(t *testing.T, m *Manager) {
	t.Helper()
	select {
	case <-m.firstLeader:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a leader to be selected")
	}
}
