package api

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oasislabs/enclaved-compute/common/crypto/signature"
)

func TestCommitteeLeader(t *testing.T) {
	var leaderKey, workerKey signature.PublicKey
	leaderKey[0] = 1
	workerKey[0] = 2

	c := Committee{
		Members: []CommitteeMember{
			{NodeID: workerKey, Role: Worker},
			{NodeID: leaderKey, Role: Leader},
		},
	}

	member, ok := c.Leader()
	require.True(t, ok, "Leader() on committee with a leader")
	require.Equal(t, leaderKey, member.NodeID)

	empty := Committee{Members: []CommitteeMember{{NodeID: workerKey, Role: Worker}}}
	_, ok = empty.Leader()
	require.False(t, ok, "Leader() on committee missing a leader")
}

func TestEpochRangeContains(t *testing.T) {
	r := EpochRange{From: 10, To: 20}
	require.False(t, r.Contains(9))
	require.True(t, r.Contains(10))
	require.True(t, r.Contains(19))
	require.False(t, r.Contains(20))

	open := EpochRange{From: 10, To: 0}
	require.True(t, open.Contains(10))
	require.True(t, open.Contains(1000))
	require.False(t, open.Contains(9))
}
