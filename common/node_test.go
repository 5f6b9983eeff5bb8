package common

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oasislabs/enclaved-compute/common/crypto/hash"
)

func TestRuntimeForID(t *testing.T) {
	var id1, id2 hash.Hash
	id1[0] = 1
	id2[0] = 2

	n := Node{
		Runtimes: []RuntimeCapability{
			{ID: id1},
			{ID: id2, TEE: &CapabilityTEE{Hardware: TEEHardwareIntelSGX}},
		},
	}

	rt := n.RuntimeForID(id2)
	require.NotNil(t, rt, "RuntimeForID on a configured runtime")
	require.Equal(t, TEEHardwareIntelSGX, rt.TEE.Hardware)

	var missing hash.Hash
	missing[0] = 3
	require.Nil(t, n.RuntimeForID(missing), "RuntimeForID on an unconfigured runtime")
}
