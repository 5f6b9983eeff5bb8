package tests

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oasislabs/enclaved-compute/common"
	"github.com/oasislabs/enclaved-compute/common/crypto/signature/signers/memory"
)

func TestMemoryBackendConformance(t *testing.T) {
	rak, err := memory.NewSigner()
	require.NoError(t, err, "NewSigner")

	var runtimeID common.Namespace
	runtimeID[0] = 7

	backend := NewMemoryBackend()
	defer backend.Cleanup()

	RootHashImplementationTests(t, backend, rak, runtimeID)
}
