package commitment

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oasislabs/enclaved-compute/common/crypto/hash"
)

func TestConsistentHashComputeResultsHeader(t *testing.T) {
	empty := ComputeResultsHeader{}
	require.Equal(t,
		hash.FromHex("57d73e02609a00fcf4ca43cbf8c9f12867c46942d246fb2b0bce42cbdb8db844"),
		empty.EncodedHash(),
		"encoded hash of the zero-value ComputeResultsHeader",
	)

	emptyHash := hash.Empty()
	populated := ComputeResultsHeader{
		Round:        42,
		PreviousHash: empty.EncodedHash(),
		IORoot:       &emptyHash,
		StateRoot:    &emptyHash,
		MessagesHash: &emptyHash,
	}
	require.Equal(t,
		hash.FromHex("430ff02fafc53fc0e5eb432ad3e8b09167842a3948e09a7ee4bdd88e83e01d5a"),
		populated.EncodedHash(),
		"encoded hash of a populated ComputeResultsHeader",
	)
}
