package block

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oasislabs/enclaved-compute/common"
	"github.com/oasislabs/enclaved-compute/common/crypto/hash"
)

func namespaceFromHash(h hash.Hash) common.Namespace {
	var n common.Namespace
	copy(n[:], h[:])
	return n
}

func TestConsistentHashHeader(t *testing.T) {
	empty := Header{}
	require.Equal(t,
		hash.FromHex("f7f340550630426b4962c3054cb7f21cf3662bd916642daff4efc9a00b4aab3f"),
		empty.EncodedHash(),
		"encoded hash of the zero-value Header",
	)

	populated := Header{
		Version:      42,
		Namespace:    namespaceFromHash(hash.Empty()),
		Round:        1000,
		Timestamp:    1560257841,
		HeaderType:   RoundFailed,
		PreviousHash: empty.EncodedHash(),
		IORoot:       hash.Empty(),
		StateRoot:    hash.Empty(),
		MessagesHash: hash.Empty(),
	}
	require.Equal(t,
		hash.FromHex("e5f8d6958fdedf15e705cb8fc8e2515d870c79d80dd2fa17f35c9e307ca4215a"),
		populated.EncodedHash(),
		"encoded hash of a populated Header",
	)
}

func TestMessagesHash(t *testing.T) {
	require.Equal(t,
		hash.FromHex("c672b8d1ef56ed28ab87c3622c5114069bdd3ad7b8f9737498d0c01ecef0967a"),
		MessagesHash(nil),
		"hash of an empty message sequence",
	)
}
