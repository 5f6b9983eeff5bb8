package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oasislabs/enclaved-compute/common"
	"github.com/oasislabs/enclaved-compute/common/crypto/signature"
	"github.com/oasislabs/enclaved-compute/common/crypto/signature/signers/memory"
)

func signedNode(t *testing.T) (*common.Node, signature.Signature) {
	signer, err := memory.NewSigner()
	require.NoError(t, err)

	n := &common.Node{ID: signer.Public(), Expiration: 100}
	sig, err := signature.SignCBOR(signer, RegisterNodeSignatureContext, n)
	require.NoError(t, err)
	return n, sig
}

func TestRegisterAndLookupNode(t *testing.T) {
	r := New()
	n, sig := signedNode(t)

	require.NoError(t, r.RegisterNode(n, &sig))

	got, err := r.Node(context.Background(), n.ID)
	require.NoError(t, err)
	require.Equal(t, n, got)
}

func TestNodeNotFound(t *testing.T) {
	r := New()
	var id signature.PublicKey
	_, err := r.Node(context.Background(), id)
	require.Equal(t, ErrNodeNotFound, err)
}

func TestRegisterNodeRejectsBadSignature(t *testing.T) {
	r := New()
	n, _ := signedNode(t)
	var badSig signature.Signature

	err := r.RegisterNode(n, &badSig)
	require.Equal(t, ErrInvalidSignature, err)

	_, err = r.Node(context.Background(), n.ID)
	require.Equal(t, ErrNodeNotFound, err)
}

func TestWatchNodesReceivesRegistration(t *testing.T) {
	r := New()
	ch, sub := r.WatchNodes()
	defer sub.Close()

	n, sig := signedNode(t)
	require.NoError(t, r.RegisterNode(n, &sig))

	select {
	case ev := <-ch:
		require.True(t, ev.IsRegistration)
		require.Equal(t, n.ID, ev.Node.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for node event")
	}
}
