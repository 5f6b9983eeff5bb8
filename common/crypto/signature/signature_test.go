package signature

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oasislabs/enclaved-compute/common/crypto/signature/signers/memory"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	signer, err := memory.NewSigner()
	require.NoError(t, err, "NewSigner()")

	context := []byte("test-context")
	message := []byte("the quick brown fox")

	sig, err := signer.ContextSign(context, message)
	require.NoError(t, err, "ContextSign()")

	ok := rawVerify(signer.Public(), context, message, sig)
	require.True(t, ok, "rawVerify() on matching context/message")

	ok = rawVerify(signer.Public(), []byte("other-context"), message, sig)
	require.False(t, ok, "rawVerify() must reject a mismatched context")

	ok = rawVerify(signer.Public(), context, []byte("tampered"), sig)
	require.False(t, ok, "rawVerify() must reject a tampered message")
}

func TestContextTooLong(t *testing.T) {
	signer, err := memory.NewSigner()
	require.NoError(t, err, "NewSigner()")

	_, err = signer.ContextSign(make([]byte, maxContextSize+1), []byte("x"))
	require.Equal(t, ErrContextTooLong, err, "ContextSign() with oversized context")
}

func TestSignCBORVerifyCBOR(t *testing.T) {
	signer, err := memory.NewSigner()
	require.NoError(t, err, "NewSigner()")

	type payload struct {
		Round uint64 `json:"round"`
	}

	context := []byte("oasis-core/roothash: compute results header")
	v := payload{Round: 42}

	sig, err := SignCBOR(signer, context, v)
	require.NoError(t, err, "SignCBOR()")
	require.True(t, VerifyCBOR(signer.Public(), context, v, sig), "VerifyCBOR()")

	other := payload{Round: 43}
	require.False(t, VerifyCBOR(signer.Public(), context, other, sig), "VerifyCBOR() on different value")
}

func TestVerifyManyToOne(t *testing.T) {
	a, err := memory.NewSigner()
	require.NoError(t, err, "NewSigner() a")
	b, err := memory.NewSigner()
	require.NoError(t, err, "NewSigner() b")
	outsider, err := memory.NewSigner()
	require.NoError(t, err, "NewSigner() outsider")

	context := []byte("many-to-one")
	message := []byte("batch digest")

	sigA, err := a.ContextSign(context, message)
	require.NoError(t, err, "ContextSign() a")
	sigOutsider, err := outsider.ContextSign(context, message)
	require.NoError(t, err, "ContextSign() outsider")

	expected := map[PublicKey]bool{a.Public(): true, b.Public(): true}

	bundles := []SignatureBundle{
		{PublicKey: outsider.Public(), Signature: sigOutsider},
		{PublicKey: a.Public(), Signature: sigA},
	}
	require.True(t, VerifyManyToOne(context, message, bundles, expected), "VerifyManyToOne() with one expected signer present")

	bundles = []SignatureBundle{
		{PublicKey: outsider.Public(), Signature: sigOutsider},
	}
	require.False(t, VerifyManyToOne(context, message, bundles, expected), "VerifyManyToOne() with no expected signer present")
}
