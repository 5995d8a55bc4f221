package sphinx

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func TestSerializeParseAlphaRoundTrip(t *testing.T) {
	t.Parallel()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	point := scalarBaseMult(&priv.Key)
	alpha := serializeAlpha(point)

	parsed, err := parseAlpha(alpha)
	require.NoError(t, err)
	require.True(t, parsed.X.Equals(&point.X))
	require.True(t, parsed.Y.Equals(&point.Y))
}

func TestParseAlphaRejectsGarbage(t *testing.T) {
	t.Parallel()

	var garbage [AlphaSize]byte
	_, err := parseAlpha(garbage)
	require.ErrorIs(t, err, ErrInvalidAlpha)
}

func TestECDHAgreement(t *testing.T) {
	t.Parallel()

	relayerKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	x, err := generateEphemeralScalar()
	require.NoError(t, err)

	alphaPoint := scalarBaseMult(x)

	var relayerPoint btcec.JacobianPoint
	relayerKey.PubKey().AsJacobian(&relayerPoint)
	senderSide := scalarMult(&relayerPoint, x)

	relayerSide := scalarMult(alphaPoint, &relayerKey.Key)

	require.Equal(
		t, deriveSharedSecret(senderSide), deriveSharedSecret(relayerSide),
	)
}

func TestHeaderStreamIsDeterministic(t *testing.T) {
	t.Parallel()

	var secret [32]byte
	copy(secret[:], "a fixed 32 byte secret, padded!")

	a := newHeaderStream(secret).filler(64)
	b := newHeaderStream(secret).filler(64)
	require.Equal(t, a, b)
}
