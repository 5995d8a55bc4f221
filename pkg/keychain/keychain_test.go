package keychain

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/hopr-relay/core/pkg/pipeline"
	"github.com/hopr-relay/core/pkg/sphinx"
)

func newTestRing(t *testing.T) (*KeyRing, *btcec.PrivateKey) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return New(priv), priv
}

func TestDirectoryRoundTrip(t *testing.T) {
	ring, _ := newTestRing(t)

	peerPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	peer := pipeline.PeerID(peerPriv.PubKey().SerializeCompressed())

	var linkID [sphinx.LinkIDSize]byte
	linkID[0] = 0x01

	ring.AddPeer(peer, peerPriv.PubKey(), linkID)

	pub, err := ring.PubKeyFor(peer)
	require.NoError(t, err)
	require.True(t, pub.IsEqual(peerPriv.PubKey()))

	got, ok := ring.PeerForLinkID(linkID)
	require.True(t, ok)
	require.Equal(t, peer, got)

	ring.RemovePeer(peer)
	_, err = ring.PubKeyFor(peer)
	require.ErrorIs(t, err, ErrUnknownPeer)

	_, ok = ring.PeerForLinkID(linkID)
	require.False(t, ok)
}

func TestSignAndVerifyBytes(t *testing.T) {
	ring, priv := newTestRing(t)

	msg := []byte("some ticket-like payload")
	sig, err := ring.SignBytes(msg)
	require.NoError(t, err)

	require.True(t, VerifySignature(priv.PubKey(), msg, sig))
	require.False(t, VerifySignature(priv.PubKey(), []byte("tampered"), sig))
}

func TestLocalChainKeyStable(t *testing.T) {
	ring, _ := newTestRing(t)

	a := ring.LocalChainKey()
	b := ring.LocalChainKey()
	require.Equal(t, a, b)
}
