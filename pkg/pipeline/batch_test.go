package pipeline_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hopr-relay/core/pkg/chain"
	"github.com/hopr-relay/core/pkg/pipeline"
)

// TestFromRecvBatch checks that FromRecvBatch returns results and errors
// index-aligned with its input even when some packets in the batch are
// replays of one another or outright malformed, and that a genuine replay
// race within one batch still drops exactly one of the two duplicates.
func TestFromRecvBatch(t *testing.T) {
	t.Parallel()

	mem := chain.NewMemory()
	mem.MinimumWinProb = 1.0

	s := newRelayNode(t, mem)
	a := newRelayNode(t, mem)
	linkPeers(s, a)
	openChannel(t, mem, s, a, big.NewInt(1_000_000))

	out1, _, err := s.Encoder.ToSend(pipeline.EncodeRequest{
		Payload: pipeline.EncodeDataPayload([]byte("one")),
		Routing: pipeline.RoutingDecision{Kind: pipeline.RouteForward, Hops: []pipeline.PeerID{a.peerID}},
		NoAck:   true,
	})
	require.NoError(t, err)

	out2, _, err := s.Encoder.ToSend(pipeline.EncodeRequest{
		Payload: pipeline.EncodeDataPayload([]byte("two")),
		Routing: pipeline.RoutingDecision{Kind: pipeline.RouteForward, Hops: []pipeline.PeerID{a.peerID}},
		NoAck:   true,
	})
	require.NoError(t, err)

	raws := [][]byte{out1.Bytes, out1.Bytes, out2.Bytes, make([]byte, 4)}
	senders := []pipeline.PeerID{s.peerID, s.peerID, s.peerID, s.peerID}

	results, errs := a.Decoder.FromRecvBatch(raws, senders)
	require.Len(t, results, 4)
	require.Len(t, errs, 4)

	// Both entries 0 and 1 decode the same wire bytes; exactly one of the
	// concurrent goroutines wins the tag-cache insert, so which index
	// succeeds is not guaranteed, only that exactly one does.
	firstOK := errs[0] == nil
	secondOK := errs[1] == nil
	require.True(t, firstOK != secondOK, "exactly one of the duplicate submissions should succeed")
	if firstOK {
		require.Equal(t, pipeline.IncomingFinal, results[0].Action)
		require.ErrorIs(t, errs[1], pipeline.ErrDropped)
		require.Nil(t, results[1])
	} else {
		require.Equal(t, pipeline.IncomingFinal, results[1].Action)
		require.ErrorIs(t, errs[0], pipeline.ErrDropped)
		require.Nil(t, results[0])
	}

	require.NoError(t, errs[2])
	require.Equal(t, pipeline.IncomingFinal, results[2].Action)
	require.Equal(t, []byte("two"), results[2].Plaintext)

	require.Error(t, errs[3])
	require.Nil(t, results[3])
}
