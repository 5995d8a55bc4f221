package pipeline_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hopr-relay/core/pkg/chain"
	"github.com/hopr-relay/core/pkg/pipeline"
	"github.com/hopr-relay/core/pkg/ticket"
)

// TestScenarioA_ZeroHopFinal covers spec.md §9 Scenario A: a sender whose
// own peer id is the destination of a 1-hop path is delivered Final
// directly, with no intermediate relaying.
func TestScenarioA_ZeroHopFinal(t *testing.T) {
	t.Parallel()

	mem := chain.NewMemory()
	s := newRelayNode(t, mem)
	openChannel(t, mem, s, s, big.NewInt(1_000_000))

	out, _, err := s.Encoder.ToSend(pipeline.EncodeRequest{
		Payload: pipeline.EncodeDataPayload([]byte("hello")),
		Routing: pipeline.RoutingDecision{Kind: pipeline.RouteForward, Hops: []pipeline.PeerID{s.peerID}},
		NoAck:   true,
	})
	require.NoError(t, err)

	in, err := s.Decoder.FromRecv(out.Bytes, s.peerID)
	require.NoError(t, err)
	require.Equal(t, pipeline.IncomingFinal, in.Action)
	require.Equal(t, []byte("hello"), in.Plaintext)
}

// TestScenarioB_ThreeHopForward covers spec.md §9 Scenario B: a 3-hop
// forward path where every intermediate relayer re-wraps for the next hop,
// issues that hop's ticket bound to the challenge the sender embedded for it,
// and emits one ack
// back to whoever paid it.
func TestScenarioB_ThreeHopForward(t *testing.T) {
	t.Parallel()

	mem := chain.NewMemory()
	mem.MinimumWinProb = 1.0
	mem.TicketPrice = big.NewInt(1)

	s := newRelayNode(t, mem)
	a := newRelayNode(t, mem)
	b := newRelayNode(t, mem)
	c := newRelayNode(t, mem)

	linkPeers(s, a)
	linkPeers(s, b)
	linkPeers(s, c)
	linkPeers(a, b)
	linkPeers(b, c)

	openChannel(t, mem, s, a, big.NewInt(1_000_000))
	openChannel(t, mem, a, b, big.NewInt(1_000_000))
	openChannel(t, mem, b, c, big.NewInt(1_000_000))

	out, pending, err := s.Encoder.ToSend(pipeline.EncodeRequest{
		Payload: pipeline.EncodeDataPayload([]byte("abc")),
		Routing: pipeline.RoutingDecision{
			Kind: pipeline.RouteForward,
			Hops: []pipeline.PeerID{a.peerID, b.peerID, c.peerID},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, pending)
	require.Equal(t, a.peerID, out.NextPeer)

	inA, err := a.Decoder.FromRecv(out.Bytes, s.peerID)
	require.NoError(t, err)
	require.Equal(t, pipeline.IncomingForward, inA.Action)
	require.Equal(t, b.peerID, inA.NextHop)

	ackA, err := pipeline.DecodeAck(inA.Ack)
	require.NoError(t, err)
	outcomeA, err := s.acks.HandleAcknowledgement(ackA)
	require.NoError(t, err)
	require.Equal(t, pipeline.AckSender, outcomeA.Kind)

	inB, err := b.Decoder.FromRecv(inA.Bytes, a.peerID)
	require.NoError(t, err)
	require.Equal(t, pipeline.IncomingForward, inB.Action)
	require.Equal(t, c.peerID, inB.NextHop)

	ackB, err := pipeline.DecodeAck(inB.Ack)
	require.NoError(t, err)
	outcomeB, err := a.acks.HandleAcknowledgement(ackB)
	require.NoError(t, err)
	require.Equal(t, pipeline.AckRelayerWin, outcomeB.Kind)

	inC, err := c.Decoder.FromRecv(inB.Bytes, b.peerID)
	require.NoError(t, err)
	require.Equal(t, pipeline.IncomingFinal, inC.Action)
	require.Equal(t, []byte("abc"), inC.Plaintext)

	ackC, err := pipeline.DecodeAck(inC.Ack)
	require.NoError(t, err)
	outcomeC, err := b.acks.HandleAcknowledgement(ackC)
	require.NoError(t, err)
	require.Equal(t, pipeline.AckRelayerWin, outcomeC.Kind)
}

// TestScenarioC_ReplayedPacketDropped covers spec.md §9 Scenario C:
// resubmitting an already-processed packet to the same relayer is dropped
// without mutating tag-cache state beyond the original insert.
func TestScenarioC_ReplayedPacketDropped(t *testing.T) {
	t.Parallel()

	mem := chain.NewMemory()
	mem.MinimumWinProb = 1.0

	s := newRelayNode(t, mem)
	a := newRelayNode(t, mem)
	b := newRelayNode(t, mem)

	linkPeers(s, a)
	linkPeers(s, b)
	linkPeers(a, b)

	openChannel(t, mem, s, a, big.NewInt(1_000_000))
	openChannel(t, mem, a, b, big.NewInt(1_000_000))

	out, _, err := s.Encoder.ToSend(pipeline.EncodeRequest{
		Payload: pipeline.EncodeDataPayload([]byte("x")),
		Routing: pipeline.RoutingDecision{Kind: pipeline.RouteForward, Hops: []pipeline.PeerID{a.peerID, b.peerID}},
		NoAck:   true,
	})
	require.NoError(t, err)

	first, err := a.Decoder.FromRecv(out.Bytes, s.peerID)
	require.NoError(t, err)
	require.Equal(t, pipeline.IncomingForward, first.Action)

	tagsBefore := a.tags.Len()

	second, err := a.Decoder.FromRecv(out.Bytes, s.peerID)
	require.ErrorIs(t, err, pipeline.ErrDropped)
	require.Nil(t, second)
	require.Equal(t, tagsBefore, a.tags.Len())
}

// TestScenarioF_ChannelEpochRotation covers spec.md §9 Scenario F: once a
// channel's epoch rotates, a ticket issued against the old epoch is
// rejected on arrival, and EvictEpoch drops the old-epoch ticket the relayer
// had already recorded rather than leaving it Untouched indefinitely.
func TestScenarioF_ChannelEpochRotation(t *testing.T) {
	t.Parallel()

	mem := chain.NewMemory()
	mem.MinimumWinProb = 1.0

	s := newRelayNode(t, mem)
	a := newRelayNode(t, mem)
	b := newRelayNode(t, mem)

	linkPeers(s, a)
	linkPeers(s, b)
	linkPeers(a, b)

	chSA := openChannel(t, mem, s, a, big.NewInt(1_000_000))
	openChannel(t, mem, a, b, big.NewInt(1_000_000))

	out1, _, err := s.Encoder.ToSend(pipeline.EncodeRequest{
		Payload: pipeline.EncodeDataPayload([]byte("one")),
		Routing: pipeline.RoutingDecision{Kind: pipeline.RouteForward, Hops: []pipeline.PeerID{a.peerID, b.peerID}},
		NoAck:   true,
	})
	require.NoError(t, err)

	_, err = a.Decoder.FromRecv(out1.Bytes, s.peerID)
	require.NoError(t, err)

	stats := a.tickets.StatsFor(chSA)
	require.Equal(t, uint64(1), stats.Untouched)

	// A second packet is issued while the channel is still at epoch 0, but
	// only arrives at the relayer after the channel has closed and
	// reopened at a new epoch.
	out2, _, err := s.Encoder.ToSend(pipeline.EncodeRequest{
		Payload: pipeline.EncodeDataPayload([]byte("two")),
		Routing: pipeline.RoutingDecision{Kind: pipeline.RouteForward, Hops: []pipeline.PeerID{a.peerID, b.peerID}},
		NoAck:   true,
	})
	require.NoError(t, err)

	rotated := mem.Channels[chSA]
	rotated.Epoch = 1
	mem.Channels[chSA] = rotated

	_, err = a.Decoder.FromRecv(out2.Bytes, s.peerID)
	require.ErrorIs(t, err, ticket.ErrEpochMismatch)

	evicted := a.tickets.EvictEpoch(chSA, 0)
	require.Equal(t, 1, evicted)
	require.Equal(t, ticket.Stats{}, a.tickets.StatsFor(chSA))
}
