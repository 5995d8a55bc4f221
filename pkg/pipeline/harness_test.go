package pipeline_test

import (
	"crypto/rand"
	"math/big"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/hopr-relay/core/pkg/chain"
	"github.com/hopr-relay/core/pkg/keychain"
	"github.com/hopr-relay/core/pkg/metrics"
	"github.com/hopr-relay/core/pkg/pipeline"
	"github.com/hopr-relay/core/pkg/store"
	"github.com/hopr-relay/core/pkg/surb"
	"github.com/hopr-relay/core/pkg/tagcache"
	"github.com/hopr-relay/core/pkg/ticket"
)

// relayNode bundles one simulated relay's collaborators, wired the same way
// cmd/relaynode wires a real one, against a chain.Memory shared by every
// node in a test network.
type relayNode struct {
	priv     *btcec.PrivateKey
	peerID   pipeline.PeerID
	chainKey [20]byte

	keys    *keychain.KeyRing
	tickets *ticket.Manager
	surbs   *surb.Store
	tags    *tagcache.Cache
	metrics *metrics.Relay
	acks    *pipeline.AckTracker

	Encoder *pipeline.Encoder
	Decoder *pipeline.Decoder
}

// newRelayNode constructs a fully wired node against mem and registers it
// with itself as a known peer, so a 0-hop path addressed to its own peer id
// resolves (spec.md §9 Scenario A).
func newRelayNode(t *testing.T, mem *chain.Memory) *relayNode {
	t.Helper()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	keys := keychain.New(priv)
	peerID := pipeline.PeerID(priv.PubKey().SerializeCompressed())
	chainKey := keys.LocalChainKey()

	mem.PacketToChain[string(peerID)] = chainKey
	keys.AddPeer(peerID, priv.PubKey(), linkIDFor(peerID))

	m := metrics.NewRelay()
	tickets := ticket.NewManager(store.NewMemoryStore())
	surbs := surb.NewStore(surb.Config{
		Capacity:          16,
		DistressThreshold: 2,
		TTL:               time.Hour,
		SweepInterval:     time.Hour,
	})
	t.Cleanup(surbs.Stop)
	tags := tagcache.New(time.Minute)

	acks := pipeline.NewAckTracker(keys.PacketPubKey(), tickets, pipeline.DefaultWinningTicketQueueCapacity, m)
	t.Cleanup(acks.Stop)

	n := &relayNode{
		priv: priv, peerID: peerID, chainKey: chainKey,
		keys: keys, tickets: tickets, surbs: surbs, tags: tags, metrics: m, acks: acks,
	}

	n.Encoder = pipeline.NewEncoder(pipeline.EncoderConfig{
		Chain: mem, Keys: mem, Values: mem,
		Tickets: tickets, Surbs: surbs, PubKeys: keys, Signer: keys, Acks: acks, Metrics: m,
	})
	n.Decoder = pipeline.NewDecoder(pipeline.DecoderConfig{
		Chain: mem, Keys: mem, Values: mem,
		Tickets: tickets, Surbs: surbs, Tags: tags, PubKeys: keys, Signer: keys, Verifier: keys, LocalKey: priv,
		Acks: acks, Reassembler: pipeline.NewSurbReassembler(), Metrics: m,
	})

	return n
}

// linkIDFor mirrors pkg/pipeline's internal linkIDFor: the first
// sphinx.LinkIDSize bytes of a peer's packet public key.
func linkIDFor(peer pipeline.PeerID) [8]byte {
	var out [8]byte
	copy(out[:], peer)
	return out
}

// linkPeers registers a and b in each other's peer directories, as if they
// had already discovered one another off-chain.
func linkPeers(a, b *relayNode) {
	a.keys.AddPeer(b.peerID, b.priv.PubKey(), linkIDFor(b.peerID))
	b.keys.AddPeer(a.peerID, a.priv.PubKey(), linkIDFor(a.peerID))
}

// openChannel opens an on-chain channel from -> to with the given balance,
// returning its id.
func openChannel(t *testing.T, mem *chain.Memory, from, to *relayNode, balance *big.Int) [32]byte {
	t.Helper()

	var id [32]byte
	_, err := rand.Read(id[:])
	require.NoError(t, err)

	mem.Channels[id] = chain.Channel{
		ID:          id,
		Source:      from.chainKey,
		Destination: to.chainKey,
		Balance:     balance,
		Epoch:       0,
		Status:      chain.Open,
		TicketIndex: 0,
	}
	return id
}
