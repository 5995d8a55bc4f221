// Package pipeline wires together the packet codec, Proof-of-Relay, ticket
// manager, SURB store and tag cache into the two long-lived tasks spec.md
// §4.6 describes: an Encoder that turns application payloads into wire
// packets, and a Decoder that turns wire bytes back into forward/final
// outcomes.
package pipeline

import (
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/hopr-relay/core/pkg/chain"
	"github.com/hopr-relay/core/pkg/fn"
	"github.com/hopr-relay/core/pkg/por"
	"github.com/hopr-relay/core/pkg/sphinx"
	"github.com/hopr-relay/core/pkg/surb"
)

// PeerID identifies a node by its off-chain packet public key.
type PeerID []byte

// RoutingKind discriminates the two ways a caller can ask the Encoder to
// route a payload (spec.md §4.6 step 1).
type RoutingKind int

const (
	// RouteForward sends the payload along an explicit multi-hop path.
	RouteForward RoutingKind = iota

	// RouteSurbReturn replies to an anonymous sender using a previously
	// received SURB, identified by pseudonym.
	RouteSurbReturn
)

// RoutingDecision selects how the Encoder should route a payload.
type RoutingDecision struct {
	Kind RoutingKind

	// Hops names the forward path by peer id, used when Kind ==
	// RouteForward. hops[len(Hops)-1] is the final destination.
	Hops []PeerID

	// Pseudonym selects which SURB bucket to pop from, used when Kind ==
	// RouteSurbReturn.
	Pseudonym surb.Pseudonym

	// SurbMatcher optionally pins RouteSurbReturn to one specific SURB
	// rather than the oldest available.
	SurbMatcher FoundSurbMatcher
}

// FoundSurbMatcherKind discriminates FindSurb's two lookup modes (spec.md
// §6 "find_surb(matcher)").
type FoundSurbMatcherKind int

const (
	// MatchByPseudonym pops the oldest SURB under a pseudonym.
	MatchByPseudonym FoundSurbMatcherKind = iota

	// MatchExact pops a specific SURB by id, only if it is at the front
	// of its pseudonym's queue.
	MatchExact
)

// FoundSurbMatcher is the query FindSurb accepts.
type FoundSurbMatcher struct {
	Kind      FoundSurbMatcherKind
	Pseudonym surb.Pseudonym
	ID        surb.ID
}

// EncodeRequest bundles everything to_send needs (spec.md §4.6 "Encoder").
type EncodeRequest struct {
	// Payload is onion-encrypted as-is; callers addressing a final hop
	// should wrap it with EncodeDataPayload (or one of EncodeSurbChunks'
	// chunks) first, so the destination's Decoder can tell application
	// data apart from an in-flight SURB transfer.
	Payload []byte
	Routing RoutingDecision
	Signals Signals
	NoAck   bool
}

// Signals carries the per-send overrides spec.md §4.6 step 1/2 allow a
// caller to supply instead of the chain-read defaults.
type Signals struct {
	WinProbOverride fn.Option[float64]
	PriceOverride   fn.Option[*big.Int]
}

// OutgoingPacket is what to_send hands back to the wire sink (spec.md §6).
type OutgoingPacket struct {
	NextPeer PeerID
	Bytes    []byte
}

// IncomingAction discriminates from_recv's two outcomes.
type IncomingAction int

const (
	IncomingFinal IncomingAction = iota
	IncomingForward
)

// IncomingPacket is from_recv's result (spec.md §6).
type IncomingPacket struct {
	Action IncomingAction

	// Plaintext is populated when Action == IncomingFinal.
	Plaintext []byte

	// NextHop and Bytes are populated when Action == IncomingForward.
	NextHop PeerID
	Bytes   []byte

	// Ack is the acknowledgement material to return to the previous hop,
	// populated for every successfully decoded packet, final or forward.
	Ack []byte
}

// AckOutcomeKind discriminates handle_acknowledgement's three outcomes
// (spec.md §6).
type AckOutcomeKind int

const (
	// AckSender indicates the local node was the original sender and the
	// acknowledgement confirms delivery of the named challenge.
	AckSender AckOutcomeKind = iota

	// AckRelayerWin indicates the local node relayed the packet, the
	// downstream half-key completes a winning response, and the named
	// ticket is now redeemable.
	AckRelayerWin

	// AckRelayerLoss indicates the local node relayed the packet but the
	// completed response did not win; the ticket is discarded.
	AckRelayerLoss
)

// AckOutcome is handle_acknowledgement's result.
type AckOutcome struct {
	Kind      AckOutcomeKind
	Challenge por.Challenge
	Ticket    []byte
}

// hopPlan is the Encoder's internal resolved routing plan: concrete Sphinx
// path hops, PoR shares, and the first-hop ticket, built from a
// RoutingDecision before calling sphinx.Wrap.
type hopPlan struct {
	path     []sphinx.PathHop
	shares   [][sphinx.RelayerMetaSize]byte
	channels []chain.Channel
	nextPeer PeerID

	// surbReply is set instead of path/channels when routing a reply via
	// a previously received SURB.
	surbReply *surb.SURB
}

// relayerKeyLookup resolves a PeerID to the long-term public key used for
// Sphinx KEM, via chain.KeyOps plus an out-of-band packet-key directory
// (the chain trait only maps packet keys to chain addresses, not to public
// keys themselves; cmd/relaynode supplies the directory at construction).
// The decoder also uses it in reverse, to recover which peer a forwarded
// packet's truncated link id names.
type relayerKeyLookup interface {
	PubKeyFor(peer PeerID) (*btcec.PublicKey, error)
	PeerForLinkID(id [sphinx.LinkIDSize]byte) (PeerID, bool)
}
