package pipeline

import (
	"crypto/rand"
	"math/big"

	"github.com/hopr-relay/core/pkg/chain"
	"github.com/hopr-relay/core/pkg/metrics"
	"github.com/hopr-relay/core/pkg/por"
	"github.com/hopr-relay/core/pkg/sphinx"
	"github.com/hopr-relay/core/pkg/surb"
	"github.com/hopr-relay/core/pkg/ticket"
)

// Signer binds a relay node's long-term identity to issued tickets and
// acknowledgements (spec.md §3: "signature"; §6 "Acknowledgement ...
// signature"). cmd/relaynode supplies the real secp256k1-backed
// implementation; tests use a deterministic stub.
type Signer interface {
	SignTicket(t *ticket.Ticket) ([65]byte, error)
	LocalChainKey() [20]byte

	// PacketPubKey returns this node's own packet-layer public key in
	// compressed form, the "signer_pubkey" spec.md §4.2's win
	// determination binds to.
	PacketPubKey() []byte

	// SignBytes signs an arbitrary message, used for the ticket-key +
	// half-key payload an acknowledgement carries.
	SignBytes(msg []byte) ([65]byte, error)
}

// EncoderConfig bundles an Encoder's collaborators (spec.md §6 "Interfaces
// the core consumes from collaborators").
type EncoderConfig struct {
	Chain   chain.ReadChannel
	Keys    chain.KeyOps
	Values  chain.Values
	Tickets *ticket.Manager
	Surbs   *surb.Store
	PubKeys relayerKeyLookup
	Signer  Signer

	// Acks, if set, is registered with the outgoing challenge on every
	// ack-expecting send, so the caller does not have to separately wire
	// up AckTracker.TrackSenderDelivery itself.
	Acks *AckTracker

	// Metrics, if set, receives counter increments for every ticket this
	// encoder issues.
	Metrics *metrics.Relay
}

// Encoder implements spec.md §4.6's "Encoder": it turns an application
// payload plus a routing decision into a wire packet addressed to the
// first hop.
type Encoder struct {
	cfg EncoderConfig
}

// NewEncoder constructs an Encoder from its collaborators.
func NewEncoder(cfg EncoderConfig) *Encoder {
	return &Encoder{cfg: cfg}
}

// PendingChallenge is what a ticket issuer must retain to recognize and
// process a later acknowledgement (spec.md §6 handle_acknowledgement's
// `Sender`/`RelayerWin`/`RelayerLoss` variants). Response is the full PoR
// response for the path's first-hop ticket, which the original sender
// legitimately knows in full: it is the one party that holds every hop's
// per-hop secret, so unlike an intermediate relayer reissuing a ticket from
// an onion-delivered challenge (see issueOneHopTicket), there is no
// soundness concern in the sender computing its own first ticket's response
// directly.
type PendingChallenge struct {
	ChannelID [32]byte
	Index     uint64
	Response  por.Response
	Challenge por.Challenge
	WinProb   float64
	Ticket    [ticket.Size]byte
}

// ToSend implements spec.md §6's `to_send`: wrap payload for routing and
// return the packet to hand to the wire sink, along with the
// acknowledgement-tracking handle the caller retains until the ack
// resolves it (nil if req.NoAck was set).
func (e *Encoder) ToSend(req EncodeRequest) (*OutgoingPacket, *PendingChallenge, error) {
	switch req.Routing.Kind {
	case RouteForward:
		return e.sendForward(req)
	case RouteSurbReturn:
		return e.sendSurbReply(req)
	default:
		return nil, nil, ErrNoRoute
	}
}

// ToSendNoAck is the spec.md §6 `to_send_no_ack` convenience variant.
func (e *Encoder) ToSendNoAck(req EncodeRequest) (*OutgoingPacket, error) {
	req.NoAck = true
	pkt, _, err := e.ToSend(req)
	return pkt, err
}

// sendForward resolves an explicit hop path, issues the first-hop ticket,
// and wraps the packet (spec.md §4.6 "Encoder" steps 1-4 for forward
// routing).
func (e *Encoder) sendForward(req EncodeRequest) (*OutgoingPacket, *PendingChallenge, error) {
	plan, err := e.resolveForwardPath(req.Routing.Hops)
	if err != nil {
		return nil, nil, err
	}

	winProb, price := e.outgoingTerms(req.Signals)

	secrets, err := sphinx.DeriveHopSecrets(plan.path)
	if err != nil {
		return nil, nil, err
	}

	// shares[i] is embedded in hop i's own header layer (see
	// sphinx.WrapRequest.PoRShares). For i < len(secrets)-1 it is the
	// challenge for the ticket hop i issues to hop i+1, precomputed here
	// because only the sender holds both secrets[i+1] and secrets[i+2];
	// hop i relays it opaquely and never learns the shares it commits
	// to. The final hop's slot is left zero: it issues no further
	// ticket.
	shares := make([][sphinx.RelayerMetaSize]byte, len(secrets))
	for k := 1; k < len(secrets); k++ {
		own := por.DeriveShare(secrets[k].Secret)
		ack := own
		if k < len(secrets)-1 {
			ack = por.DeriveShare(secrets[k+1].Secret)
		}
		challenge := por.ChallengeForShares(own, ack)
		copy(shares[k-1][:], challenge[:])
	}

	// The first-hop ticket is issued directly by this node, which (as
	// the path's originator) legitimately holds every hop's secret; it
	// is not subject to the same restriction as a relayer reissuing a
	// ticket from an onion-delivered challenge.
	own0 := por.DeriveShare(secrets[0].Secret)
	ack0 := own0
	if len(secrets) > 1 {
		ack0 = por.DeriveShare(secrets[1].Secret)
	}
	response := por.Sum(own0, ack0)
	challenge0 := por.ChallengeFor(response)

	firstHopTicket, err := issueOneHopTicket(
		e.cfg.Tickets, e.cfg.Signer, plan.channels[0], winProb, price, challenge0,
	)
	if err != nil {
		return nil, nil, err
	}
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.TicketsIssued.Inc()
	}

	res, err := sphinx.WrapWithSecrets(secrets, sphinx.WrapRequest{
		Path:           plan.path,
		Payload:        req.Payload,
		PoRShares:      shares,
		FirstHopTicket: firstHopTicket.Encode(),
	})
	if err != nil {
		return nil, nil, err
	}

	var pending *PendingChallenge
	if !req.NoAck {
		pending = &PendingChallenge{
			ChannelID: firstHopTicket.ChannelID,
			Index:     firstHopTicket.Index,
			Response:  response,
			Challenge: firstHopTicket.Challenge,
			WinProb:   winProb,
			Ticket:    firstHopTicket.Encode(),
		}
		if e.cfg.Acks != nil {
			e.cfg.Acks.TrackSenderDelivery(pending.ChannelID, pending.Index, pending.Challenge)
		}
	}

	return &OutgoingPacket{
		NextPeer: plan.nextPeer,
		Bytes:    res.Packet.Bytes(),
	}, pending, nil
}

// sendSurbReply materializes a previously received SURB and issues a fresh
// first-hop ticket for it, reusing the SURB's prebuilt alpha/header,
// encrypting the reply payload under its stored payload keystream and
// computing the packet's MAC fresh from its stored secret (spec.md §4.6
// step 1 "for SURB-return routing, materialize the SURB").
func (e *Encoder) sendSurbReply(req EncodeRequest) (*OutgoingPacket, *PendingChallenge, error) {
	sb, err := e.popSurb(req.Routing)
	if err != nil {
		return nil, nil, err
	}

	winProb, price := e.outgoingTerms(req.Signals)

	ch, ok := e.cfg.Chain.ChannelByID(sb.FirstHopChannel).Unpack()
	if !ok {
		return nil, nil, ErrNoRoute
	}

	// A SURB addresses exactly one hop (its own eventual holder), so the
	// replier issuing this ticket already needs the raw FirstHopSecret
	// to compute the packet's top-level MAC below; there is no further
	// relayer downstream of it whose trust this construction could
	// minimize, so the replier's own share stands in for both halves,
	// the same as the sender's own first-hop ticket in sendForward.
	share := por.DeriveShare(sb.FirstHopSecret)
	response := por.Sum(share, share)
	challenge := por.ChallengeFor(response)

	t, err := issueOneHopTicket(
		e.cfg.Tickets, e.cfg.Signer, ch, winProb, price, challenge,
	)
	if err != nil {
		return nil, nil, err
	}
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.TicketsIssued.Inc()
	}

	padded, err := sphinx.PadPayload(req.Payload)
	if err != nil {
		return nil, nil, err
	}

	var ciphertext [sphinx.PayloadSize]byte
	for i := range ciphertext {
		ciphertext[i] = padded[i] ^ sb.PayloadKeystream[i]
	}

	var header [sphinx.HeaderSize]byte
	copy(header[:], sb.Header[:])

	pkt := &sphinx.Packet{
		Alpha:      sb.Alpha,
		MAC:        sphinx.ComputeMAC(sb.FirstHopSecret, header, ciphertext),
		Ciphertext: ciphertext,
		Ticket:     t.Encode(),
	}
	pkt.Header = header

	var pending *PendingChallenge
	if !req.NoAck {
		pending = &PendingChallenge{
			ChannelID: t.ChannelID,
			Index:     t.Index,
			Response:  response,
			Challenge: t.Challenge,
			WinProb:   winProb,
			Ticket:    t.Encode(),
		}
		if e.cfg.Acks != nil {
			e.cfg.Acks.TrackSenderDelivery(pending.ChannelID, pending.Index, pending.Challenge)
		}
	}

	return &OutgoingPacket{
		NextPeer: sb.FirstHopPeer,
		Bytes:    pkt.Bytes(),
	}, pending, nil
}

func (e *Encoder) popSurb(routing RoutingDecision) (surb.SURB, error) {
	var (
		found     surb.SURB
		ok        bool
		pseudonym = routing.Pseudonym
	)
	if routing.SurbMatcher.Kind == MatchExact {
		found, _, ok = e.cfg.Surbs.PopOneIfHasID(pseudonym, routing.SurbMatcher.ID)
	} else {
		found, _, ok = e.cfg.Surbs.PopOne(pseudonym)
	}
	if !ok {
		return surb.SURB{}, ErrSurbsUnavailable
	}
	return found, nil
}

// BuildSurb materializes a reply-path template that hop's holder can later
// pop from its pseudonym bucket and reply through without ever learning
// this node's identity (spec.md §4.1 step 1 "for SURB-return routing,
// materialize the SURB"; §4.4). A SURB addresses exactly one hop: the MAC
// that hop verifies covers (header, ciphertext), and the ciphertext only
// exists once the eventual replier has chosen an application payload, so
// nothing past that single hop's MAC could be committed to ahead of time
// without that payload in hand (see DESIGN.md, "SURB reply-path length").
// channelID names the channel the replier must hold open with hop in order
// to actually use this SURB; it travels in the SURB purely as a hint for
// the replier's own ticket issuance and is never interpreted here.
func (e *Encoder) BuildSurb(hop PeerID, channelID [32]byte) (surb.SURB, error) {
	pk, err := e.cfg.PubKeys.PubKeyFor(hop)
	if err != nil {
		return surb.SURB{}, err
	}

	path := []sphinx.PathHop{{PubKey: pk}}
	secrets, err := sphinx.DeriveHopSecrets(path)
	if err != nil {
		return surb.SURB{}, err
	}

	// A SURB's single hop is always the final hop of its own 1-hop path,
	// so its own header layer carries no challenge (see
	// sphinx.WrapRequest.PoRShares): it never issues a further ticket,
	// it redeems the one it issues to itself directly (see
	// sendSurbReply).
	res, err := sphinx.WrapWithSecrets(secrets, sphinx.WrapRequest{
		Path:      path,
		PoRShares: [][sphinx.RelayerMetaSize]byte{{}},
	})
	if err != nil {
		return surb.SURB{}, err
	}

	// The returned ciphertext is the all-zero-plus-boundary-tag padded
	// payload XORed with this hop's payload keystream (Wrap was given no
	// real payload); XOR the known padding back out to recover the pure
	// keystream a later sender combines with its real message.
	zeroPad, err := sphinx.PadPayload(nil)
	if err != nil {
		return surb.SURB{}, err
	}
	var keystream [sphinx.PayloadSize]byte
	for i := range keystream {
		keystream[i] = res.Packet.Ciphertext[i] ^ zeroPad[i]
	}

	var id surb.ID
	if _, err := rand.Read(id[:]); err != nil {
		return surb.SURB{}, err
	}

	return surb.SURB{
		ID:               id,
		Alpha:            res.Packet.Alpha,
		Header:           res.Packet.Header,
		FirstHopSecret:   secrets[0].Secret,
		PayloadKeystream: keystream,
		FirstHopChannel:  channelID,
		FirstHopPeer:     hop,
	}, nil
}

// resolveForwardPath looks up on-chain channel existence and balance for
// the first hop of an explicit path (spec.md §4.6 step 1). Only the first
// hop needs an open local channel; downstream hops are validated by the
// relayer that forwards to them.
func (e *Encoder) resolveForwardPath(hops []PeerID) (*hopPlan, error) {
	if len(hops) == 0 {
		return nil, ErrNoRoute
	}

	localAddr := e.cfg.Signer.LocalChainKey()
	firstAddr, ok := e.cfg.Keys.PacketKeyToChainKey(hops[0]).Unpack()
	if !ok {
		return nil, ErrUnknownPeer
	}

	ch, ok := e.cfg.Chain.ChannelByParties(localAddr, firstAddr).Unpack()
	if !ok {
		return nil, ErrNoRoute
	}
	if ch.Status != chain.Open {
		return nil, ErrChannelNotOpen
	}

	path := make([]sphinx.PathHop, len(hops))
	for i, peer := range hops {
		pk, err := e.cfg.PubKeys.PubKeyFor(peer)
		if err != nil {
			return nil, err
		}
		path[i] = sphinx.PathHop{PubKey: pk}
		copy(path[i].LinkID[:], linkIDFor(peer))
	}

	return &hopPlan{
		path:     path,
		channels: []chain.Channel{ch},
		nextPeer: hops[0],
	}, nil
}

func linkIDFor(peer PeerID) []byte {
	if len(peer) >= sphinx.LinkIDSize {
		return peer[:sphinx.LinkIDSize]
	}
	out := make([]byte, sphinx.LinkIDSize)
	copy(out, peer)
	return out
}

// outgoingTerms resolves (win_prob, price) from the chain Values trait,
// honoring per-send overrides (spec.md §4.6 step 2).
func (e *Encoder) outgoingTerms(signals Signals) (float64, *big.Int) {
	winProb := e.cfg.Values.MinimumIncomingTicketWinProb()
	if override, ok := signals.WinProbOverride.Unpack(); ok {
		winProb = override
	}

	price := e.cfg.Values.MinimumTicketPrice()
	if override, ok := signals.PriceOverride.Unpack(); ok {
		price = override
	}

	return winProb, price
}

// issueOneHopTicket consults the ticket manager for the next outgoing index
// on ch, binds challenge (already computed by the caller: see sendForward,
// sendSurbReply, and Decoder.finishForward), and builds and signs the
// ticket that travels in the wire packet (spec.md §4.6 step 3). Unlike an
// earlier revision of this function, it never derives a PoR response or
// half-key itself: an intermediate relayer issuing a ticket to the hop it
// forwards to must not be able to compute that hop's response before
// observing the downstream acknowledgement (spec.md §4.2, Testable
// Property 7), so the challenge a relayer binds here is opaque material it
// received in its own header layer, not something it derived (see
// DESIGN.md, "multi-hop PoR ticket issuance").
//
// The ticket amount is capped at price, further capped by whatever of the
// channel's balance is not already committed to outstanding tickets this
// node has issued on it (spec.md §4.3/§6: a ticket must never promise more
// than the channel could actually pay out). ErrInsufficientBalance is
// returned once no headroom remains.
func issueOneHopTicket(
	tickets *ticket.Manager, signer Signer, ch chain.Channel,
	winProb float64, price *big.Int, challenge por.Challenge,
) (*ticket.Ticket, error) {

	index, err := tickets.NextOutgoingIndex(ch.ID, ch.Epoch)
	if err != nil {
		return nil, err
	}

	encodedWinProb, err := por.EncodeWinProb(winProb)
	if err != nil {
		return nil, err
	}

	available := new(big.Int).Sub(ch.Balance, tickets.UnrealizedValue(ch.ID))
	if available.Sign() < 0 {
		available = big.NewInt(0)
	}
	amountInt := price
	if available.Cmp(price) < 0 {
		amountInt = available
	}
	if amountInt.Sign() <= 0 {
		return nil, ErrInsufficientBalance
	}

	var amount [12]byte
	amountInt.FillBytes(amount[:])

	t := &ticket.Ticket{
		ChannelID:      ch.ID,
		Amount:         amount,
		Index:          index,
		IndexOffset:    1,
		Epoch:          ch.Epoch,
		WinProbEncoded: encodedWinProb,
		Challenge:      challenge,
	}

	sig, err := signer.SignTicket(t)
	if err != nil {
		return nil, err
	}
	t.Signature = sig

	// Registered under the issuer's own manager so UnrealizedValue counts
	// it as outstanding exposure on ch, even though the ticket itself is
	// redeemed by the peer it was issued to. A relayer's AckTracker
	// removes it via RemoveRedeemed once the downstream acknowledgement
	// arrives.
	tickets.RecordIncoming(t)

	return t, nil
}
