package pipeline

import (
	"bytes"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hopr-relay/core/pkg/chain"
	"github.com/hopr-relay/core/pkg/metrics"
	"github.com/hopr-relay/core/pkg/por"
	"github.com/hopr-relay/core/pkg/sphinx"
	"github.com/hopr-relay/core/pkg/surb"
	"github.com/hopr-relay/core/pkg/tagcache"
	"github.com/hopr-relay/core/pkg/ticket"
)

// ticketVerifier authenticates an incoming ticket's signature against its
// issuer's known public key (spec.md §7: "Ticket signature invalid -> drop
// packet, do not forward"). keychain.KeyRing implements this the same way
// it implements Signer, by recovering the signer from a compact secp256k1
// signature and comparing it to the peer the ticket arrived from.
type ticketVerifier interface {
	VerifyTicketSignature(issuer PeerID, t *ticket.Ticket) bool
}

// DecoderConfig bundles a Decoder's collaborators (spec.md §6 "Interfaces
// the core consumes from collaborators").
type DecoderConfig struct {
	Chain    chain.ReadChannel
	Keys     chain.KeyOps
	Values   chain.Values
	Tickets  *ticket.Manager
	Surbs    *surb.Store
	Tags     *tagcache.Cache
	PubKeys  relayerKeyLookup
	Signer   Signer
	Verifier ticketVerifier
	LocalKey *btcec.PrivateKey
	Acks     *AckTracker

	// Reassembler buffers in-flight SURB transfers addressed to this
	// node until a complete SURB has arrived (see surbcodec.go).
	Reassembler *SurbReassembler

	// Metrics, if set, receives counter increments for every packet this
	// decoder processes.
	Metrics *metrics.Relay
}

// Decoder implements spec.md §4.6's "Decoder": it turns incoming wire bytes
// into either a final delivery or a re-wrapped forward, recording and
// issuing tickets and replay state along the way.
type Decoder struct {
	cfg DecoderConfig
}

// NewDecoder constructs a Decoder from its collaborators.
func NewDecoder(cfg DecoderConfig) *Decoder {
	return &Decoder{cfg: cfg}
}

// FromRecv implements spec.md §6's `from_recv`: parse, unwrap, replay-check,
// validate the embedded ticket, and either surface the final plaintext or
// issue the next hop's ticket and re-wrap for forwarding.
func (d *Decoder) FromRecv(raw []byte, senderPeer PeerID) (*IncomingPacket, error) {
	if len(raw) != sphinx.PacketSize {
		return nil, sphinx.ErrMalformedLength
	}

	var pkt sphinx.Packet
	if err := pkt.Decode(bytes.NewReader(raw)); err != nil {
		return nil, err
	}

	secret, err := sphinx.DeriveSharedSecret(&pkt, d.cfg.LocalKey)
	if err != nil {
		return nil, err
	}

	// Check the replay tag before paying for MAC verification and header
	// peeling (spec.md §4.1: a replayed packet should cost as little as
	// possible to reject).
	var tag tagcache.Tag
	copy(tag[:], sphinx.PacketTagFor(secret)[:])
	if d.cfg.Tags.CheckAndInsert(tag) {
		if d.cfg.Metrics != nil {
			d.cfg.Metrics.ReplayHits.Inc()
			d.cfg.Metrics.PacketsDropped.WithLabelValues("replay").Inc()
		}
		log.Debugf("pipeline: dropping replayed packet from %x", senderPeer)
		return nil, ErrDropped
	}

	res, err := sphinx.UnwrapWithSecret(&pkt, secret)
	if err != nil {
		return nil, err
	}

	incomingTicket := ticket.Decode(pkt.Ticket)

	if d.cfg.Verifier != nil && !d.cfg.Verifier.VerifyTicketSignature(senderPeer, incomingTicket) {
		if d.cfg.Metrics != nil {
			d.cfg.Metrics.PacketsDropped.WithLabelValues("bad_signature").Inc()
		}
		log.Debugf("pipeline: dropping packet from %x with invalid ticket signature", senderPeer)
		return nil, ErrBadTicketSignature
	}

	ch, ok := d.cfg.Chain.ChannelByID(incomingTicket.ChannelID).Unpack()
	if !ok {
		return nil, ErrNoRoute
	}

	if err := ticket.ValidateForward(incomingTicket, ticket.Channel{
		Epoch:            ch.Epoch,
		LastRedeemed:     ch.TicketIndex,
		MinimumWinProb:   d.cfg.Values.MinimumIncomingTicketWinProb(),
		MinimumPrice:     d.cfg.Values.MinimumTicketPrice(),
		PathPositionFrom: 1,
	}); err != nil {
		return nil, err
	}
	d.cfg.Tickets.RecordIncoming(incomingTicket)

	if res.Action == sphinx.ActionFinal {
		return d.finishFinal(res, incomingTicket, senderPeer)
	}
	return d.finishForward(res, incomingTicket, ch, senderPeer)
}

// FromRecvBatch runs FromRecv across a batch of packets concurrently, one
// goroutine per packet via errgroup. The Sphinx unwrap each call performs
// is the dominant cost of from_recv and runs independently per packet (the
// tag cache and ticket manager the calls do share are safe for concurrent
// use, so duplicates within one batch still race for a single tag-cache
// insert), so this turns a sequential decode loop into one bounded only by
// the slowest individual unwrap rather than their sum. raws and
// senderPeers must be the same length; results and errs are returned
// index-aligned with the input, so a caller can tell which packet in the
// batch a given outcome or error belongs to.
func (d *Decoder) FromRecvBatch(raws [][]byte, senderPeers []PeerID) ([]*IncomingPacket, []error) {
	results := make([]*IncomingPacket, len(raws))
	errs := make([]error, len(raws))

	var g errgroup.Group
	for i := range raws {
		i := i
		g.Go(func() error {
			res, err := d.FromRecv(raws[i], senderPeers[i])
			results[i] = res
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	return results, errs
}

// finishFinal implements the terminal-hop branch of spec.md §4.6 step 4:
// recover the plaintext (inserting any embedded SURB into the store) and
// construct the acknowledgement to hand back upstream.
func (d *Decoder) finishFinal(
	res *sphinx.UnwrapResult, incomingTicket *ticket.Ticket, senderPeer PeerID,
) (*IncomingPacket, error) {
	data, isSurbChunk := DecodeFinalPayload(res.Plaintext)
	if isSurbChunk && d.cfg.Reassembler != nil {
		pseudonym, sb, complete := d.cfg.Reassembler.Feed(res.Plaintext)
		if complete {
			d.cfg.Surbs.Insert(pseudonym, sb)
		}
		data = nil
	}

	ack, err := d.buildAck(res, incomingTicket.ChannelID, incomingTicket.Index)
	if err != nil {
		return nil, err
	}

	if d.cfg.Metrics != nil {
		d.cfg.Metrics.PacketsDelivered.Inc()
	}
	log.Debugf("pipeline: delivered final packet from %x", senderPeer)

	return &IncomingPacket{
		Action:    IncomingFinal,
		Plaintext: data,
		Ack:       ack,
	}, nil
}

// finishForward implements the relaying branch of spec.md §4.6 step 4: issue
// a fresh ticket for the next hop bound to the challenge the original sender
// embedded in this hop's header layer (see issueOneHopTicket's doc comment
// and DESIGN.md's "multi-hop PoR ticket issuance"), track this hop's own
// incoming ticket pending the next hop's acknowledgement, and re-wrap. The new ticket
// is drawn on this hop's own channel with the next hop, not on the channel
// it was just paid over, so it needs its own ChannelByParties lookup rather
// than reusing upstreamCh.
func (d *Decoder) finishForward(
	res *sphinx.UnwrapResult, incomingTicket *ticket.Ticket, upstreamCh chain.Channel, senderPeer PeerID,
) (*IncomingPacket, error) {
	nextPeer, ok := d.cfg.PubKeys.PeerForLinkID(res.NextLinkID)
	if !ok {
		return nil, ErrUnknownPeer
	}

	nextAddr, ok := d.cfg.Keys.PacketKeyToChainKey(nextPeer).Unpack()
	if !ok {
		return nil, ErrUnknownPeer
	}
	downstreamCh, ok := d.cfg.Chain.ChannelByParties(d.cfg.Signer.LocalChainKey(), nextAddr).Unpack()
	if !ok {
		return nil, ErrNoRoute
	}
	if downstreamCh.Status != chain.Open {
		return nil, ErrChannelNotOpen
	}

	winProb := d.cfg.Values.MinimumIncomingTicketWinProb()
	price := d.cfg.Values.MinimumTicketPrice()

	// res.PoRShare is the challenge the original sender precomputed for
	// this ticket (see sphinx.WrapRequest.PoRShares, encoder.go's
	// sendForward): this hop relays it opaquely and never learns either
	// of the shares it commits to, so it cannot predict whether the
	// ticket it is about to issue will win.
	var challenge por.Challenge
	copy(challenge[:], res.PoRShare[:])

	nextTicket, err := issueOneHopTicket(
		d.cfg.Tickets, d.cfg.Signer, downstreamCh, winProb, price, challenge,
	)
	if err != nil {
		return nil, err
	}
	if d.cfg.Metrics != nil {
		d.cfg.Metrics.TicketsIssued.Inc()
	}

	if d.cfg.Acks != nil {
		// This node tracks resolution of its own incoming ticket (the
		// one it holds and could redeem), correlated by the ticket it
		// just issued downstream: that is what the downstream hop's
		// acknowledgement will key its reply against. ownShare is this
		// hop's own PoR share, derivable from the secret it just
		// unwrapped; the other half arrives in that acknowledgement.
		ownShare := por.DeriveShare(res.SharedSecret)
		d.cfg.Acks.TrackRelayerTicket(
			nextTicket.ChannelID, nextTicket.Index,
			incomingTicket.ChannelID, incomingTicket.Index,
			incomingTicket.Challenge, por.DecodeWinProb(incomingTicket.WinProbEncoded),
			ownShare, incomingTicket.Encode(),
		)
	}

	outPkt, err := res.RewrapForward(nextTicket.Encode())
	if err != nil {
		return nil, err
	}

	ack, err := d.buildAck(res, incomingTicket.ChannelID, incomingTicket.Index)
	if err != nil {
		return nil, err
	}

	if d.cfg.Metrics != nil {
		d.cfg.Metrics.PacketsForwarded.Inc()
	}
	log.Debugf("pipeline: forwarding packet from %x to %x", senderPeer, nextPeer)

	return &IncomingPacket{
		Action:  IncomingForward,
		NextHop: nextPeer,
		Bytes:   outPkt.Bytes(),
		Ack:     ack,
	}, nil
}

// buildAck constructs the acknowledgement this node returns to whoever
// handed it the packet it just processed, correlated to that upstream
// hop's own ticket via TicketAckKey and bound to this hop's own unpredictable
// half-key (spec.md §4.2, §6).
func (d *Decoder) buildAck(res *sphinx.UnwrapResult, upstreamChannelID [32]byte, upstreamIndex uint64) ([]byte, error) {
	share := por.DeriveShare(res.SharedSecret)

	a := Ack{
		TicketKey: TicketAckKey(upstreamChannelID, upstreamIndex),
		HalfKey:   share,
	}

	msg := make([]byte, 0, 16+por.HalfKeySize)
	msg = append(msg, a.TicketKey[:]...)
	msg = append(msg, a.HalfKey[:]...)

	sig, err := d.cfg.Signer.SignBytes(msg)
	if err != nil {
		return nil, err
	}
	a.Signature = sig

	return EncodeAck(a), nil
}
