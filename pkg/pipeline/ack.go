package pipeline

import (
	"encoding/binary"
	"sync"

	"github.com/hopr-relay/core/pkg/metrics"
	"github.com/hopr-relay/core/pkg/por"
	"github.com/hopr-relay/core/pkg/ticket"
	"lukechampine.com/blake3"
)

// ackKeyLabel domain-separates the ticket correlation hash from every other
// blake3 use in this codebase (pkg/sphinx, pkg/por).
const ackKeyLabel = "hopr-relay/pipeline/ack-key"

// ackSize is the wire length of an Ack: the acknowledging hop's own
// half-key, the ticket key it resolves, and a signature over both (spec.md
// §6 "Acknowledgement").
const ackSize = por.HalfKeySize + 16 + 65

// Ack is the message a hop returns to whichever peer handed it a packet,
// proving it genuinely processed that specific packet (spec.md §4.2, §6).
//
// TicketKey correlates the ack back to the (channelID, index) of the ticket
// its issuer is waiting to resolve; a downstream hop learns this pair
// because it is exactly the ticket it just validated off the packet it
// received, so both sides can compute TicketAckKey identically without
// either needing key material the other holds.
//
// HalfKey is the acknowledging hop's own PoR share, derived from its own
// per-hop secret via por.DeriveShare. The issuer cannot have predicted it
// in advance (it never learns that secret, only the opaque challenge the
// original sender pre-committed for it), so it serves as the unpredictable
// "vrf_output" input spec.md §4.2's win determination requires, standing in
// for a dedicated VRF this implementation has no need to introduce.
type Ack struct {
	TicketKey [16]byte
	HalfKey   por.HalfKey
	Signature [65]byte
}

// TicketAckKey derives the correlation key both a ticket's issuer and its
// redeemer can compute from the ticket's public (channelID, index) alone.
func TicketAckKey(channelID [32]byte, index uint64) [16]byte {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], index)

	key := [32]byte{}
	copy(key[:], ackKeyLabel)

	h := blake3.New(32, key[:])
	h.Write(channelID[:])
	h.Write(idx[:])

	var out [16]byte
	copy(out[:], h.Sum(nil))
	return out
}

// EncodeAck serializes a into its fixed ackSize-byte wire form.
func EncodeAck(a Ack) []byte {
	out := make([]byte, 0, ackSize)
	out = append(out, a.TicketKey[:]...)
	out = append(out, a.HalfKey[:]...)
	out = append(out, a.Signature[:]...)
	return out
}

// DecodeAck parses an Ack from its fixed ackSize-byte wire form.
func DecodeAck(b []byte) (Ack, error) {
	if len(b) != ackSize {
		return Ack{}, ErrMalformedAck
	}

	var a Ack
	off := 0
	copy(a.TicketKey[:], b[off:off+16])
	off += 16
	copy(a.HalfKey[:], b[off:off+por.HalfKeySize])
	off += por.HalfKeySize
	copy(a.Signature[:], b[off:off+65])

	return a, nil
}

type pendingKind int

const (
	pendingSenderDelivery pendingKind = iota
	pendingRelayerTicket
)

// pendingEntry is what AckTracker retains per outstanding ticket key until
// the matching acknowledgement arrives or the entry is abandoned. For a
// pendingRelayerTicket entry, channelID/index/challenge/winProb/ticket all
// describe this node's own incoming ticket (the one it holds and could
// redeem), not the ticket it issued downstream to obtain this entry's key;
// ownShare is this node's own PoR share toward that incoming ticket's
// response, the other half arriving in the acknowledgement that resolves
// this entry.
type pendingEntry struct {
	kind      pendingKind
	challenge por.Challenge

	ownShare  por.HalfKey
	winProb   float64
	channelID [32]byte
	index     uint64
	ticket    [ticket.Size]byte

	// ackChannelID/ackIndex name the downstream ticket this node issued to
	// obtain this entry's correlation key. Once the acknowledgement that
	// resolves this entry arrives, that downstream ticket is no longer
	// sent-but-unacked (spec.md §4.3/§6), so it stops counting against
	// this node's UnrealizedValue exposure on its own channel with the
	// downstream hop.
	ackChannelID [32]byte
	ackIndex     uint64
}

// AckTracker implements spec.md §6's `handle_acknowledgement`, shared by the
// Encoder (tracking its own outgoing deliveries) and the Decoder (tracking
// tickets it issued to the next hop while relaying). Entries are keyed by
// TicketAckKey(channelID, index), a value both the issuer and the redeemer
// of a ticket can compute without sharing secret material.
type AckTracker struct {
	signerPubKey []byte
	tickets      *ticket.Manager
	winQueue     *winningTicketQueue
	metrics      *metrics.Relay

	mu      sync.Mutex
	pending map[[16]byte]pendingEntry
}

// NewAckTracker constructs an AckTracker and the bounded winning-ticket
// queue it feeds (spec.md §5 backpressure). signerPubKey is the local
// node's packet-layer public key, bound into every win determination this
// tracker performs (spec.md §4.2's "signer_pubkey"). queueCapacity <= 0
// falls back to DefaultWinningTicketQueueCapacity; m may be nil.
func NewAckTracker(
	signerPubKey []byte, tickets *ticket.Manager, queueCapacity int, m *metrics.Relay,
) *AckTracker {
	return &AckTracker{
		signerPubKey: signerPubKey,
		tickets:      tickets,
		winQueue:     newWinningTicketQueue(queueCapacity, m),
		metrics:      m,
		pending:      make(map[[16]byte]pendingEntry),
	}
}

// WinningTicket is the redemption-eligible event a relayer's strategy layer
// (out of scope) consumes to schedule on-chain redemption.
type WinningTicket struct {
	ChannelID [32]byte
	Index     uint64
	Response  [32]byte
}

// NextWinningTicket blocks until a winning ticket is available for
// redemption or Stop has been called, in which case ok is false.
func (a *AckTracker) NextWinningTicket() (WinningTicket, bool) {
	t, ok := a.winQueue.pop()
	if !ok {
		return WinningTicket{}, false
	}
	return WinningTicket{ChannelID: t.channelID, Index: t.index, Response: t.response}, true
}

// Stop halts the internal winning-ticket queue.
func (a *AckTracker) Stop() {
	a.winQueue.stop()
}

// TrackSenderDelivery registers a challenge this node must recognize as an
// end-to-end delivery confirmation, not a relayed ticket's win/loss.
func (a *AckTracker) TrackSenderDelivery(channelID [32]byte, index uint64, challenge por.Challenge) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending[TicketAckKey(channelID, index)] = pendingEntry{kind: pendingSenderDelivery, challenge: challenge}
}

// TrackRelayerTicket registers this node's own incoming ticket (identified
// by ticketChannelID/ticketIndex, with its committed challenge, decoded
// winProb, own PoR share, and encoded bytes) as pending resolution, keyed
// by the correlation pair of the ticket this node just issued to the next
// hop (ackChannelID/ackIndex) — that is the key the next hop's
// acknowledgement will carry, since it is the ticket that hop validated off
// the packet it received.
func (a *AckTracker) TrackRelayerTicket(
	ackChannelID [32]byte, ackIndex uint64,
	ticketChannelID [32]byte, ticketIndex uint64,
	challenge por.Challenge, winProb float64,
	ownShare por.HalfKey, ticketBytes [ticket.Size]byte,
) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending[TicketAckKey(ackChannelID, ackIndex)] = pendingEntry{
		kind:         pendingRelayerTicket,
		challenge:    challenge,
		ownShare:     ownShare,
		winProb:      winProb,
		channelID:    ticketChannelID,
		index:        ticketIndex,
		ticket:       ticketBytes,
		ackChannelID: ackChannelID,
		ackIndex:     ackIndex,
	}
}

// HandleAcknowledgement resolves the pending entry named by ack.TicketKey,
// returning ErrNoPendingChallenge if none is outstanding (spec.md §6: a
// duplicate or unexpected acknowledgement is dropped, not fatal).
func (a *AckTracker) HandleAcknowledgement(ack Ack) (*AckOutcome, error) {
	a.mu.Lock()
	entry, ok := a.pending[ack.TicketKey]
	if ok {
		delete(a.pending, ack.TicketKey)
	}
	a.mu.Unlock()

	if !ok {
		return nil, ErrNoPendingChallenge
	}

	switch entry.kind {
	case pendingSenderDelivery:
		return &AckOutcome{Kind: AckSender, Challenge: entry.challenge}, nil

	case pendingRelayerTicket:
		// Neither this node nor the hop it forwarded to could have
		// computed this response alone: ownShare came from this node's
		// own unwrap, ack.HalfKey from the downstream hop's own unwrap.
		// Only now, with both in hand, does the response exist.
		response := por.Sum(entry.ownShare, ack.HalfKey)

		// The downstream ticket this entry was keyed by is resolved now,
		// win or loss, so it no longer counts as unrealized exposure
		// against the channel this node issued it on.
		a.tickets.RemoveRedeemed(entry.ackChannelID, entry.ackIndex)

		if !por.VerifyResponse(response, entry.challenge) {
			return nil, por.ErrChallengeMismatch
		}

		winning := por.IsWinning(response, a.signerPubKey, ack.HalfKey[:], entry.winProb)

		if err := a.tickets.ResolveWin(entry.channelID, entry.index, response, winning); err != nil {
			return nil, err
		}

		if !winning {
			if a.metrics != nil {
				a.metrics.TicketsLost.Inc()
			}
			return &AckOutcome{Kind: AckRelayerLoss}, nil
		}
		if a.metrics != nil {
			a.metrics.TicketsWon.Inc()
		}

		a.winQueue.push(winningTicket{
			channelID: entry.channelID,
			index:     entry.index,
			response:  response,
		})

		ticketBytes := entry.ticket
		return &AckOutcome{Kind: AckRelayerWin, Ticket: ticketBytes[:]}, nil

	default:
		return nil, ErrNoPendingChallenge
	}
}
