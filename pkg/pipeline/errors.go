package pipeline

import "github.com/go-errors/errors"

var (
	// ErrNoRoute is returned when path resolution cannot find a usable
	// channel for the next hop of a forward routing decision.
	ErrNoRoute = errors.New("pipeline: no route to next hop")

	// ErrChannelNotOpen is returned when the channel backing a hop of a
	// route is not in the Open state.
	ErrChannelNotOpen = errors.New("pipeline: channel not open")

	// ErrUnknownPeer is returned when a routing decision names a peer
	// with no known packet-key-to-chain-key mapping.
	ErrUnknownPeer = errors.New("pipeline: unknown peer")

	// ErrDropped is returned by the decoder when a packet is dropped as a
	// replay (its tag is already in the tag cache); the packet produced no
	// forward/final outcome. Other decode-path rejections return their
	// own errors.
	ErrDropped = errors.New("pipeline: packet dropped")

	// ErrSurbsUnavailable is returned by the encoder when SURB-return
	// routing is requested but find_surb cannot locate a usable entry
	// (spec.md §6 "surface to caller; not fatal to node").
	ErrSurbsUnavailable = errors.New("pipeline: no SURB available for reply")

	// ErrNoPendingChallenge is returned by handle_acknowledgement when no
	// challenge is pending for the acknowledgement's ticket key.
	ErrNoPendingChallenge = errors.New("pipeline: no pending challenge for acknowledgement")

	// ErrMalformedAck is returned by DecodeAck when the input is not
	// exactly ackSize bytes.
	ErrMalformedAck = errors.New("pipeline: malformed acknowledgement")

	// ErrInsufficientBalance is returned by issueOneHopTicket when a
	// channel's balance, net of tickets already issued and not yet
	// resolved against it, leaves no headroom to issue another one
	// (spec.md §4.3/§6).
	ErrInsufficientBalance = errors.New("pipeline: insufficient channel balance for ticket")

	// ErrBadTicketSignature is returned by the decoder when an incoming
	// ticket's signature does not verify against its claimed issuer
	// (spec.md §7 "Ticket signature invalid -> drop packet, do not
	// forward").
	ErrBadTicketSignature = errors.New("pipeline: ticket signature invalid")
)
