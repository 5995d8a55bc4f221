// Package sphinx implements the fixed-size onion packet codec described in
// the relay spec: a Sphinx-style header that is re-randomized at each hop so
// the wire size of a packet never reveals how many hops remain.
package sphinx

import (
	"bytes"
	"io"

	"github.com/hopr-relay/core/pkg/por"
)

const (
	// AlphaSize is the length in bytes of the serialized ephemeral group
	// element carried at the front of every packet. We use secp256k1 in
	// compressed form, matching the chain the core's tickets are
	// ultimately redeemed on (see DESIGN.md, "Cryptographic generic
	// parameters").
	AlphaSize = 33

	// LinkIDSize is the length of the next-hop link identifier embedded
	// in each routing header layer.
	LinkIDSize = 8

	// MacSize is the length of the keyed MAC carried per header layer and
	// at the top level of the packet.
	MacSize = 16

	// RelayerMetaSize is the length of the relayer-private metadata
	// carried per header layer. It holds the PoR challenge the sender
	// pre-committed for the ticket this hop will issue to the next one
	// (see pkg/por.Challenge, pkg/pipeline's sendForward); the final
	// hop's layer carries no such challenge, since it issues no further
	// ticket.
	RelayerMetaSize = por.ChallengeSize

	// PerHopSize (L in spec.md) is the length of a single routing header
	// layer: link id, next layer's MAC, and the relayer-private PoR
	// share.
	PerHopSize = LinkIDSize + MacSize + RelayerMetaSize

	// MaxHops (R in spec.md) is the maximum path length the wire format
	// supports. HOPR-style paths use at most three intermediate relayers
	// plus the destination.
	MaxHops = 4

	// HeaderSize is the constant size of the full routing header,
	// R * L bytes, independent of the actual path length.
	HeaderSize = MaxHops * PerHopSize

	// PayloadSize is the constant size of the onion-encrypted
	// application payload, after padding.
	PayloadSize = 500

	// TicketSize is the wire size of a serialized ticket (see pkg/ticket).
	TicketSize = 162

	// PacketSize is the total constant wire size of a packet:
	// alpha || header || mac || ciphertext || ticket.
	PacketSize = AlphaSize + HeaderSize + MacSize + PayloadSize + TicketSize

	// paddingTag marks the boundary between the real payload and its
	// zero padding so Unwrap can recover the original length.
	paddingTag = 0x7f
)

// Packet is the bit-exact on-wire representation described in spec.md §6.
// Ticket bytes are opaque here; pkg/ticket owns (de)serialization of their
// structured fields.
type Packet struct {
	Alpha      [AlphaSize]byte
	Header     [HeaderSize]byte
	MAC        [MacSize]byte
	Ciphertext [PayloadSize]byte
	Ticket     [TicketSize]byte
}

// Encode writes the bit-exact wire representation of p to w.
func (p *Packet) Encode(w io.Writer) error {
	if _, err := w.Write(p.Alpha[:]); err != nil {
		return err
	}
	if _, err := w.Write(p.Header[:]); err != nil {
		return err
	}
	if _, err := w.Write(p.MAC[:]); err != nil {
		return err
	}
	if _, err := w.Write(p.Ciphertext[:]); err != nil {
		return err
	}
	_, err := w.Write(p.Ticket[:])
	return err
}

// Decode parses a Packet from r. It returns ErrMalformedLength if fewer than
// PacketSize bytes are available, before any cryptographic work is
// attempted (spec.md §4.1 edge cases).
func (p *Packet) Decode(r io.Reader) error {
	buf := make([]byte, PacketSize)
	n, err := io.ReadFull(r, buf)
	if err != nil || n != PacketSize {
		return ErrMalformedLength
	}

	off := 0
	copy(p.Alpha[:], buf[off:off+AlphaSize])
	off += AlphaSize
	copy(p.Header[:], buf[off:off+HeaderSize])
	off += HeaderSize
	copy(p.MAC[:], buf[off:off+MacSize])
	off += MacSize
	copy(p.Ciphertext[:], buf[off:off+PayloadSize])
	off += PayloadSize
	copy(p.Ticket[:], buf[off:off+TicketSize])

	return nil
}

// Bytes serializes the packet to a freshly allocated byte slice.
func (p *Packet) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(PacketSize)
	_ = p.Encode(&buf)
	return buf.Bytes()
}

// PadPayload is the exported form of padPayload, used by callers (pkg/
// pipeline's SURB-reply path) that must onion-encrypt a payload under a
// single stored secret rather than going through Wrap's full hop loop.
func PadPayload(plaintext []byte) ([PayloadSize]byte, error) {
	return padPayload(plaintext)
}

// padPayload pads plaintext out to PayloadSize with a boundary tag followed
// by zero bytes. A zero-length payload is valid (spec.md §4.1 edge cases).
func padPayload(plaintext []byte) ([PayloadSize]byte, error) {
	var out [PayloadSize]byte
	if len(plaintext)+1 > PayloadSize {
		return out, ErrPayloadTooLarge
	}
	copy(out[:], plaintext)
	out[len(plaintext)] = paddingTag
	return out, nil
}

// unpadPayload scans from the end for the boundary tag and returns the
// original plaintext.
func unpadPayload(padded []byte) ([]byte, error) {
	for i := len(padded) - 1; i >= 0; i-- {
		if padded[i] == paddingTag {
			// Every byte after the tag must be zero; anything
			// else means this was not a genuine boundary.
			if !allZero(padded[i+1:]) {
				continue
			}
			return padded[:i], nil
		}
	}
	return nil, ErrPaddingNotFound
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
