// Package ticket implements the ticket entity and its manager: the
// authoritative outgoing monotonic index per (channel_id, epoch), and the
// incoming ticket lifecycle state machine (spec.md §4.3).
package ticket

import (
	"encoding/binary"

	"github.com/hopr-relay/core/pkg/por"
)

const (
	channelIDSize = 32
	amountSize    = 12
	indexSize     = 6
	offsetSize    = 4
	epochSize     = 3
	signatureSize = 65

	// Size is the fixed wire length of a serialized ticket (spec.md §6).
	Size = channelIDSize + amountSize + indexSize + offsetSize + epochSize +
		por.WinProbSize + por.ChallengeSize + signatureSize
)

// Ticket is the signed tuple described in spec.md §3: a promise of payment
// to the relayer redeeming it, conditional on producing the PoR response
// committed to by Challenge.
type Ticket struct {
	ChannelID [channelIDSize]byte

	// Amount is a 96-bit unsigned integer, big-endian, in token base
	// units.
	Amount [amountSize]byte

	// Index is strictly monotonic per (ChannelID, Epoch) for tickets this
	// node issues.
	Index uint64

	// IndexOffset counts how many original tickets this one aggregates;
	// 1 for an unaggregated ticket.
	IndexOffset uint32

	Epoch uint32

	WinProbEncoded [por.WinProbSize]byte
	Challenge      por.Challenge
	Signature      [signatureSize]byte
}

// Encode serializes t into its fixed Size-byte wire form.
func (t *Ticket) Encode() [Size]byte {
	var out [Size]byte
	off := 0

	copy(out[off:], t.ChannelID[:])
	off += channelIDSize

	copy(out[off:], t.Amount[:])
	off += amountSize

	putUint48(out[off:off+indexSize], t.Index)
	off += indexSize

	binary.BigEndian.PutUint32(out[off:off+offsetSize], t.IndexOffset)
	off += offsetSize

	putUint24(out[off:off+epochSize], t.Epoch)
	off += epochSize

	copy(out[off:], t.WinProbEncoded[:])
	off += por.WinProbSize

	copy(out[off:], t.Challenge[:])
	off += por.ChallengeSize

	copy(out[off:], t.Signature[:])

	return out
}

// Decode parses a Ticket from its fixed Size-byte wire form.
func Decode(b [Size]byte) *Ticket {
	t := &Ticket{}
	off := 0

	copy(t.ChannelID[:], b[off:off+channelIDSize])
	off += channelIDSize

	copy(t.Amount[:], b[off:off+amountSize])
	off += amountSize

	t.Index = getUint48(b[off : off+indexSize])
	off += indexSize

	t.IndexOffset = binary.BigEndian.Uint32(b[off : off+offsetSize])
	off += offsetSize

	t.Epoch = getUint24(b[off : off+epochSize])
	off += epochSize

	copy(t.WinProbEncoded[:], b[off:off+por.WinProbSize])
	off += por.WinProbSize

	copy(t.Challenge[:], b[off:off+por.ChallengeSize])
	off += por.ChallengeSize

	copy(t.Signature[:], b[off:off+signatureSize])

	return t
}

// IsAggregated reports whether this ticket's index range spans more than
// one original ticket (spec.md §4.3's TicketSelector.only_aggregated).
func (t *Ticket) IsAggregated() bool {
	return t.IndexOffset > 1
}

func putUint48(b []byte, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	copy(b, buf[2:])
}

func getUint48(b []byte) uint64 {
	var buf [8]byte
	copy(buf[2:], b)
	return binary.BigEndian.Uint64(buf[:])
}

func putUint24(b []byte, v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	copy(b, buf[1:])
}

func getUint24(b []byte) uint32 {
	var buf [4]byte
	copy(buf[1:], b)
	return binary.BigEndian.Uint32(buf[:])
}
