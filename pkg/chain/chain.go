// Package chain defines the trait-like interfaces the core consumes from
// its on-chain collaborators (spec.md §6 "Interfaces the core consumes"),
// and an in-memory implementation suitable for tests and local harnesses.
package chain

import (
	"math/big"

	"github.com/hopr-relay/core/pkg/fn"
)

// ChannelStatus is a channel's on-chain lifecycle stage (spec.md §3).
type ChannelStatus int

const (
	Closed ChannelStatus = iota
	Open
	PendingToClose
)

// Channel is the on-chain channel record the ticket manager and decoder
// validate incoming/outgoing tickets against.
type Channel struct {
	ID          [32]byte
	Source      [20]byte
	Destination [20]byte
	Balance     *big.Int
	Epoch       uint32
	Status      ChannelStatus

	// TicketIndex is the highest redeemed index for this channel.
	TicketIndex uint64
}

// ReadChannel is the read side of on-chain channel lookups (spec.md §6
// "ChainReadChannel").
type ReadChannel interface {
	ChannelByParties(src, dst [20]byte) fn.Option[Channel]
	ChannelByID(id [32]byte) fn.Option[Channel]
}

// KeyOps maps between a node's off-chain packet key and its on-chain
// address (spec.md §6 "ChainKeyOps").
type KeyOps interface {
	PacketKeyToChainKey(offchainPK []byte) fn.Option[[20]byte]
	ChainKeyToPacketKey(chainKey [20]byte) fn.Option[[]byte]
}

// Values exposes network-wide parameters the encoder/decoder consult when
// issuing or validating tickets (spec.md §6 "ChainValues").
type Values interface {
	MinimumTicketPrice() *big.Int
	MinimumIncomingTicketWinProb() float64
	DomainSeparators() [32]byte
}

// Memory is an in-memory ReadChannel + KeyOps + Values implementation for
// tests and the reference harness; it never touches a real chain.
type Memory struct {
	Channels            map[[32]byte]Channel
	PacketToChain       map[string][20]byte
	TicketPrice         *big.Int
	MinimumWinProb      float64
	DomainSeparatorHash [32]byte
}

// NewMemory constructs an empty Memory with a price floor of 1 base unit
// and no win-probability minimum, matching the permissive defaults a local
// test harness needs.
func NewMemory() *Memory {
	return &Memory{
		Channels:       make(map[[32]byte]Channel),
		PacketToChain:  make(map[string][20]byte),
		TicketPrice:    big.NewInt(1),
		MinimumWinProb: 0,
	}
}

func (m *Memory) ChannelByParties(src, dst [20]byte) fn.Option[Channel] {
	for _, ch := range m.Channels {
		if ch.Source == src && ch.Destination == dst {
			return fn.Some(ch)
		}
	}
	return fn.None[Channel]()
}

func (m *Memory) ChannelByID(id [32]byte) fn.Option[Channel] {
	ch, ok := m.Channels[id]
	if !ok {
		return fn.None[Channel]()
	}
	return fn.Some(ch)
}

func (m *Memory) PacketKeyToChainKey(offchainPK []byte) fn.Option[[20]byte] {
	addr, ok := m.PacketToChain[string(offchainPK)]
	if !ok {
		return fn.None[[20]byte]()
	}
	return fn.Some(addr)
}

func (m *Memory) ChainKeyToPacketKey(chainKey [20]byte) fn.Option[[]byte] {
	for pk, addr := range m.PacketToChain {
		if addr == chainKey {
			return fn.Some([]byte(pk))
		}
	}
	return fn.None[[]byte]()
}

func (m *Memory) MinimumTicketPrice() *big.Int {
	return m.TicketPrice
}

func (m *Memory) MinimumIncomingTicketWinProb() float64 {
	return m.MinimumWinProb
}

func (m *Memory) DomainSeparators() [32]byte {
	return m.DomainSeparatorHash
}
