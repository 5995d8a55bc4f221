package ticket

import (
	"math/big"
	"sync"

	"github.com/hopr-relay/core/pkg/por"
)

// channelEpoch keys outgoing index counters: index discipline resets on
// every channel epoch bump (spec.md §3's Channel lifecycle).
type channelEpoch struct {
	channelID [channelIDSize]byte
	epoch     uint32
}

// record is a manager-owned incoming ticket and its lifecycle state.
type record struct {
	ticket *Ticket
	state  State
}

// Store persists the last-issued outgoing index per channel so a restart
// never reuses one (spec.md §4.3 "Restart-safety"). A production backend is
// bbolt-backed (pkg/store); tests use an in-memory implementation.
type Store interface {
	// LastIndex returns the highest index previously issued for
	// (channelID, epoch), and whether any had been issued yet.
	LastIndex(channelID [channelIDSize]byte, epoch uint32) (uint64, bool, error)

	// PersistIndex durably records that index was just issued for
	// (channelID, epoch).
	PersistIndex(channelID [channelIDSize]byte, epoch uint32, index uint64) error
}

// Stats aggregates counts across a channel's incoming tickets, broken down
// by lifecycle state (SPEC_FULL.md supplement: ticket manager statistics).
type Stats struct {
	Untouched       uint64
	BeingRedeemed   uint64
	BeingAggregated uint64
}

// Manager owns the authoritative outgoing ticket index per (channel_id,
// epoch) and the incoming ticket lifecycle (spec.md §4.3).
type Manager struct {
	store Store

	mu       sync.Mutex
	counters map[channelEpoch]uint64
	incoming map[[channelIDSize]byte]map[uint64]*record
}

// NewManager constructs a Manager backed by store, consulting it lazily the
// first time each (channel_id, epoch) pair issues a ticket.
func NewManager(store Store) *Manager {
	return &Manager{
		store:    store,
		counters: make(map[channelEpoch]uint64),
		incoming: make(map[[channelIDSize]byte]map[uint64]*record),
	}
}

// NextOutgoingIndex returns the current index for (channelID, epoch) and
// atomically increments it, consulting the persistent store on first use so
// a crash never reissues an index (spec.md §4.3).
func (m *Manager) NextOutgoingIndex(channelID [channelIDSize]byte, epoch uint32) (uint64, error) {
	key := channelEpoch{channelID: channelID, epoch: epoch}

	m.mu.Lock()
	defer m.mu.Unlock()

	next, ok := m.counters[key]
	if !ok {
		last, found, err := m.store.LastIndex(channelID, epoch)
		if err != nil {
			return 0, err
		}
		if found {
			next = last + 1
		}
	}

	if err := m.store.PersistIndex(channelID, epoch, next); err != nil {
		return 0, err
	}
	m.counters[key] = next + 1

	return next, nil
}

// RecordIncoming registers a freshly validated incoming ticket in the
// Untouched state.
func (m *Manager) RecordIncoming(t *Ticket) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byChannel, ok := m.incoming[t.ChannelID]
	if !ok {
		byChannel = make(map[uint64]*record)
		m.incoming[t.ChannelID] = byChannel
	}
	byChannel[t.Index] = &record{ticket: t, state: Untouched}
}

// ResolveWin transitions an Untouched ticket to BeingRedeemed once its PoR
// response has been reconstructed and found to be a winner, or removes it
// entirely (drop, per spec.md §4.3's "Untouched -> dropped") if it lost.
func (m *Manager) ResolveWin(channelID [channelIDSize]byte, index uint64, response por.Response, winning bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.lookup(channelID, index)
	if err != nil {
		return err
	}

	if !por.VerifyResponse(response, rec.ticket.Challenge) {
		delete(m.incoming[channelID], index)
		return por.ErrChallengeMismatch
	}

	if !winning {
		delete(m.incoming[channelID], index)
		return nil
	}

	if !canTransition(rec.state, BeingRedeemed) {
		return ErrInvalidTransition
	}
	rec.state = BeingRedeemed
	return nil
}

// MarkAggregated transitions every ticket matched by sel into
// BeingAggregated, as a strategy decision (spec.md §4.3).
func (m *Manager) MarkAggregated(sel Selector) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, byChannel := range m.incoming {
		for _, rec := range byChannel {
			if !sel.Matches(rec) {
				continue
			}
			if !canTransition(rec.state, BeingAggregated) {
				continue
			}
			rec.state = BeingAggregated
			n++
		}
	}
	return n, nil
}

// RemoveRedeemed drops a ticket after its redemption transaction confirms
// or is rejected (spec.md §4.3 "BeingRedeemed -> (absent)").
func (m *Manager) RemoveRedeemed(channelID [channelIDSize]byte, index uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if byChannel, ok := m.incoming[channelID]; ok {
		delete(byChannel, index)
	}
}

// EvictEpoch drops every incoming ticket recorded for a channel's prior
// epoch (spec.md §9 Scenario F: channel epoch rotation invalidates
// prior-epoch tickets).
func (m *Manager) EvictEpoch(channelID [channelIDSize]byte, staleEpoch uint32) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	byChannel, ok := m.incoming[channelID]
	if !ok {
		return 0
	}

	n := 0
	for idx, rec := range byChannel {
		if rec.ticket.Epoch == staleEpoch {
			delete(byChannel, idx)
			n++
		}
	}
	return n
}

// StatsFor summarizes the lifecycle state of every incoming ticket on a
// channel (SPEC_FULL.md supplement).
func (m *Manager) StatsFor(channelID [channelIDSize]byte) Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s Stats
	for _, rec := range m.incoming[channelID] {
		switch rec.state {
		case Untouched:
			s.Untouched++
		case BeingRedeemed:
			s.BeingRedeemed++
		case BeingAggregated:
			s.BeingAggregated++
		}
	}
	return s
}

// UnrealizedValue sums the Amount of every ticket this node has issued on
// channelID and not yet seen resolved (spec.md §4.3/§6: an issuer must
// bound a new ticket's amount by the channel's balance minus the value
// already committed to outstanding ones). m.incoming tracks issued and
// received tickets side by side, keyed by the channel each was recorded
// against (see issueOneHopTicket, Decoder.FromRecv); since a lost or
// redeemed ticket is always removed from that map, every record still
// present under channelID is still outstanding exposure against it.
func (m *Manager) UnrealizedValue(channelID [channelIDSize]byte) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()

	sum := new(big.Int)
	for _, rec := range m.incoming[channelID] {
		sum.Add(sum, new(big.Int).SetBytes(rec.ticket.Amount[:]))
	}
	return sum
}

func (m *Manager) lookup(channelID [channelIDSize]byte, index uint64) (*record, error) {
	byChannel, ok := m.incoming[channelID]
	if !ok {
		return nil, ErrUnknownTicket
	}
	rec, ok := byChannel[index]
	if !ok {
		return nil, ErrUnknownTicket
	}
	return rec, nil
}
