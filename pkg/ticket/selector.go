package ticket

import "github.com/hopr-relay/core/pkg/fn"

// Selector picks a contiguous set of incoming tickets for bulk operations:
// mark state, count, or stream (spec.md §4.3 "Selection DSL").
type Selector struct {
	ChannelID [channelIDSize]byte
	Epoch     uint32

	// Index pins the selector to a single ticket when set.
	Index fn.Option[uint64]

	// TicketState filters by lifecycle state when set.
	TicketState fn.Option[State]

	// OnlyAggregated restricts the selection to tickets whose index
	// range spans more than one original ticket.
	OnlyAggregated bool
}

// Matches reports whether a ticket record satisfies the selector.
func (s Selector) Matches(rec *record) bool {
	if rec.ticket.ChannelID != s.ChannelID {
		return false
	}
	if rec.ticket.Epoch != s.Epoch {
		return false
	}
	if idx, ok := s.Index.Unpack(); ok && rec.ticket.Index != idx {
		return false
	}
	if st, ok := s.TicketState.Unpack(); ok && rec.state != st {
		return false
	}
	if s.OnlyAggregated && !rec.ticket.IsAggregated() {
		return false
	}
	return true
}
