package pipeline

import (
	"sync/atomic"

	"github.com/lightningnetwork/lnd/queue"

	"github.com/hopr-relay/core/pkg/metrics"
)

// DefaultWinningTicketQueueCapacity is the bound spec.md §5 prescribes for
// the decoder-to-manager handoff: exceeding it drops ticket metadata (the
// packet itself was already forwarded correctly) rather than blocking the
// decode path.
const DefaultWinningTicketQueueCapacity = 10_000_000

// winningTicket is what the decoder hands the ticket manager once a PoR
// response has been reconstructed and found to be a winner.
type winningTicket struct {
	channelID [32]byte
	index     uint64
	response  [32]byte
}

// winningTicketQueue bounds lnd/queue's unbounded ConcurrentQueue with an
// explicit capacity counter, so the decoder can never build unbounded
// backlog from a slow ticket manager (spec.md §5 "Winning-ticket queue
// overflow" policy).
type winningTicketQueue struct {
	inner    *queue.ConcurrentQueue
	capacity int64
	size     int64
	metrics  *metrics.Relay

	dropped uint64
}

// newWinningTicketQueue constructs a queue bounded at capacity (or
// DefaultWinningTicketQueueCapacity if capacity <= 0), reporting overflow
// drops to m if non-nil.
func newWinningTicketQueue(capacity int, m *metrics.Relay) *winningTicketQueue {
	if capacity <= 0 {
		capacity = DefaultWinningTicketQueueCapacity
	}

	q := &winningTicketQueue{
		inner:    queue.NewConcurrentQueue(64),
		capacity: int64(capacity),
		metrics:  m,
	}
	q.inner.Start()
	return q
}

func (q *winningTicketQueue) stop() {
	q.inner.Stop()
}

// push enqueues t, dropping it and logging a warning if the queue is at
// capacity (spec.md §7: "log warning, drop ticket metadata; packet still
// forwarded").
func (q *winningTicketQueue) push(t winningTicket) {
	if atomic.AddInt64(&q.size, 1) > q.capacity {
		atomic.AddInt64(&q.size, -1)
		atomic.AddUint64(&q.dropped, 1)
		if q.metrics != nil {
			q.metrics.DroppedTicketsOverflow.Inc()
		}
		log.Warnf("pipeline: winning ticket queue at capacity %d, "+
			"dropping ticket metadata for channel %x index %d",
			q.capacity, t.channelID, t.index)
		return
	}
	q.inner.ChanIn() <- t
}

// pop blocks until a winningTicket is available or the channel is closed.
func (q *winningTicketQueue) pop() (winningTicket, bool) {
	v, ok := <-q.inner.ChanOut()
	if !ok {
		return winningTicket{}, false
	}
	atomic.AddInt64(&q.size, -1)
	return v.(winningTicket), true
}

// droppedCount reports how many tickets have been dropped for overflow,
// for metrics.
func (q *winningTicketQueue) droppedCount() uint64 {
	return atomic.LoadUint64(&q.dropped)
}
