// Package surb implements the per-pseudonym SURB (Single-Use Reply Block)
// ring buffer described in spec.md §4.4: a bounded FIFO of prebuilt reply
// blocks, with oldest-evict overflow and distress signalling when a
// pseudonym's buffer runs low.
package surb

import (
	"container/list"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/ticker"
)

// ID uniquely identifies a single SURB within a pseudonym's buffer, used by
// PopOneIfHasID's exact-match retrieval (spec.md §4.4 rationale: "scanning
// would leak timing").
type ID [16]byte

// Pseudonym is the opaque per-session identifier a sender collects SURBs
// under.
type Pseudonym [16]byte

// SURB is a complete reverse-path packet template prebuilt by the original
// sender: everything the eventual replier needs to address a reply back to
// that sender without ever learning its identity, short of the application
// payload itself and a freshly issued first-hop ticket (a SURB cannot carry
// a ticket index, since ticket issuance must happen at send time).
//
// The top-level packet MAC authenticates (header, ciphertext), and the
// ciphertext only exists once the replier encrypts its own message, so a
// SURB cannot carry a precomputed MAC the way it carries alpha and header.
// Instead it carries FirstHopSecret, the same per-hop secret the original
// sender used when building the header's first layer, so the replier can
// compute that MAC itself at send time. The payload side needs no such
// trick: chacha20's keystream XOR is applied position-wise over a fixed
// PayloadSize window regardless of hop order, so a payload encrypted under
// N keystreams in sequence equals the payload XORed once against the XOR
// of those N keystreams. PayloadKeystream is that precombined XOR over
// every hop's payload keystream, letting the replier onion-encrypt in a
// single pass instead of walking the reply path's secrets one by one.
type SURB struct {
	ID ID

	Alpha            [AlphaSize]byte
	Header           [HeaderSize]byte
	FirstHopSecret   [32]byte
	PayloadKeystream [PayloadSize]byte

	// FirstHopChannel and FirstHopPeer identify the channel the replier
	// must issue a fresh ticket against before sending the reply packet
	// to its first hop.
	FirstHopChannel [32]byte
	FirstHopPeer    []byte
}

// AlphaSize, HeaderSize and PayloadSize mirror pkg/sphinx's wire constants,
// duplicated here so this package has no import-time dependency on the
// packet codec.
const (
	AlphaSize   = 33
	HeaderSize  = 228
	PayloadSize = 500
)

// DistressEvent is emitted whenever a pop leaves a pseudonym's buffer below
// its distress threshold, so the balancer can decide whether to schedule
// replenishment traffic (spec.md §4.4, §4.7).
type DistressEvent struct {
	Pseudonym Pseudonym
	Remaining int
}

type bucket struct {
	ring      *list.List // of SURB, front = oldest
	lastTouch time.Time
}

// Store is a bounded, per-pseudonym FIFO of SURBs (spec.md §4.4).
type Store struct {
	capacity  int
	distress  int
	ttl       time.Duration
	distressC chan DistressEvent

	evictTicker ticker.Ticker

	mu      sync.Mutex
	buckets map[Pseudonym]*bucket

	quit chan struct{}
	wg   sync.WaitGroup
}

// Config bundles Store's tunables.
type Config struct {
	// Capacity is the per-pseudonym ring buffer size C.
	Capacity int

	// DistressThreshold is D < C; falling below it after a pop emits a
	// DistressEvent.
	DistressThreshold int

	// TTL is how long a pseudonym may go untouched before its entire
	// buffer is evicted.
	TTL time.Duration

	// SweepInterval controls how often the TTL sweep runs.
	SweepInterval time.Duration
}

// NewStore constructs a Store and starts its background TTL sweep.
func NewStore(cfg Config) *Store {
	s := &Store{
		capacity:    cfg.Capacity,
		distress:    cfg.DistressThreshold,
		ttl:         cfg.TTL,
		distressC:   make(chan DistressEvent, 64),
		evictTicker: ticker.New(cfg.SweepInterval),
		buckets:     make(map[Pseudonym]*bucket),
		quit:        make(chan struct{}),
	}

	s.wg.Add(1)
	go s.sweepLoop()

	return s
}

// Distress returns the channel DistressEvents are published on. Consumers
// (the balancer) must drain it; it is bounded and drops the event if full,
// matching the cheap-cover-traffic nature of this signal.
func (s *Store) Distress() <-chan DistressEvent {
	return s.distressC
}

// Stop halts the background TTL sweep.
func (s *Store) Stop() {
	close(s.quit)
	s.wg.Wait()
}

func (s *Store) sweepLoop() {
	defer s.wg.Done()

	s.evictTicker.Resume()
	defer s.evictTicker.Stop()

	for {
		select {
		case <-s.evictTicker.Ticks():
			s.sweepExpired()
		case <-s.quit:
			return
		}
	}
}

func (s *Store) sweepExpired() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for p, b := range s.buckets {
		if now.Sub(b.lastTouch) >= s.ttl {
			delete(s.buckets, p)
		}
	}
}

// Insert pushes surb to the back of pseudonym's queue. If the queue is at
// capacity, the oldest SURB is evicted and its ID returned.
func (s *Store) Insert(pseudonym Pseudonym, sb SURB) (evicted ID, didEvict bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[pseudonym]
	if !ok {
		b = &bucket{ring: list.New()}
		s.buckets[pseudonym] = b
	}
	b.lastTouch = time.Now()

	if b.ring.Len() >= s.capacity {
		front := b.ring.Front()
		evicted = front.Value.(SURB).ID
		didEvict = true
		b.ring.Remove(front)
	}

	b.ring.PushBack(sb)
	return evicted, didEvict
}

// PopOne removes and returns the oldest SURB for pseudonym, along with how
// many remain afterward. If the buffer falls below the distress threshold,
// a DistressEvent is published (best-effort; dropped if the channel is
// full).
func (s *Store) PopOne(pseudonym Pseudonym) (SURB, int, bool) {
	s.mu.Lock()
	sb, remaining, ok := s.popLocked(pseudonym, nil)
	s.mu.Unlock()

	if ok {
		s.maybeSignalDistress(pseudonym, remaining)
	}
	return sb, remaining, ok
}

// PopOneIfHasID pops the front SURB only if it carries id, without
// scanning the rest of the queue (spec.md §4.4: exact-id retrieval must not
// leak timing about queue contents beyond the front element).
func (s *Store) PopOneIfHasID(pseudonym Pseudonym, id ID) (SURB, int, bool) {
	s.mu.Lock()
	sb, remaining, ok := s.popLocked(pseudonym, &id)
	s.mu.Unlock()

	if ok {
		s.maybeSignalDistress(pseudonym, remaining)
	}
	return sb, remaining, ok
}

func (s *Store) popLocked(pseudonym Pseudonym, wantID *ID) (SURB, int, bool) {
	b, ok := s.buckets[pseudonym]
	if !ok || b.ring.Len() == 0 {
		return SURB{}, 0, false
	}

	front := b.ring.Front()
	sb := front.Value.(SURB)
	if wantID != nil && sb.ID != *wantID {
		return SURB{}, b.ring.Len(), false
	}

	b.ring.Remove(front)
	b.lastTouch = time.Now()
	return sb, b.ring.Len(), true
}

func (s *Store) maybeSignalDistress(pseudonym Pseudonym, remaining int) {
	if remaining >= s.distress {
		return
	}
	select {
	case s.distressC <- DistressEvent{Pseudonym: pseudonym, Remaining: remaining}:
	default:
	}
}

// Len reports how many SURBs are currently buffered for pseudonym.
func (s *Store) Len(pseudonym Pseudonym) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[pseudonym]
	if !ok {
		return 0
	}
	return b.ring.Len()
}
