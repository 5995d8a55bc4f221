package balancer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hopr-relay/core/pkg/surb"
)

type fakeEmitter struct {
	mu     sync.Mutex
	counts map[surb.Pseudonym]uint64
	calls  int
}

func newFakeEmitter() *fakeEmitter {
	return &fakeEmitter{counts: make(map[surb.Pseudonym]uint64)}
}

func (f *fakeEmitter) EmitReplenishment(pseudonym surb.Pseudonym, count uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[pseudonym] += count
	f.calls++
	return nil
}

func (f *fakeEmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestManagerEmitsOnDistress(t *testing.T) {
	t.Parallel()

	store := surb.NewStore(surb.Config{
		Capacity:          10,
		DistressThreshold: 5,
		TTL:               time.Hour,
		SweepInterval:     time.Hour,
	})
	defer store.Stop()

	emitter := newFakeEmitter()
	mgr := NewManager(store, emitter, Config{
		Setpoint:     10,
		OutputLimit:  100,
		Gains:        DefaultGains,
		TickInterval: time.Hour,
	})
	mgr.Start()
	defer mgr.Stop()

	var pseudonym surb.Pseudonym
	pseudonym[0] = 9
	mgr.Track(pseudonym)

	// Insert three SURBs and pop one: 2 remain, below the distress
	// threshold of 5, which triggers a DistressEvent.
	for i := 0; i < 3; i++ {
		store.Insert(pseudonym, surb.SURB{})
	}
	store.PopOne(pseudonym)

	require.Eventually(t, func() bool {
		return emitter.callCount() > 0
	}, time.Second, 10*time.Millisecond)
}

func TestManagerUntrackStopsSampling(t *testing.T) {
	t.Parallel()

	store := surb.NewStore(surb.Config{
		Capacity:          10,
		DistressThreshold: 5,
		TTL:               time.Hour,
		SweepInterval:     time.Hour,
	})
	defer store.Stop()

	emitter := newFakeEmitter()
	mgr := NewManager(store, emitter, Config{
		Setpoint:     10,
		OutputLimit:  100,
		Gains:        DefaultGains,
		TickInterval: time.Hour,
	})

	var pseudonym surb.Pseudonym
	pseudonym[0] = 1
	mgr.Track(pseudonym)
	mgr.Untrack(pseudonym)

	mgr.mu.Lock()
	_, tracked := mgr.controllers[pseudonym]
	mgr.mu.Unlock()

	require.False(t, tracked)
}
