package surb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(capacity, distress int) *Store {
	return NewStore(Config{
		Capacity:          capacity,
		DistressThreshold: distress,
		TTL:               time.Hour,
		SweepInterval:     time.Hour,
	})
}

func TestInsertPopFIFOOrder(t *testing.T) {
	t.Parallel()

	s := newTestStore(10, 2)
	defer s.Stop()

	var p Pseudonym
	p[0] = 1

	var ids []ID
	for i := 0; i < 3; i++ {
		var sb SURB
		sb.ID[0] = byte(i + 1)
		ids = append(ids, sb.ID)
		_, evicted := s.Insert(p, sb)
		require.False(t, evicted)
	}

	for _, want := range ids {
		got, _, ok := s.PopOne(p)
		require.True(t, ok)
		require.Equal(t, want, got.ID)
	}

	_, _, ok := s.PopOne(p)
	require.False(t, ok)
}

func TestInsertOverflowEvictsOldest(t *testing.T) {
	t.Parallel()

	s := newTestStore(2, 0)
	defer s.Stop()

	var p Pseudonym
	p[0] = 2

	var first, second, third SURB
	first.ID[0] = 1
	second.ID[0] = 2
	third.ID[0] = 3

	_, evicted := s.Insert(p, first)
	require.False(t, evicted)
	_, evicted = s.Insert(p, second)
	require.False(t, evicted)

	evictedID, didEvict := s.Insert(p, third)
	require.True(t, didEvict)
	require.Equal(t, first.ID, evictedID)

	require.Equal(t, 2, s.Len(p))
}

func TestPopOneIfHasIDOnlyMatchesFront(t *testing.T) {
	t.Parallel()

	s := newTestStore(10, 0)
	defer s.Stop()

	var p Pseudonym
	p[0] = 3

	var front, back SURB
	front.ID[0] = 0xAA
	back.ID[0] = 0xBB
	s.Insert(p, front)
	s.Insert(p, back)

	_, _, ok := s.PopOneIfHasID(p, back.ID)
	require.False(t, ok, "back of queue must not match")

	got, _, ok := s.PopOneIfHasID(p, front.ID)
	require.True(t, ok)
	require.Equal(t, front.ID, got.ID)
}

func TestDistressSignalOnLowBuffer(t *testing.T) {
	t.Parallel()

	s := newTestStore(10, 2)
	defer s.Stop()

	var p Pseudonym
	p[0] = 4

	for i := 0; i < 3; i++ {
		var sb SURB
		sb.ID[0] = byte(i)
		s.Insert(p, sb)
	}

	// 3 -> 2 remaining, not yet below threshold.
	_, _, ok := s.PopOne(p)
	require.True(t, ok)
	select {
	case ev := <-s.Distress():
		t.Fatalf("unexpected distress event before crossing threshold: %+v", ev)
	default:
	}

	// 2 -> 1 remaining, now below threshold of 2.
	_, _, ok = s.PopOne(p)
	require.True(t, ok)

	select {
	case ev := <-s.Distress():
		require.Equal(t, p, ev.Pseudonym)
		require.Equal(t, 1, ev.Remaining)
	case <-time.After(time.Second):
		t.Fatal("expected a distress event")
	}
}

func TestLenOnUnknownPseudonymIsZero(t *testing.T) {
	t.Parallel()

	s := newTestStore(10, 0)
	defer s.Stop()

	var p Pseudonym
	p[0] = 0xFF
	require.Equal(t, 0, s.Len(p))
}
