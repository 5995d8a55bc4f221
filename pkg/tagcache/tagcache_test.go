package tagcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCheckAndInsertDetectsReplay(t *testing.T) {
	t.Parallel()

	c := New(time.Minute)

	var tag Tag
	tag[0] = 0x42

	require.False(t, c.CheckAndInsert(tag), "first sight must not be a replay")
	require.True(t, c.CheckAndInsert(tag), "second sight within window is a replay")
	require.Equal(t, 1, c.Len(), "replay must not add a duplicate entry")
}

func TestCheckAndInsertAllowsAfterWindowExpires(t *testing.T) {
	t.Parallel()

	c := New(10 * time.Millisecond)

	var tag Tag
	tag[0] = 0x7

	require.False(t, c.CheckAndInsert(tag))
	time.Sleep(20 * time.Millisecond)
	require.False(t, c.CheckAndInsert(tag), "tag outside the window is not a replay")
}

func TestReapDropsExpiredEntriesOnly(t *testing.T) {
	t.Parallel()

	c := New(10 * time.Millisecond)

	var oldTag, freshTag Tag
	oldTag[0] = 1
	freshTag[0] = 2

	c.CheckAndInsert(oldTag)
	time.Sleep(20 * time.Millisecond)
	c.CheckAndInsert(freshTag)

	n := c.Reap()
	require.Equal(t, 1, n)
	require.Equal(t, 1, c.Len())
}

func TestDistinctTagsDoNotCollide(t *testing.T) {
	t.Parallel()

	c := New(time.Minute)

	var a, b Tag
	a[0] = 1
	b[0] = 2

	require.False(t, c.CheckAndInsert(a))
	require.False(t, c.CheckAndInsert(b))
	require.Equal(t, 2, c.Len())
}
