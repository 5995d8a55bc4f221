package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()

	var channelID [32]byte
	channelID[0] = 1

	_, found, err := s.LastIndex(channelID, 1)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, s.PersistIndex(channelID, 1, 7))

	v, found, err := s.LastIndex(channelID, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(7), v)
}

func TestMemoryStoreIsolatesEpochs(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()

	var channelID [32]byte
	channelID[0] = 2

	require.NoError(t, s.PersistIndex(channelID, 1, 3))
	_, found, err := s.LastIndex(channelID, 2)
	require.NoError(t, err)
	require.False(t, found, "a different epoch must not see epoch 1's index")
}
