package sphinx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestGenerateFillerForwardingChunk verifies the algebraic property
// generateFiller exists to guarantee: for a two-hop path, after hop 0 peels
// its own header layer via the zero-pad-and-decrypt trick, the header bytes
// it forwards to hop 1 are bit-identical to the header hop 1's own MAC was
// computed over at wrap time.
func TestGenerateFillerForwardingChunk(t *testing.T) {
	t.Parallel()

	var secret0, secret1 [32]byte
	copy(secret0[:], "hop-zero-secret-32-bytes-long!!!")
	copy(secret1[:], "hop-one-secret-32-bytes-long!!!!")

	secrets := []HopSecret{{Secret: secret0}, {Secret: secret1}}

	headerInitial := generateFiller(secrets)
	require.Len(t, headerInitial, HeaderSize)

	// Hop 1 (final) wrap step: prepend its layer, cipher, truncate.
	var layer1 [PerHopSize]byte
	copy(layer1[:LinkIDSize], finalLinkID[:])

	extended1 := make([]byte, PerHopSize+HeaderSize)
	copy(extended1, layer1[:])
	copy(extended1[PerHopSize:], headerInitial)
	newHeaderStream(secret1).xor(extended1, extended1)
	headerAfterHop1 := extended1[:HeaderSize]

	// Hop 0 wrap step: prepend its layer addressed to hop 1, cipher,
	// truncate. The MAC embedded here is computed over headerAfterHop1.
	var layer0 [PerHopSize]byte
	layer0[0] = 0x01

	extended0 := make([]byte, PerHopSize+HeaderSize)
	copy(extended0, layer0[:])
	copy(extended0[PerHopSize:], headerAfterHop1)
	newHeaderStream(secret0).xor(extended0, extended0)
	headerAfterHop0 := extended0[:HeaderSize]

	// Hop 0 unwrap step: zero-pad and decrypt with its own secret to
	// recover the layer plus the header it must forward to hop 1.
	peelBuf := make([]byte, HeaderSize+PerHopSize)
	copy(peelBuf, headerAfterHop0)
	newHeaderStream(secret0).xor(peelBuf, peelBuf)
	forwardedHeader := peelBuf[PerHopSize:]

	require.Equal(t, headerAfterHop1, forwardedHeader)
}
