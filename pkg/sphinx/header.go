package sphinx

import (
	"crypto/subtle"

	"github.com/btcsuite/btcd/btcec/v2"
)

// finalLinkID is the sentinel link identifier written into the final hop's
// header layer in place of a real next-hop address. spec.md §4.1 calls this
// "a terminator indicating this hop is final".
var finalLinkID = [LinkIDSize]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// PathHop describes one hop of a path known to the sender: the link
// identifier the previous hop should use to address it, and its long-term
// public key used to derive the per-hop shared secret.
type PathHop struct {
	LinkID [LinkIDSize]byte
	PubKey *btcec.PublicKey
}

// HopSecret holds the per-hop KEM output computed while walking a path: the
// re-blinded ephemeral group element a hop will see, and the shared secret
// derived via ECDH with that hop's long-term key. It is exported so callers
// that need the secret ahead of wrapping — to derive PoR half-keys and bind
// a ticket's challenge to them (pkg/pipeline) — can obtain it and feed it
// back into WrapWithSecrets, guaranteeing the header's embedded PoR share
// and the hop's actual shared secret are the same value.
type HopSecret struct {
	Alpha  [AlphaSize]byte
	Secret [32]byte
}

// DeriveHopSecrets performs the sender-side KEM + re-blinding chain
// described in spec.md §4.1 step 1: for each hop, derive a shared secret
// from the hop's public key and the current ephemeral alpha, then re-blind
// alpha for the next hop. Every call draws a fresh ephemeral scalar, so
// callers that need the result to back both a PoR challenge and the wire
// packet must derive it once and pass it to WrapWithSecrets rather than
// calling Wrap (which derives its own, unrelated, secrets).
func DeriveHopSecrets(path []PathHop) ([]HopSecret, error) {
	if len(path) == 0 || len(path) > MaxHops {
		return nil, ErrTooManyHops
	}

	x, err := generateEphemeralScalar()
	if err != nil {
		return nil, err
	}

	alphaPoint := scalarBaseMult(x)
	secrets := make([]HopSecret, len(path))

	for i, hop := range path {
		var hopPoint btcec.JacobianPoint
		hop.PubKey.AsJacobian(&hopPoint)

		shared := scalarMult(&hopPoint, x)
		secret := deriveSharedSecret(shared)
		alpha := serializeAlpha(alphaPoint)

		secrets[i] = HopSecret{Alpha: alpha, Secret: secret}

		// Re-blind for the next hop: alpha_{i+1} = alpha_i^{b_i},
		// x_{i+1} = x_i * b_i (equivalent exponent update, since we
		// track x rather than alpha directly).
		b := blindingFactor(alpha, secret)
		alphaPoint = scalarMult(alphaPoint, b)
		x.Mul(b)
	}

	return secrets, nil
}

// constantTimeEqualMAC reports whether two MACs are equal, without leaking
// timing information about the position of a mismatch.
func constantTimeEqualMAC(a, b [MacSize]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// headerStreamChunk returns length bytes of hop secret's header keystream,
// starting at offset from (the preceding bytes are generated and discarded
// to advance the stream's internal counter).
func headerStreamChunk(secret [32]byte, from, length int) []byte {
	stream := newHeaderStream(secret)
	_ = stream.filler(from)
	return stream.filler(length)
}

// generateFiller precomputes the pseudorandom chunks that must seed the
// "zeroed filler" header (spec.md §4.1 step 2) so that every intermediate
// hop's unwrap-side zero-pad-and-decrypt (spec.md §4.1 step 5) reconstructs
// exactly the header bytes its own wrap-time truncation would otherwise
// discard.
//
// Peeling one PerHopSize-sized layer at hop j always correctly reconstructs
// the first (MaxHops-1)*PerHopSize bytes of the header hop j+1 is meant to
// see, by simple keystream cancellation. Only hop j+1's *last* PerHopSize
// chunk depends on key material hop j does not have (it was produced by hop
// j+1's own wrap-time encryption, chained arbitrarily deep back to the
// initial filler). This function solves that chain for every intermediate
// hop in the path and seeds the corresponding chunk of the initial header,
// so that hop j's zero-pad reconstruction lands on the exact bytes hop j+1
// will verify against its ticket MAC. This is the classic Sphinx "filler
// string" construction, generalized to a path shorter than MaxHops.
func generateFiller(secrets []HopSecret) []byte {
	numHops := len(secrets)
	const n = MaxHops

	header := make([]byte, HeaderSize)

	for j := 0; j < numHops-1; j++ {
		chunkIndex := n - (numHops - j)

		value := headerStreamChunk(secrets[j].Secret, n*PerHopSize, PerHopSize)
		for m := j + 1; m < numHops; m++ {
			km := m - j
			from := (n - km) * PerHopSize
			chunk := headerStreamChunk(secrets[m].Secret, from, PerHopSize)
			for b := range value {
				value[b] ^= chunk[b]
			}
		}

		copy(header[chunkIndex*PerHopSize:(chunkIndex+1)*PerHopSize], value)
	}

	return header
}
