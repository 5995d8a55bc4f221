// Package por implements the Proof-of-Relay construction described in
// spec.md §4.2: binding a ticket's redeemability to proof that a relayer
// actually forwarded the packet it was paid to forward, via two additive
// half-keys whose sum is only knowable once both the forward and the
// downstream acknowledgement have been observed.
package por

import (
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"lukechampine.com/blake3"
)

const (
	// HalfKeySize is the length of one additive share of a PoR response.
	HalfKeySize = 32

	// ResponseSize is the length of a reconstructed PoR response.
	ResponseSize = 32

	// ChallengeSize is the length of a serialized PoR challenge,
	// g^response in compressed form.
	ChallengeSize = 33

	// WinProbSize is the wire length of an encoded winning probability
	// (spec.md §6).
	WinProbSize = 7
)

// HalfKey is one additive share of a PoR response.
type HalfKey [HalfKeySize]byte

// Response is the reconstructed sum h1 + h2, reduced mod the curve order.
type Response [ResponseSize]byte

// Challenge is g^response in compressed point form, committed to by a
// ticket at issuance time.
type Challenge [ChallengeSize]byte

const labelShare = "hopr-relay/por/share"

// DeriveShare derives the single additive half-key a party holding secret
// can compute for itself (spec.md §4.2). A relay path hop derives its own
// share this way from its own KEM output the moment it unwraps a packet;
// it never derives the other party's share, since that would require a
// secret only the other party holds. Which two shares are summed into a
// given ticket's response, and who holds which one, is a routing decision
// made by pkg/pipeline, not by this function.
func DeriveShare(secret [32]byte) HalfKey {
	return HalfKey(keyedHash(labelShare, secret[:]))
}

// Sum reconstructs the PoR response from both half-keys, reducing the
// integer sum mod the curve order exactly as the challenge's discrete log
// was constructed.
func Sum(h1, h2 HalfKey) Response {
	var s1, s2 btcec.ModNScalar
	s1.SetByteSlice(h1[:])
	s2.SetByteSlice(h2[:])
	s1.Add(&s2)

	var out Response
	b := s1.Bytes()
	copy(out[:], b[:])
	return out
}

// ChallengeFor computes g^response, the value a ticket commits to at
// issuance so redemption can be gated on the relayer eventually learning
// response (spec.md §4.2).
func ChallengeFor(response Response) Challenge {
	var scalar btcec.ModNScalar
	scalar.SetByteSlice(response[:])

	var point btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(&scalar, &point)
	point.ToAffine()

	pub := btcec.NewPublicKey(&point.X, &point.Y)

	var out Challenge
	copy(out[:], pub.SerializeCompressed())
	return out
}

// ChallengeForShares is a convenience wrapper combining Sum and
// ChallengeFor, used by the sender at ticket-issuance time.
func ChallengeForShares(h1, h2 HalfKey) Challenge {
	return ChallengeFor(Sum(h1, h2))
}

// VerifyResponse reports whether response is the discrete log committed to
// by challenge, i.e. whether a relayer holding response may legitimately
// claim the ticket that carried challenge.
func VerifyResponse(response Response, challenge Challenge) bool {
	return ChallengeFor(response) == challenge
}

// Reconstruct combines a relayer's own half-key with the one carried in a
// downstream acknowledgement and checks the result against the ticket's
// committed challenge before handing back a usable Response. pkg/pipeline's
// AckTracker does not call it; it performs the same Sum and VerifyResponse
// steps inline.
func Reconstruct(h1, h2 HalfKey, challenge Challenge) (Response, error) {
	response := Sum(h1, h2)
	if !VerifyResponse(response, challenge) {
		return Response{}, ErrChallengeMismatch
	}
	return response, nil
}

// IsWinning implements spec.md §4.2's win determination:
//
//	H(response, signer_pubkey, vrf_output) < win_prob · 2^256
//
// winProb is the decoded fraction in [0, 1]; the comparison is done over
// the full 256-bit digest using big.Int so no precision is lost scaling a
// float by 2^256.
func IsWinning(response Response, signerPubKey []byte, vrfOutput []byte, winProb float64) bool {
	h := blake3.New(32, nil)
	h.Write(response[:])
	h.Write(signerPubKey)
	h.Write(vrfOutput)
	digest := h.Sum(nil)

	lhs := new(big.Int).SetBytes(digest)

	// threshold = floor(winProb * 2^256), computed in a fixed-point
	// domain wide enough that float64's ~53 bits of mantissa don't
	// meaningfully bias the comparison.
	const scaleBits = 256
	winProbScaled := new(big.Float).Mul(
		big.NewFloat(winProb), new(big.Float).SetMantExp(big.NewFloat(1), scaleBits),
	)
	threshold, _ := winProbScaled.Int(nil)

	return lhs.Cmp(threshold) < 0
}

// keyedHash mirrors the domain-separated blake3 KDF used by pkg/sphinx, so
// half-key derivation composes cleanly with a hop's existing shared secret
// without introducing a second hash family.
func keyedHash(label string, data []byte) [32]byte {
	var key [32]byte
	copy(key[:], label)

	h := blake3.New(32, key[:])
	h.Write(data)

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
