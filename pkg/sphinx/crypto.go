package sphinx

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/chacha20"
	"lukechampine.com/blake3"
)

// zeroNonce is used for every stream-cipher invocation in this package.
// Every key passed to newStreamCipher is itself a one-time, domain-separated
// derivation from a per-hop ECDH secret, so there is no key/nonce reuse
// across distinct logical keystreams.
var zeroNonce [chacha20.NonceSize]byte

// generateEphemeralScalar draws a uniformly random non-zero scalar mod the
// curve order, used as the sender's per-packet ephemeral private exponent x.
func generateEphemeralScalar() (*btcec.ModNScalar, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return &priv.Key, nil
}

// scalarBaseMult computes g^k as a Jacobian point.
func scalarBaseMult(k *btcec.ModNScalar) *btcec.JacobianPoint {
	var result btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(k, &result)
	result.ToAffine()
	return &result
}

// scalarMult computes point^k as a Jacobian point.
func scalarMult(point *btcec.JacobianPoint, k *btcec.ModNScalar) *btcec.JacobianPoint {
	var result btcec.JacobianPoint
	btcec.ScalarMultNonConst(k, point, &result)
	result.ToAffine()
	return &result
}

// serializeAlpha compresses a curve point into its AlphaSize wire form.
func serializeAlpha(point *btcec.JacobianPoint) [AlphaSize]byte {
	pub := btcec.NewPublicKey(&point.X, &point.Y)
	var out [AlphaSize]byte
	copy(out[:], pub.SerializeCompressed())
	return out
}

// parseAlpha decompresses and validates alpha, rejecting the point at
// infinity (spec.md §4.1: "Invalid alpha ... causes drop, not panic").
func parseAlpha(b [AlphaSize]byte) (*btcec.JacobianPoint, error) {
	pub, err := btcec.ParsePubKey(b[:])
	if err != nil {
		return nil, ErrInvalidAlpha
	}

	var point btcec.JacobianPoint
	pub.AsJacobian(&point)
	if point.X.IsZero() && point.Y.IsZero() {
		return nil, ErrInvalidAlpha
	}
	return &point, nil
}

// domain-separation labels for the KDF tree rooted at a per-hop ECDH secret.
const (
	labelSecret  = "hopr-relay/sphinx/secret"
	labelBlind   = "hopr-relay/sphinx/blind"
	labelHeader  = "hopr-relay/sphinx/header-key"
	labelPayload = "hopr-relay/sphinx/payload-key"
	labelMAC     = "hopr-relay/sphinx/mac-key"
	labelTag     = "tag"
)

// deriveSharedSecret computes s = KDF(point) for the ECDH point resulting
// from either pubkey_i^x (sender side) or alpha^sk (relayer side).
func deriveSharedSecret(point *btcec.JacobianPoint) [32]byte {
	pub := btcec.NewPublicKey(&point.X, &point.Y)
	return keyedHash(labelSecret, pub.SerializeCompressed())
}

// blindingFactor computes b = H(alpha, s) reduced into a scalar mod the
// curve order, used to re-randomize alpha for the next hop.
func blindingFactor(alpha [AlphaSize]byte, secret [32]byte) *btcec.ModNScalar {
	digest := keyedHash(labelBlind, append(alpha[:], secret[:]...))

	var scalar btcec.ModNScalar
	scalar.SetByteSlice(digest[:])
	return &scalar
}

// subKey derives a domain-separated 32-byte key from the per-hop secret.
func subKey(label string, secret [32]byte) [32]byte {
	return keyedHash(label, secret[:])
}

// keyedHash is blake3's keyed hash mode, used throughout this package both
// as a MAC primitive and as a generic KDF expansion step.
func keyedHash(label string, data []byte) [32]byte {
	var key [32]byte
	copy(key[:], label)

	h := blake3.New(32, key[:])
	h.Write(data)

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ComputeMAC is the exported form of computeMAC, for callers (pkg/pipeline's
// SURB-reply path) that authenticate a packet built outside Wrap's normal
// hop loop, where the ciphertext becomes known only once the replier
// encrypts its own message.
func ComputeMAC(secret [32]byte, header [HeaderSize]byte, ciphertext [PayloadSize]byte) [MacSize]byte {
	return computeMAC(secret, header[:], ciphertext[:])
}

// computeMAC returns the truncated keyed MAC over the supplied header body
// and ciphertext, as described in spec.md §4.1 step 2.
func computeMAC(secret [32]byte, headerBody, ciphertext []byte) [MacSize]byte {
	key := subKey(labelMAC, secret)
	h := blake3.New(32, key[:])
	h.Write(headerBody)
	h.Write(ciphertext)

	var out [MacSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// packetTag derives the 16-byte replay-detection tag for a shared secret
// (spec.md §3, §4.5): packet_tag = H("tag", s).
func packetTag(secret [32]byte) [16]byte {
	digest := keyedHash(labelTag, secret[:])
	var out [16]byte
	copy(out[:], digest[:])
	return out
}

// newHeaderStream returns a keystream reader for re-randomizing/peeling the
// routing header under the given per-hop secret.
func newHeaderStream(secret [32]byte) cipherStream {
	key := subKey(labelHeader, secret)
	c, _ := chacha20.NewUnauthenticatedCipher(key[:], zeroNonce[:])
	return cipherStream{c}
}

// newPayloadStream returns a keystream reader for onion-encrypting/decrypting
// the application payload under the given per-hop secret.
func newPayloadStream(secret [32]byte) cipherStream {
	key := subKey(labelPayload, secret)
	c, _ := chacha20.NewUnauthenticatedCipher(key[:], zeroNonce[:])
	return cipherStream{c}
}

// cipherStream wraps a chacha20 keystream, providing XOR-in-place helpers
// and the ability to produce arbitrary-length pseudorandom filler.
type cipherStream struct {
	cipher *chacha20.Cipher
}

func (s cipherStream) xor(dst, src []byte) {
	s.cipher.XORKeyStream(dst, src)
}

// filler produces n bytes of keystream, used to extend the header with
// fresh pseudorandom padding on each hop so its length never changes.
func (s cipherStream) filler(n int) []byte {
	out := make([]byte, n)
	s.cipher.XORKeyStream(out, out)
	return out
}
