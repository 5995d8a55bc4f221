package sphinx

import "github.com/btcsuite/btcd/btcec/v2"

// Action classifies the outcome of Unwrap.
type Action int

const (
	// ActionForward indicates the packet must be re-wrapped and sent to
	// NextLinkID.
	ActionForward Action = iota

	// ActionFinal indicates this hop is the destination; Plaintext holds
	// the recovered application payload.
	ActionFinal
)

// UnwrapResult is the outcome of processing one hop of a packet (spec.md
// §4.1 "Unwrap operation").
type UnwrapResult struct {
	Action Action

	// SharedSecret is this hop's KEM output, s = KDF(alpha^sk). Callers
	// use it to derive PoR half-keys and the packet tag.
	SharedSecret [32]byte

	// PacketTag is the replay-detection tag for this hop/packet.
	PacketTag [16]byte

	// PoRShare is the relayer-private metadata carried in this hop's
	// header layer: the por.Challenge the sender pre-computed for the
	// ticket this hop issues to the next one (unused at the final hop,
	// which issues no further ticket).
	PoRShare [RelayerMetaSize]byte

	// Fields below are populated only when Action == ActionForward.
	NextLinkID     [LinkIDSize]byte
	nextAlpha      [AlphaSize]byte
	nextHeader     [HeaderSize]byte
	nextMAC        [MacSize]byte
	nextCiphertext [PayloadSize]byte

	// Plaintext is populated only when Action == ActionFinal.
	Plaintext []byte
}

// DeriveSharedSecret performs this hop's half of the KEM (alpha^sk, then
// the KDF) without touching the MAC or header, so a caller can compute the
// replay tag and check it against the tag cache before paying for the MAC
// verification and header-peeling UnwrapWithSecret does (spec.md §4.1's
// stated ordering rationale: check the tag first, since a replayed packet
// should cost as little as possible to reject).
func DeriveSharedSecret(pkt *Packet, sk *btcec.PrivateKey) ([32]byte, error) {
	alphaPoint, err := parseAlpha(pkt.Alpha)
	if err != nil {
		return [32]byte{}, err
	}

	sharedPoint := scalarMult(alphaPoint, &sk.Key)
	return deriveSharedSecret(sharedPoint), nil
}

// PacketTagFor computes the replay-detection tag for secret, exported so a
// caller that already derived secret via DeriveSharedSecret need not call
// into UnwrapWithSecret just to learn it.
func PacketTagFor(secret [32]byte) [16]byte {
	return packetTag(secret)
}

// Unwrap processes one hop of an incoming packet using the relayer's
// long-term private key. It never panics on malformed input; all failure
// modes are returned as typed errors per spec.md §7. Callers that need to
// check a packet's replay tag before paying for MAC verification (spec.md
// §4.1) should call DeriveSharedSecret and UnwrapWithSecret directly
// instead.
func Unwrap(pkt *Packet, sk *btcec.PrivateKey) (*UnwrapResult, error) {
	secret, err := DeriveSharedSecret(pkt, sk)
	if err != nil {
		return nil, err
	}
	return UnwrapWithSecret(pkt, secret)
}

// UnwrapWithSecret finishes processing a hop of an incoming packet given
// its already-derived shared secret: MAC verification, header peeling, and
// the forward/final branch (spec.md §4.1 "Unwrap operation" steps 2-5).
func UnwrapWithSecret(pkt *Packet, secret [32]byte) (*UnwrapResult, error) {
	alphaPoint, err := parseAlpha(pkt.Alpha)
	if err != nil {
		return nil, err
	}

	mac := computeMAC(secret, pkt.Header[:], pkt.Ciphertext[:])
	if !constantTimeEqualMAC(mac, pkt.MAC) {
		return nil, ErrMACMismatch
	}

	// Peel one header layer: extend with PerHopSize zero bytes on the
	// right, apply this hop's header keystream, and read the leading
	// layer off the front (spec.md §4.1 step 3 / the unwrap-side filler
	// trick described in §4.1 step 5).
	extended := make([]byte, HeaderSize+PerHopSize)
	copy(extended, pkt.Header[:])
	newHeaderStream(secret).xor(extended, extended)

	layer := extended[:PerHopSize]
	forwardHeader := extended[PerHopSize:]

	res := &UnwrapResult{SharedSecret: secret, PacketTag: packetTag(secret)}
	copy(res.PoRShare[:], layer[LinkIDSize+MacSize:])

	var linkID [LinkIDSize]byte
	copy(linkID[:], layer[:LinkIDSize])

	// Peel one payload layer unconditionally; at the final hop this
	// recovers the padded plaintext, at an intermediate hop it recovers
	// the ciphertext destined for the next one.
	var peeledPayload [PayloadSize]byte
	newPayloadStream(secret).xor(peeledPayload[:], pkt.Ciphertext[:])

	if linkID == finalLinkID {
		plain, err := unpadPayload(peeledPayload[:])
		if err != nil {
			return nil, err
		}
		res.Action = ActionFinal
		res.Plaintext = plain
		return res, nil
	}

	copy(res.NextLinkID[:], linkID[:])
	copy(res.nextMAC[:], layer[LinkIDSize:LinkIDSize+MacSize])
	copy(res.nextHeader[:], forwardHeader)
	res.nextCiphertext = peeledPayload

	b := blindingFactor(pkt.Alpha, secret)
	nextPoint := scalarMult(alphaPoint, b)
	res.nextAlpha = serializeAlpha(nextPoint)

	res.Action = ActionForward
	return res, nil
}

// RewrapForward builds the outgoing packet for a Forward result, attaching
// the newly-issued ticket for the next hop (spec.md §4.1 step 5,
// §4.6 decoder step 3).
func (r *UnwrapResult) RewrapForward(nextTicket [TicketSize]byte) (*Packet, error) {
	if r.Action != ActionForward {
		return nil, ErrNotForwardable
	}

	pkt := &Packet{
		Alpha:      r.nextAlpha,
		MAC:        r.nextMAC,
		Ciphertext: r.nextCiphertext,
		Ticket:     nextTicket,
	}
	copy(pkt.Header[:], r.nextHeader[:])

	return pkt, nil
}
