package sphinx

// WrapRequest bundles everything the sender needs to produce an outgoing
// packet for a fully-specified path (spec.md §4.1 "Wrap operation").
type WrapRequest struct {
	// Path is the ordered list of hops, path[len(Path)-1] being the
	// final destination.
	Path []PathHop

	// Payload is the application plaintext; it must fit within
	// PayloadSize once the padding boundary byte is added.
	Payload []byte

	// PoRShares holds one RelayerMetaSize slot per hop, supplied by the
	// caller so this package stays free of PoR construction details.
	// PoRShares[i] is embedded in hop i's own header layer, so hop i
	// reads it back on its own Unwrap. For i < numHops-1 it carries the
	// por.Challenge the sender pre-computed for the ticket hop i will
	// issue to hop i+1 when it forwards — material only the sender could
	// compute, since it alone holds both hop i+1's and hop i+2's
	// per-hop secrets. Hop i relays this value opaquely into the ticket
	// it issues; it never learns the shares the challenge commits to.
	// PoRShares[numHops-1] (the final hop's own layer) is unused, since
	// the final hop issues no further ticket.
	PoRShares [][RelayerMetaSize]byte

	// FirstHopTicket is the ticket bound to the first hop; it travels
	// in the wire packet's Ticket field.
	FirstHopTicket [TicketSize]byte
}

// WrapResult is the outcome of Wrap: the wire packet plus the shared secrets
// derived for each hop, in path order, so the caller (pkg/pipeline) can
// derive PoR challenges without repeating the KEM.
type WrapResult struct {
	Packet  *Packet
	Secrets [][32]byte
}

// Wrap builds a fixed-size onion packet for req.Path, implementing spec.md
// §4.1's three construction steps (KEM chain, inside-out header, onion
// payload encryption). It derives its own per-hop secrets; callers that
// need those secrets ahead of time (to bind a ticket's PoR challenge to the
// header's embedded shares) should call DeriveHopSecrets and
// WrapWithSecrets instead.
func Wrap(req WrapRequest) (*WrapResult, error) {
	secrets, err := DeriveHopSecrets(req.Path)
	if err != nil {
		return nil, err
	}
	return WrapWithSecrets(secrets, req)
}

// WrapWithSecrets builds the wire packet from secrets already derived via
// DeriveHopSecrets, so the header's PoR shares can be computed from the
// exact same per-hop secrets the packet is encrypted under (pkg/pipeline's
// ticket-issuance step requires this).
func WrapWithSecrets(secrets []HopSecret, req WrapRequest) (*WrapResult, error) {
	numHops := len(req.Path)
	if numHops == 0 || numHops > MaxHops {
		return nil, ErrTooManyHops
	}
	if len(req.PoRShares) != numHops {
		return nil, ErrShareCountMismatch
	}
	if len(secrets) != numHops {
		return nil, ErrShareCountMismatch
	}

	padded, err := padPayload(req.Payload)
	if err != nil {
		return nil, err
	}

	header := generateFiller(secrets)

	ciphertext := padded[:]
	var mac [MacSize]byte

	// Build inside-out: i = numHops-1 (final hop) down to i = 0 (first
	// hop), exactly as spec.md §4.1 step 2/3 describe.
	for i := numHops - 1; i >= 0; i-- {
		secret := secrets[i].Secret

		// Onion-encrypt the payload one layer deeper.
		encrypted := make([]byte, PayloadSize)
		newPayloadStream(secret).xor(encrypted, ciphertext)
		ciphertext = encrypted

		// Prepend this hop's layer, re-cipher the whole header, and
		// truncate back to HeaderSize (the "filler trick").
		var layer [PerHopSize]byte
		if i == numHops-1 {
			copy(layer[:LinkIDSize], finalLinkID[:])
			// MAC field left zero; unused at the terminal hop.
		} else {
			copy(layer[:LinkIDSize], req.Path[i+1].LinkID[:])
			copy(layer[LinkIDSize:LinkIDSize+MacSize], mac[:])
		}
		copy(layer[LinkIDSize+MacSize:], req.PoRShares[i][:])

		extended := make([]byte, PerHopSize+HeaderSize)
		copy(extended, layer[:])
		copy(extended[PerHopSize:], header)

		newHeaderStream(secret).xor(extended, extended)
		header = extended[:HeaderSize]

		mac = computeMAC(secret, header, ciphertext)
	}

	pkt := &Packet{
		Alpha:  secrets[0].Alpha,
		MAC:    mac,
		Ticket: req.FirstHopTicket,
	}
	copy(pkt.Header[:], header)
	copy(pkt.Ciphertext[:], ciphertext)

	out := make([][32]byte, numHops)
	for i, s := range secrets {
		out[i] = s.Secret
	}

	return &WrapResult{Packet: pkt, Secrets: out}, nil
}
