package pipeline

import (
	"sync"

	"github.com/hopr-relay/core/pkg/surb"
)

// A single surb.SURB, fully serialized, is larger than one packet's payload
// capacity: its PayloadKeystream field alone is PayloadSize bytes, the same
// size as the payload slot that would have to carry it. spec.md §4.6's "if
// the payload contains SURBs, insert each into the SURB store" is only
// realizable by spreading one serialized SURB across a short run of
// consecutive final-hop packets under the same pseudonym and reassembling
// it client-side; this file implements that framing plus the reassembly
// buffer the Decoder drives.

const (
	finalPayloadKindData byte = iota
	finalPayloadKindSurbChunk
)

// surbChunkHeaderSize is the fixed framing overhead of a SurbChunk payload:
// kind, pseudonym, total chunk count, this chunk's index.
const surbChunkHeaderSize = 1 + 16 + 1 + 1

// surbPeerSize fixes FirstHopPeer's on-wire length to a compressed pubkey,
// matching sphinx.AlphaSize; a shorter peer id is zero-padded.
const surbPeerSize = 33

// surbWireSize is the fixed serialized length of one surb.SURB.
const surbWireSize = 16 /* ID */ + 33 /* Alpha */ + 228 /* Header */ +
	32 /* FirstHopSecret */ + 500 /* PayloadKeystream */ + 32 /* FirstHopChannel */ + surbPeerSize

// EncodeDataPayload frames plaintext as ordinary application data, the
// default shape of a final-hop payload.
func EncodeDataPayload(plaintext []byte) []byte {
	out := make([]byte, 0, len(plaintext)+1)
	out = append(out, finalPayloadKindData)
	return append(out, plaintext...)
}

// DecodeFinalPayload reports whether raw is a SURB chunk or plain
// application data, returning the data bytes when it is the latter.
func DecodeFinalPayload(raw []byte) (data []byte, isSurbChunk bool) {
	if len(raw) == 0 {
		return raw, false
	}
	if raw[0] == finalPayloadKindSurbChunk {
		return nil, true
	}
	return raw[1:], false
}

// encodeSurb serializes one SURB to its fixed surbWireSize-byte form.
func encodeSurb(sb surb.SURB) []byte {
	out := make([]byte, surbWireSize)
	off := 0

	copy(out[off:], sb.ID[:])
	off += 16
	copy(out[off:], sb.Alpha[:])
	off += 33
	copy(out[off:], sb.Header[:])
	off += 228
	copy(out[off:], sb.FirstHopSecret[:])
	off += 32
	copy(out[off:], sb.PayloadKeystream[:])
	off += 500
	copy(out[off:], sb.FirstHopChannel[:])
	off += 32
	copy(out[off:off+surbPeerSize], sb.FirstHopPeer)

	return out
}

// decodeSurb parses a fixed surbWireSize-byte SURB. FirstHopPeer is returned
// at its full padded width; callers that need the original short peer id
// must trim trailing zeroes themselves.
func decodeSurb(b []byte) surb.SURB {
	var sb surb.SURB
	off := 0

	copy(sb.ID[:], b[off:off+16])
	off += 16
	copy(sb.Alpha[:], b[off:off+33])
	off += 33
	copy(sb.Header[:], b[off:off+228])
	off += 228
	copy(sb.FirstHopSecret[:], b[off:off+32])
	off += 32
	copy(sb.PayloadKeystream[:], b[off:off+500])
	off += 500
	copy(sb.FirstHopChannel[:], b[off:off+32])
	off += 32
	sb.FirstHopPeer = append([]byte(nil), b[off:off+surbPeerSize]...)

	return sb
}

// EncodeSurbChunks splits one SURB's wire encoding into the payload-sized
// chunks a sender embeds across consecutive final-hop packets to the same
// destination. Each chunk already carries its own framing (the SurbChunk kind
// byte, pseudonym, chunk count and chunk index) that DecodeFinalPayload and
// SurbReassembler.Feed expect.
func EncodeSurbChunks(pseudonym surb.Pseudonym, sb surb.SURB, payloadCapacity int) [][]byte {
	chunkCap := payloadCapacity - surbChunkHeaderSize
	raw := encodeSurb(sb)

	total := (len(raw) + chunkCap - 1) / chunkCap
	chunks := make([][]byte, 0, total)

	for i := 0; i < total; i++ {
		start := i * chunkCap
		end := start + chunkCap
		if end > len(raw) {
			end = len(raw)
		}

		out := make([]byte, 0, payloadCapacity)
		out = append(out, finalPayloadKindSurbChunk)
		out = append(out, pseudonym[:]...)
		out = append(out, byte(total), byte(i))
		out = append(out, raw[start:end]...)

		chunks = append(chunks, out)
	}

	return chunks
}

// surbAssembly accumulates chunks for one pseudonym's in-flight SURB.
type surbAssembly struct {
	total  byte
	pieces map[byte][]byte
}

// SurbReassembler buffers incoming SurbChunk payloads per pseudonym until a
// full SURB has arrived, then hands it to the caller to insert into the
// SURB store. It is the Decoder's counterpart to EncodeSurbChunks.
type SurbReassembler struct {
	mu      sync.Mutex
	pending map[surb.Pseudonym]*surbAssembly
}

// NewSurbReassembler constructs an empty SurbReassembler.
func NewSurbReassembler() *SurbReassembler {
	return &SurbReassembler{pending: make(map[surb.Pseudonym]*surbAssembly)}
}

// Feed processes one raw final-hop payload already known to carry a SURB
// chunk (DecodeFinalPayload returned isSurbChunk == true). It returns the
// fully reassembled SURB once every chunk for its pseudonym has arrived.
func (r *SurbReassembler) Feed(raw []byte) (pseudonym surb.Pseudonym, sb surb.SURB, complete bool) {
	if len(raw) < surbChunkHeaderSize {
		return pseudonym, sb, false
	}

	copy(pseudonym[:], raw[1:17])
	total := raw[17]
	index := raw[18]
	piece := raw[surbChunkHeaderSize:]

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.pending[pseudonym]
	if !ok {
		a = &surbAssembly{total: total, pieces: make(map[byte][]byte)}
		r.pending[pseudonym] = a
	}
	a.pieces[index] = append([]byte(nil), piece...)

	if byte(len(a.pieces)) < a.total {
		return pseudonym, sb, false
	}

	raw2 := make([]byte, 0, surbWireSize)
	for i := byte(0); i < a.total; i++ {
		raw2 = append(raw2, a.pieces[i]...)
	}
	delete(r.pending, pseudonym)

	if len(raw2) < surbWireSize {
		return pseudonym, sb, false
	}

	return pseudonym, decodeSurb(raw2[:surbWireSize]), true
}
