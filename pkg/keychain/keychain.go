// Package keychain wires a relay node's long-term secp256k1 identity into
// the narrow interfaces pkg/pipeline consumes from a key-management
// collaborator: the Signer that binds tickets and acknowledgements to this
// node's identity, and the peer directory that turns a PeerID into the
// public key or link identifier pkg/sphinx needs. It is adapted from the
// teacher's keychain.RouterKeychain pattern of wrapping a single private
// key behind whatever narrow interface a particular consumer needs, rather
// than exposing the key material itself.
package keychain

import (
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"lukechampine.com/blake3"

	"github.com/hopr-relay/core/pkg/pipeline"
	"github.com/hopr-relay/core/pkg/sphinx"
	"github.com/hopr-relay/core/pkg/ticket"
)

const chainKeyLabel = "hopr-relay/keychain/chain-key"

// KeyRing owns a node's long-term packet-layer private key and the static
// directory mapping its known peers to their public keys and link
// identifiers. cmd/relaynode constructs one at startup around a freshly
// generated private key, with an empty peer directory.
type KeyRing struct {
	priv *btcec.PrivateKey

	mu        sync.RWMutex
	byPeer    map[string]*btcec.PublicKey
	byLinkID  map[[sphinx.LinkIDSize]byte]pipeline.PeerID
}

// New constructs a KeyRing around priv with an empty peer directory. Call
// AddPeer to populate it as peers are discovered or configured.
func New(priv *btcec.PrivateKey) *KeyRing {
	return &KeyRing{
		priv:     priv,
		byPeer:   make(map[string]*btcec.PublicKey),
		byLinkID: make(map[[sphinx.LinkIDSize]byte]pipeline.PeerID),
	}
}

// AddPeer registers peer's public key under the given link identifier, the
// value the sender embeds in a header layer addressed to it and that peer
// later reads back off its own unwrap result.
func (k *KeyRing) AddPeer(peer pipeline.PeerID, pubKey *btcec.PublicKey, linkID [sphinx.LinkIDSize]byte) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.byPeer[string(peer)] = pubKey
	k.byLinkID[linkID] = peer
}

// RemovePeer drops peer from the directory, e.g. once its channel closes.
func (k *KeyRing) RemovePeer(peer pipeline.PeerID) {
	k.mu.Lock()
	defer k.mu.Unlock()

	delete(k.byPeer, string(peer))
	for linkID, p := range k.byLinkID {
		if string(p) == string(peer) {
			delete(k.byLinkID, linkID)
		}
	}
}

// PubKeyFor implements pkg/pipeline's peer directory: resolving a PeerID to
// the long-term public key used for Sphinx KEM.
func (k *KeyRing) PubKeyFor(peer pipeline.PeerID) (*btcec.PublicKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	pub, ok := k.byPeer[string(peer)]
	if !ok {
		return nil, ErrUnknownPeer
	}
	return pub, nil
}

// PeerForLinkID implements pkg/pipeline's peer directory: recovering which
// configured peer a forwarded packet's truncated link id names.
func (k *KeyRing) PeerForLinkID(id [sphinx.LinkIDSize]byte) (pipeline.PeerID, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	peer, ok := k.byLinkID[id]
	return peer, ok
}

// LocalChainKey implements pkg/pipeline.Signer: a stable 20-byte identifier
// for this node's on-chain address, derived from its packet public key the
// same way pkg/chain.KeyOps associates the two off-chain (the real mapping
// lives on-chain; this derivation only needs to be stable and collision
// resistant for the in-process test harness and local tooling that never
// touches a real chain client).
func (k *KeyRing) LocalChainKey() [20]byte {
	return chainKeyFor(k.priv.PubKey())
}

// PacketPubKey implements pkg/pipeline.Signer.
func (k *KeyRing) PacketPubKey() []byte {
	return k.priv.PubKey().SerializeCompressed()
}

// SignTicket implements pkg/pipeline.Signer: a compact, recoverable
// secp256k1 signature over the ticket's encoded form minus the signature
// field itself, following the same SignCompact convention pkg/sphinx's
// curve arithmetic already depends on via btcec.
func (k *KeyRing) SignTicket(t *ticket.Ticket) ([65]byte, error) {
	encoded := t.Encode()
	unsigned := encoded[:len(encoded)-65]
	return k.sign(unsigned)
}

// SignBytes implements pkg/pipeline.Signer.
func (k *KeyRing) SignBytes(msg []byte) ([65]byte, error) {
	return k.sign(msg)
}

func (k *KeyRing) sign(msg []byte) ([65]byte, error) {
	digest := blake3.Sum256(msg)

	sig := ecdsa.SignCompact(k.priv, digest[:], true)

	var out [65]byte
	copy(out[:], sig)
	return out, nil
}

// VerifyTicketSignature implements pkg/pipeline's ticketVerifier: it
// resolves issuer's known public key from the directory and checks t's
// signature against it, using the same encode-minus-signature convention
// SignTicket signs with. An issuer this KeyRing has no directory entry for
// can never pass, which is the conservative default for spec.md §7's "drop
// packet, do not forward" on a bad signature.
func (k *KeyRing) VerifyTicketSignature(issuer pipeline.PeerID, t *ticket.Ticket) bool {
	pub, err := k.PubKeyFor(issuer)
	if err != nil {
		return false
	}

	encoded := t.Encode()
	unsigned := encoded[:len(encoded)-65]
	return VerifySignature(pub, unsigned, t.Signature)
}

// VerifySignature recovers the public key that produced sig over msg and
// reports whether it matches want, used to authenticate a peer's ticket or
// acknowledgement signature before acting on it.
func VerifySignature(want *btcec.PublicKey, msg []byte, sig [65]byte) bool {
	digest := blake3.Sum256(msg)

	recovered, _, err := ecdsa.RecoverCompact(sig[:], digest[:])
	if err != nil {
		return false
	}
	return recovered.IsEqual(want)
}

func chainKeyFor(pub *btcec.PublicKey) [20]byte {
	var key [32]byte
	copy(key[:], chainKeyLabel)

	h := blake3.New(32, key[:])
	h.Write(pub.SerializeCompressed())
	digest := h.Sum(nil)

	var out [20]byte
	copy(out[:], digest[:20])
	return out
}
