package keychain

import "github.com/go-errors/errors"

// ErrUnknownPeer is returned by PubKeyFor for a peer not present in the
// directory.
var ErrUnknownPeer = errors.New("keychain: unknown peer")
