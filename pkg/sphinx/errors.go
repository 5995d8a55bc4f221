package sphinx

import "github.com/go-errors/errors"

var (
	// ErrMalformedLength is returned when Decode cannot read PacketSize
	// bytes, and by pkg/pipeline's Decoder when a received frame is not
	// exactly PacketSize bytes long.
	ErrMalformedLength = errors.New("sphinx: malformed packet length")

	// ErrPayloadTooLarge is returned when Wrap is given a plaintext that
	// does not fit in PayloadSize after the padding boundary byte.
	ErrPayloadTooLarge = errors.New("sphinx: payload exceeds PayloadSize")

	// ErrPaddingNotFound is returned when the payload padding boundary
	// tag cannot be located during unwrap of a final hop.
	ErrPaddingNotFound = errors.New("sphinx: padding boundary not found")

	// ErrInvalidAlpha is returned when the ephemeral group element is the
	// point at infinity or otherwise not a valid curve point.
	ErrInvalidAlpha = errors.New("sphinx: invalid alpha")

	// ErrMACMismatch is returned when the header/ciphertext MAC does not
	// match the value computed from the derived shared secret.
	ErrMACMismatch = errors.New("sphinx: mac mismatch")

	// ErrTooManyHops is returned when Wrap is given a path longer than
	// MaxHops, or an empty one.
	ErrTooManyHops = errors.New("sphinx: path exceeds MaxHops")

	// ErrShareCountMismatch is returned when the number of supplied PoR
	// shares does not equal the number of hops in the path.
	ErrShareCountMismatch = errors.New("sphinx: PoR share count mismatch")

	// ErrReplayedPacket is returned by the pipeline (not this package)
	// when the packet tag cache reports a repeat; kept here so callers
	// can match on a single sentinel across the drop paths of spec.md §7.
	ErrReplayedPacket = errors.New("sphinx: replayed packet")

	// ErrNotForwardable is returned by RewrapForward when called on an
	// UnwrapResult whose Action is ActionFinal rather than ActionForward.
	ErrNotForwardable = errors.New("sphinx: result is not forwardable")
)
