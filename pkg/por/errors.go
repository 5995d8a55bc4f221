package por

import "github.com/go-errors/errors"

var (
	// ErrIncompleteResponse is returned when a response is requested
	// before both half-keys are known.
	ErrIncompleteResponse = errors.New("por: response incomplete, missing a half-key")

	// ErrChallengeMismatch is returned when a reconstructed response does
	// not hash to the challenge committed in the ticket.
	ErrChallengeMismatch = errors.New("por: response does not match challenge")

	// ErrInvalidWinProb is returned when a win probability outside [0, 1]
	// is encoded or decoded.
	ErrInvalidWinProb = errors.New("por: win probability out of range")
)
