package ticket

import "github.com/go-errors/errors"

var (
	// ErrStaleIndex is returned when an incoming ticket's index is below
	// the channel's last-redeemed index.
	ErrStaleIndex = errors.New("ticket: index below last-redeemed")

	// ErrEpochMismatch is returned when a ticket's epoch does not match
	// the channel's current epoch.
	ErrEpochMismatch = errors.New("ticket: epoch mismatch")

	// ErrAmountTooLow is returned when a ticket's amount is below the
	// required minimum for its position in the path.
	ErrAmountTooLow = errors.New("ticket: amount below minimum")

	// ErrWinProbTooLow is returned when a ticket's win probability is
	// below the network minimum.
	ErrWinProbTooLow = errors.New("ticket: win probability below minimum")

	// ErrUnknownTicket is returned when a state transition is requested
	// for a ticket the manager has no record of.
	ErrUnknownTicket = errors.New("ticket: unknown ticket")

	// ErrInvalidTransition is returned when a state transition violates
	// the lifecycle described in spec.md §4.3.
	ErrInvalidTransition = errors.New("ticket: invalid state transition")
)
