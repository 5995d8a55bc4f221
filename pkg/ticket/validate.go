package ticket

import (
	"math/big"

	"github.com/hopr-relay/core/pkg/por"
)

// Channel is the minimal view of on-chain channel state the validator needs
// (spec.md §3's Channel entity, restricted to the forward-path checks).
type Channel struct {
	Epoch            uint32
	LastRedeemed     uint64
	MinimumWinProb   float64
	MinimumPrice     *big.Int
	PathPositionFrom int
}

// ValidateForward applies the forward-path checks spec.md §4.6 step 3
// requires before an intermediate hop re-wraps and forwards: current
// epoch, index not stale, amount at least price scaled by path position,
// win probability at least the network minimum.
func ValidateForward(t *Ticket, ch Channel) error {
	if t.Epoch != ch.Epoch {
		return ErrEpochMismatch
	}
	if t.Index < ch.LastRedeemed {
		return ErrStaleIndex
	}

	amount := new(big.Int).SetBytes(t.Amount[:])
	minimum := new(big.Int).Mul(
		ch.MinimumPrice, big.NewInt(int64(ch.PathPositionFrom)),
	)
	if amount.Cmp(minimum) < 0 {
		return ErrAmountTooLow
	}

	if por.DecodeWinProb(t.WinProbEncoded) < ch.MinimumWinProb {
		return ErrWinProbTooLow
	}

	return nil
}
