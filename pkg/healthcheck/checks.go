package healthcheck

import (
	"time"

	"github.com/go-errors/errors"

	"github.com/hopr-relay/core/pkg/chain"
	"github.com/hopr-relay/core/pkg/ticket"
)

// ErrChainUnreachable is returned by ChainConnectivity's probe when the
// configured channel lookup cannot be exercised at all (SPEC_FULL.md
// supplement: ambient liveliness checks for the collaborators pkg/pipeline
// depends on).
var ErrChainUnreachable = errors.New("healthcheck: chain reader unreachable")

// ChainConnectivity builds an Observation that periodically confirms the
// configured chain.ReadChannel can still be queried, by looking up a
// well-known probe channel ID. A probe channel absent from the chain is not
// itself a failure; chain.ReadChannel reports absence through fn.Option
// rather than an error, so only a panic from the underlying client (the way
// a gRPC-backed implementation would surface a dropped connection) counts
// as a failed probe.
func ChainConnectivity(
	reader chain.ReadChannel, probeChannelID [32]byte,
	interval, timeout, backoff time.Duration, attempts int,
) *Observation {
	check := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = ErrChainUnreachable
			}
		}()
		reader.ChannelByID(probeChannelID)
		return nil
	}

	return NewObservation(
		"chain-connectivity", check, interval, timeout, backoff, attempts,
	)
}

// probeEpoch is a reserved epoch value a real channel never reaches (epochs
// increment from zero on each channel reopen), used to keep the liveliness
// probe's writes out of any real channel's index sequence.
const probeEpoch = ^uint32(0)

// TicketStoreWritable builds an Observation that confirms the configured
// ticket.Store can still be written to and read back, round-tripping an
// incrementing counter under a reserved probe channel ID so it never
// collides with a real channel's outgoing index sequence.
func TicketStoreWritable(
	st ticket.Store, probeChannelID [32]byte,
	interval, timeout, backoff time.Duration, attempts int,
) *Observation {
	var next uint64

	check := func() error {
		next++
		if err := st.PersistIndex(probeChannelID, probeEpoch, next); err != nil {
			return err
		}

		got, found, err := st.LastIndex(probeChannelID, probeEpoch)
		if err != nil {
			return err
		}
		if !found || got != next {
			return errors.New("healthcheck: ticket store readback mismatch")
		}
		return nil
	}

	return NewObservation(
		"ticket-store", check, interval, timeout, backoff, attempts,
	)
}
