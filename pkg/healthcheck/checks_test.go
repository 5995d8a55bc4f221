package healthcheck

import (
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/require"

	"github.com/hopr-relay/core/pkg/chain"
	"github.com/hopr-relay/core/pkg/store"
)

func TestChainConnectivityPasses(t *testing.T) {
	obs := ChainConnectivity(
		chain.NewMemory(), [32]byte{1},
		time.Hour, time.Second, time.Millisecond, 1,
	)
	require.NoError(t, obs.Check())
}

func TestTicketStoreWritablePasses(t *testing.T) {
	obs := TicketStoreWritable(
		store.NewMemoryStore(), [32]byte{2},
		time.Hour, time.Second, time.Millisecond, 1,
	)
	require.NoError(t, obs.Check())
	require.NoError(t, obs.Check())
}

func TestMonitorShutsDownOnPersistentFailure(t *testing.T) {
	attempts := 0
	failing := &Observation{
		Name: "always-fails",
		Check: func() error {
			attempts++
			return errShutdownTestProbe
		},
		Interval: ticker.NewForce(time.Millisecond),
		Attempts: 2,
		Timeout:  time.Second,
		Backoff:  time.Millisecond,
	}

	shutdownCh := make(chan struct{}, 1)
	m := NewMonitor(&Config{
		Checks: []*Observation{failing},
		Shutdown: func(format string, params ...interface{}) {
			select {
			case shutdownCh <- struct{}{}:
			default:
			}
		},
	})

	require.NoError(t, m.Start())
	defer m.Stop()

	select {
	case <-shutdownCh:
	case <-time.After(2 * time.Second):
		t.Fatal("expected shutdown to be requested")
	}
	require.Equal(t, 2, attempts)
}

var errShutdownTestProbe = errShutdownProbe{}

type errShutdownProbe struct{}

func (errShutdownProbe) Error() string { return "probe failure" }
