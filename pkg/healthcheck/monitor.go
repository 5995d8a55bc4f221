// Package healthcheck runs a set of periodic liveliness checks against a
// relay node's critical resources (its chain reader and ticket store) and
// requests shutdown if one of them fails past its configured
// retry budget. Checks run concurrently and independently, so a slow chain
// probe never delays a fast store probe. Adapted from the teacher's
// healthcheck.Monitor; the mechanism is unchanged, the Observation
// constructors in checks.go are new, built against this module's own
// collaborators.
package healthcheck

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-errors/errors"
	"github.com/lightningnetwork/lnd/ticker"
)

// Config contains configuration settings for a Monitor.
type Config struct {
	// Checks is a set of health checks that assert the relay node has
	// access to its critical resources.
	Checks []*Observation

	// Shutdown should be called to request safe shutdown on failure of a
	// health check.
	Shutdown ShutdownFunc
}

// ShutdownFunc is the signature used for a shutdown function which allows
// printing the reason for shutdown.
type ShutdownFunc func(format string, params ...interface{})

// Monitor periodically checks a series of configured liveliness checks to
// ensure the relay node has access to all critical resources.
type Monitor struct {
	started int32 // To be used atomically.
	stopped int32 // To be used atomically.

	cfg *Config

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewMonitor returns a Monitor with the provided config.
func NewMonitor(cfg *Config) *Monitor {
	return &Monitor{
		cfg:  cfg,
		quit: make(chan struct{}),
	}
}

// Start launches the goroutines required to run the monitor.
func (m *Monitor) Start() error {
	if !atomic.CompareAndSwapInt32(&m.started, 0, 1) {
		return errors.New("healthcheck: monitor already started")
	}

	for _, check := range m.cfg.Checks {
		check := check

		if check.Attempts == 0 {
			log.Warnf("check: %v configured with 0 attempts, "+
				"skipping it", check.Name)
			continue
		}

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			check.monitor(m.cfg.Shutdown, m.quit)
		}()
	}

	return nil
}

// Stop sends all goroutines the signal to exit and waits for them to exit.
func (m *Monitor) Stop() error {
	if !atomic.CompareAndSwapInt32(&m.stopped, 0, 1) {
		return errors.New("healthcheck: monitor already stopped")
	}

	close(m.quit)
	m.wg.Wait()

	return nil
}

// Observation represents a liveliness check that is periodically run.
type Observation struct {
	// Name describes the health check.
	Name string

	// Check runs the health check itself, returning an error on failure.
	Check func() error

	// Interval is a ticker which triggers running the check function.
	Interval ticker.Ticker

	// Attempts is the number of calls made for a single check before
	// failing.
	Attempts int

	// Timeout is the amount of time allowed for the check function to
	// complete before it is timed out.
	Timeout time.Duration

	// Backoff is the amount of time to wait between retries for failed
	// checks.
	Backoff time.Duration
}

// NewObservation creates an observation.
func NewObservation(name string, check func() error, interval,
	timeout, backoff time.Duration, attempts int) *Observation {

	return &Observation{
		Name:     name,
		Check:    check,
		Interval: ticker.New(interval),
		Attempts: attempts,
		Timeout:  timeout,
		Backoff:  backoff,
	}
}

// String returns a string representation of an observation.
func (o *Observation) String() string {
	return o.Name
}

// monitor executes a health check every time its interval ticks until the
// quit channel signals that we should shutdown. This function is also
// responsible for starting and stopping its ticker.
func (o *Observation) monitor(shutdown ShutdownFunc, quit chan struct{}) {
	log.Debugf("monitoring: %v", o)

	o.Interval.Resume()
	defer o.Interval.Stop()

	for {
		select {
		case <-o.Interval.Ticks():
			o.retryCheck(quit, shutdown)

		case <-quit:
			return
		}
	}
}

// retryCheck calls a check function until it succeeds, or the configured
// number of attempts is reached, waiting for the backoff period between
// failed calls. If a passing health check is never obtained, shutdown is
// requested.
func (o *Observation) retryCheck(quit chan struct{}, shutdown ShutdownFunc) {
	var count int

	for count < o.Attempts {
		count++

		errChan := make(chan error, 1)
		go func() {
			errChan <- o.Check()
		}()

		var err error
		select {
		case err = <-errChan:

		case <-time.After(o.Timeout):
			err = errors.New("health check timed out")

		case <-quit:
			return
		}

		if err == nil {
			return
		}

		if count == o.Attempts {
			shutdown("health check: %v failed after %v calls",
				o, o.Attempts)
			return
		}

		select {
		case <-time.After(o.Backoff):
			log.Debugf("health check: %v, call: %v failed with: "+
				"%v, backing off for: %v", o, count, err, o.Backoff)

		case <-quit:
			return
		}
	}
}
