package balancer

import (
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/ticker"

	"github.com/hopr-relay/core/pkg/surb"
)

// Emitter sends count SURB-carrying cover packets to the peer collecting
// pseudonym's replies. The pipeline supplies the implementation; this
// package only decides how many to send and when.
type Emitter interface {
	EmitReplenishment(pseudonym surb.Pseudonym, count uint64) error
}

// Manager runs one Controller per active pseudonym, sampling the SURB
// store on a fixed interval and on distress events, and asking the
// configured Emitter to send the resulting packet count (spec.md §4.7).
type Manager struct {
	store    *surb.Store
	emit     Emitter
	gains    Gains
	setpoint uint64
	limit    uint64
	tick     ticker.Ticker

	mu          sync.Mutex
	controllers map[surb.Pseudonym]*Controller

	quit chan struct{}
	wg   sync.WaitGroup
}

// Config bundles Manager's tunables.
type Config struct {
	Setpoint     uint64
	OutputLimit  uint64
	Gains        Gains
	TickInterval time.Duration
}

// NewManager constructs a Manager. Call Start to begin the interval loop.
func NewManager(store *surb.Store, emit Emitter, cfg Config) *Manager {
	return &Manager{
		store:       store,
		emit:        emit,
		gains:       cfg.Gains,
		setpoint:    cfg.Setpoint,
		limit:       cfg.OutputLimit,
		tick:        ticker.New(cfg.TickInterval),
		controllers: make(map[surb.Pseudonym]*Controller),
		quit:        make(chan struct{}),
	}
}

// Start launches the interval loop and the distress-event consumer as
// background goroutines.
func (m *Manager) Start() {
	m.wg.Add(2)
	go m.intervalLoop()
	go m.distressLoop()
}

// Stop signals both background loops to exit and waits for them.
func (m *Manager) Stop() {
	close(m.quit)
	m.wg.Wait()
}

func (m *Manager) intervalLoop() {
	defer m.wg.Done()

	m.tick.Resume()
	defer m.tick.Stop()

	for {
		select {
		case <-m.tick.Ticks():
			m.sampleAll()
		case <-m.quit:
			return
		}
	}
}

func (m *Manager) distressLoop() {
	defer m.wg.Done()

	for {
		select {
		case ev := <-m.store.Distress():
			m.sampleOne(ev.Pseudonym)
		case <-m.quit:
			return
		}
	}
}

func (m *Manager) sampleAll() {
	m.mu.Lock()
	pseudonyms := make([]surb.Pseudonym, 0, len(m.controllers))
	for p := range m.controllers {
		pseudonyms = append(pseudonyms, p)
	}
	m.mu.Unlock()

	for _, p := range pseudonyms {
		m.sampleOne(p)
	}
}

func (m *Manager) sampleOne(pseudonym surb.Pseudonym) {
	controller := m.controllerFor(pseudonym)
	level := uint64(m.store.Len(pseudonym))

	count := controller.NextControlOutput(level)
	if count == 0 {
		return
	}

	if err := m.emit.EmitReplenishment(pseudonym, count); err != nil {
		log.Warnf("balancer: failed to emit %d replenishment packets for "+
			"pseudonym: %v", count, err)
	}
}

// Track begins balancing pseudonym if it isn't already tracked.
func (m *Manager) Track(pseudonym surb.Pseudonym) {
	m.controllerFor(pseudonym)
}

// Untrack stops balancing pseudonym, e.g. once its session ends.
func (m *Manager) Untrack(pseudonym surb.Pseudonym) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.controllers, pseudonym)
}

func (m *Manager) controllerFor(pseudonym surb.Pseudonym) *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.controllers[pseudonym]
	if !ok {
		c = NewController(m.setpoint, m.limit, m.gains)
		m.controllers[pseudonym] = c
	}
	return c
}
