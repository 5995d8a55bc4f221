package main

import (
	"crypto/rand"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/go-errors/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hopr-relay/core/pkg/balancer"
	"github.com/hopr-relay/core/pkg/chain"
	"github.com/hopr-relay/core/pkg/healthcheck"
	"github.com/hopr-relay/core/pkg/keychain"
	"github.com/hopr-relay/core/pkg/metrics"
	"github.com/hopr-relay/core/pkg/pipeline"
	"github.com/hopr-relay/core/pkg/store"
	"github.com/hopr-relay/core/pkg/surb"
	"github.com/hopr-relay/core/pkg/tagcache"
	"github.com/hopr-relay/core/pkg/ticket"
)

// probeChannelID is the reserved channel id relaynode's healthcheck
// observations probe against; it never backs a real channel because
// chain.Memory (and any real chain client) only ever allocates channel ids
// from on-chain opens.
var probeChannelID = [32]byte{0xff}

// coverPeer is a fixed loopback peer id. No code path addresses it:
// coverEmitter routes its packets through a popped SURB and discards them,
// since there is no wired transport layer (see DESIGN.md).
var coverPeer = pipeline.PeerID([]byte("relaynode-loopback-cover-peer"))

// Node bundles every collaborator relaynode wires together at startup: the
// packet codec pipeline and the chain, ticket, SURB, tag cache and
// balancer collaborators it depends on (spec.md §6).
type Node struct {
	cfg *Config

	Keys    *keychain.KeyRing
	Chain   *chain.Memory
	Tickets *ticket.Manager
	Surbs   *surb.Store
	Tags    *tagcache.Cache

	ticketStore *store.BboltStore

	Balancer *balancer.Manager
	Health   *healthcheck.Monitor
	Metrics  *metrics.Relay
	registry *prometheus.Registry

	Encoder *pipeline.Encoder
	Decoder *pipeline.Decoder
	Acks    *pipeline.AckTracker

	metricsServer *http.Server
}

// coverEmitter implements balancer.Emitter by building a SURB-return
// replenishment packet through the node's own Encoder and reporting it to
// metrics, in place of a wire transport this module does not implement
// (see DESIGN.md).
type coverEmitter struct {
	encoder *pipeline.Encoder
	metrics *metrics.Relay
}

func (e *coverEmitter) EmitReplenishment(pseudonym surb.Pseudonym, count uint64) error {
	for i := uint64(0); i < count; i++ {
		_, err := e.encoder.ToSendNoAck(pipeline.EncodeRequest{
			Payload: pipeline.EncodeDataPayload(nil),
			Routing: pipeline.RoutingDecision{
				Kind:      pipeline.RouteSurbReturn,
				Pseudonym: pseudonym,
			},
		})
		if errors.Is(err, pipeline.ErrSurbsUnavailable) {
			// Nothing left to cover with; the balancer will try
			// again next interval once the sender refills SURBs.
			return nil
		}
		if err != nil {
			return err
		}
	}
	if e.metrics != nil {
		e.metrics.BalancerOutput.WithLabelValues(pseudonymLabel(pseudonym)).Set(float64(count))
	}
	return nil
}

func pseudonymLabel(p surb.Pseudonym) string {
	return hexPrefix(p[:], 4)
}

func hexPrefix(b []byte, n int) string {
	const hextable = "0123456789abcdef"
	if n > len(b) {
		n = len(b)
	}
	out := make([]byte, 0, n*2)
	for _, v := range b[:n] {
		out = append(out, hextable[v>>4], hextable[v&0x0f])
	}
	return string(out)
}

// NewNode wires every collaborator relaynode needs from cfg, generating a
// fresh packet-layer identity on every call and opening its ticket index
// database. Callers must call Start to begin background
// loops and Stop to shut them down cleanly.
func NewNode(cfg *Config) (*Node, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	keys := keychain.New(priv)

	chainClient := chain.NewMemory()
	chainClient.TicketPrice.SetUint64(cfg.Chain.MinimumTicketPrice)
	chainClient.MinimumWinProb = cfg.Chain.MinimumIncomingWinProb

	ticketStore, err := store.NewBboltStore(cfg.TicketDBPath)
	if err != nil {
		return nil, err
	}
	tickets := ticket.NewManager(ticketStore)

	surbs := surb.NewStore(surb.Config{
		Capacity:          cfg.SURB.Capacity,
		DistressThreshold: cfg.SURB.DistressThreshold,
		TTL:               cfg.SURB.TTL,
		SweepInterval:      cfg.SURB.SweepInterval,
	})

	tags := tagcache.New(cfg.Sphinx.TagCacheWindow)

	relayMetrics := metrics.NewRelay()
	registry := prometheus.NewRegistry()
	if err := relayMetrics.Register(registry); err != nil {
		return nil, err
	}

	acks := pipeline.NewAckTracker(
		keys.PacketPubKey(), tickets, pipeline.DefaultWinningTicketQueueCapacity, relayMetrics,
	)

	encoder := pipeline.NewEncoder(pipeline.EncoderConfig{
		Chain:   chainClient,
		Keys:    chainClient,
		Values:  chainClient,
		Tickets: tickets,
		Surbs:   surbs,
		PubKeys: keys,
		Signer:  keys,
		Acks:    acks,
		Metrics: relayMetrics,
	})

	decoder := pipeline.NewDecoder(pipeline.DecoderConfig{
		Chain:       chainClient,
		Keys:        chainClient,
		Values:      chainClient,
		Tickets:     tickets,
		Surbs:       surbs,
		Tags:        tags,
		PubKeys:     keys,
		Signer:      keys,
		LocalKey:    priv,
		Acks:        acks,
		Reassembler: pipeline.NewSurbReassembler(),
		Metrics:     relayMetrics,
	})

	bal := balancer.NewManager(surbs, &coverEmitter{encoder: encoder, metrics: relayMetrics}, balancer.Config{
		Setpoint:     cfg.Balancer.Setpoint,
		OutputLimit:  cfg.Balancer.OutputLimit,
		Gains:        balancer.DefaultGains,
		TickInterval: cfg.Balancer.TickInterval,
	})

	health := healthcheck.NewMonitor(&healthcheck.Config{
		Checks: []*healthcheck.Observation{
			healthcheck.ChainConnectivity(
				chainClient, probeChannelID, 30*time.Second, 5*time.Second, time.Second, 3,
			),
			healthcheck.TicketStoreWritable(
				ticketStore, probeChannelID, 30*time.Second, 5*time.Second, time.Second, 3,
			),
		},
		Shutdown: func(format string, params ...interface{}) {
			log.Errorf(format, params...)
		},
	})

	return &Node{
		cfg:         cfg,
		Keys:        keys,
		Chain:       chainClient,
		Tickets:     tickets,
		Surbs:       surbs,
		Tags:        tags,
		ticketStore: ticketStore,
		Balancer:    bal,
		Health:      health,
		Metrics:     relayMetrics,
		registry:    registry,
		Encoder:     encoder,
		Decoder:     decoder,
		Acks:        acks,
	}, nil
}

// Start launches every background loop: the balancer's interval and
// distress loops, the healthcheck monitor, the winning-ticket drain
// goroutine, and the Prometheus HTTP endpoint.
func (n *Node) Start() error {
	n.Balancer.Start()

	if err := n.Health.Start(); err != nil {
		return err
	}

	go n.drainWinningTickets()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(n.registry, promhttp.HandlerOpts{}))
	n.metricsServer = &http.Server{Addr: n.cfg.MetricsListen, Handler: mux}

	go func() {
		if err := n.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("relaynode: metrics server exited: %v", err)
		}
	}()

	return nil
}

// drainWinningTickets logs every ticket the AckTracker surfaces as
// redemption-eligible; a real deployment would hand these to an on-chain
// redemption strategy, which is out of scope here (spec.md Non-goals).
func (n *Node) drainWinningTickets() {
	for {
		t, ok := n.Acks.NextWinningTicket()
		if !ok {
			return
		}
		log.Infof("relaynode: winning ticket channel=%x index=%d", t.ChannelID, t.Index)
	}
}

// Stop shuts down every background loop and releases the ticket database
// handle.
func (n *Node) Stop() error {
	n.Acks.Stop()
	n.Balancer.Stop()
	n.Surbs.Stop()

	if err := n.Health.Stop(); err != nil {
		log.Warnf("relaynode: healthcheck monitor stop: %v", err)
	}

	if n.metricsServer != nil {
		if err := n.metricsServer.Close(); err != nil {
			log.Warnf("relaynode: metrics server close: %v", err)
		}
	}

	return n.ticketStore.Close()
}

// newPseudonym generates a random SURB pseudonym. No command in this
// package calls it.
func newPseudonym() (surb.Pseudonym, error) {
	var p surb.Pseudonym
	if _, err := rand.Read(p[:]); err != nil {
		return p, err
	}
	return p, nil
}
