// Package metrics exposes the relay node's counters and gauges as
// Prometheus collectors (SPEC_FULL.md DOMAIN STACK: "pkg/metrics — relay/
// ticket/SURB counters exposed for the (out-of-scope) REST layer to
// serve"). Nothing in this package talks to the network; cmd/relaynode
// registers a prometheus.Registry and hands its HTTP handler to whichever
// out-of-scope transport layer wants to serve it.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Relay bundles every collector pkg/pipeline and its collaborators report
// through, grouped the way a single /metrics scrape would present them.
type Relay struct {
	PacketsForwarded   prometheus.Counter
	PacketsDelivered   prometheus.Counter
	PacketsDropped     *prometheus.CounterVec
	TicketsIssued      prometheus.Counter
	TicketsWon         prometheus.Counter
	TicketsLost        prometheus.Counter
	TicketsRedeemed    prometheus.Counter
	DroppedTicketsOverflow prometheus.Counter
	SurbStoreLevel     *prometheus.GaugeVec
	SurbStoreDistress  prometheus.Counter
	BalancerOutput     *prometheus.GaugeVec
	ReplayHits         prometheus.Counter
}

// NewRelay constructs a Relay's collectors, namespaced under "hopr_relay".
func NewRelay() *Relay {
	return &Relay{
		PacketsForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hopr_relay",
			Subsystem: "packet",
			Name:      "forwarded_total",
			Help:      "Total packets successfully unwrapped and re-wrapped for a next hop.",
		}),
		PacketsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hopr_relay",
			Subsystem: "packet",
			Name:      "delivered_total",
			Help:      "Total packets unwrapped to a final-hop delivery.",
		}),
		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hopr_relay",
			Subsystem: "packet",
			Name:      "dropped_total",
			Help:      "Total packets dropped, labeled by drop reason (spec.md §7).",
		}, []string{"reason"}),
		TicketsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hopr_relay",
			Subsystem: "ticket",
			Name:      "issued_total",
			Help:      "Total tickets issued to a next hop.",
		}),
		TicketsWon: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hopr_relay",
			Subsystem: "ticket",
			Name:      "won_total",
			Help:      "Total issued tickets whose acknowledgement completed a winning response.",
		}),
		TicketsLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hopr_relay",
			Subsystem: "ticket",
			Name:      "lost_total",
			Help:      "Total issued tickets whose acknowledgement completed a losing response.",
		}),
		TicketsRedeemed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hopr_relay",
			Subsystem: "ticket",
			Name:      "redeemed_total",
			Help:      "Total tickets removed after redemption confirmed on-chain.",
		}),
		DroppedTicketsOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hopr_relay",
			Subsystem: "ticket",
			Name:      "queue_overflow_dropped_total",
			Help:      "Total winning-ticket metadata dropped because the decoder-to-manager queue was at capacity (spec.md §5).",
		}),
		SurbStoreLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hopr_relay",
			Subsystem: "surb",
			Name:      "buffer_level",
			Help:      "Current number of buffered SURBs, labeled by pseudonym prefix.",
		}, []string{"pseudonym"}),
		SurbStoreDistress: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hopr_relay",
			Subsystem: "surb",
			Name:      "distress_events_total",
			Help:      "Total distress events published by the SURB store.",
		}),
		BalancerOutput: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hopr_relay",
			Subsystem: "balancer",
			Name:      "control_output",
			Help:      "Most recent PID control output, labeled by pseudonym prefix.",
		}, []string{"pseudonym"}),
		ReplayHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hopr_relay",
			Subsystem: "packet",
			Name:      "replay_hits_total",
			Help:      "Total packets dropped by the tag cache as replays.",
		}),
	}
}

// Register registers every Relay collector against reg.
func (r *Relay) Register(reg *prometheus.Registry) error {
	collectors := []prometheus.Collector{
		r.PacketsForwarded, r.PacketsDelivered, r.PacketsDropped,
		r.TicketsIssued, r.TicketsWon, r.TicketsLost, r.TicketsRedeemed,
		r.DroppedTicketsOverflow, r.SurbStoreLevel, r.SurbStoreDistress,
		r.BalancerOutput, r.ReplayHits,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
