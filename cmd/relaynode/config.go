// Command relaynode runs the HOPR-style mixnet relay core as a standalone
// process: it wires pkg/sphinx, pkg/por, pkg/ticket, pkg/surb, pkg/tagcache
// and pkg/pipeline together behind the collaborators spec.md §6 calls for
// (pkg/chain, pkg/store, pkg/keychain), and exposes a handful of
// urfave/cli debug subcommands for local inspection, mirroring
// cmd/lncli's flag-driven single-action commands.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
)

// SphinxConfig configures the packet-tag replay cache (spec.md §4.5).
type SphinxConfig struct {
	TagCacheWindow time.Duration `long:"tagcachewindow" description:"replay window for the packet tag cache" default:"10m"`
}

// Validate checks SphinxConfig for internally consistent values.
func (c *SphinxConfig) Validate() error {
	if c.TagCacheWindow <= 0 {
		return fmt.Errorf("sphinx.tagcachewindow must be positive")
	}
	return nil
}

// SURBConfig configures the per-pseudonym SURB ring buffer (spec.md §4.4).
type SURBConfig struct {
	Capacity          int           `long:"capacity" description:"per-pseudonym SURB ring buffer size" default:"64"`
	DistressThreshold int           `long:"distressthreshold" description:"buffer level below which a distress event fires" default:"16"`
	TTL               time.Duration `long:"ttl" description:"how long an untouched pseudonym's buffer survives" default:"1h"`
	SweepInterval     time.Duration `long:"sweepinterval" description:"how often the TTL sweep runs" default:"5m"`
}

// Validate checks SURBConfig for internally consistent values.
func (c *SURBConfig) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("surb.capacity must be positive")
	}
	if c.DistressThreshold < 0 || c.DistressThreshold >= c.Capacity {
		return fmt.Errorf("surb.distressthreshold must be in [0, capacity)")
	}
	if c.TTL <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("surb.ttl and surb.sweepinterval must be positive")
	}
	return nil
}

// BalancerConfig configures the SURB flow controller (spec.md §4.7).
type BalancerConfig struct {
	Setpoint     uint64        `long:"setpoint" description:"target buffered SURB count" default:"32"`
	OutputLimit  uint64        `long:"outputlimit" description:"max replenishment packets emitted per interval" default:"16"`
	TickInterval time.Duration `long:"tickinterval" description:"PID sampling interval" default:"30s"`
}

// Validate checks BalancerConfig for internally consistent values.
func (c *BalancerConfig) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("balancer.tickinterval must be positive")
	}
	return nil
}

// ChainConfig configures the network-wide ticket parameters a real chain
// client would otherwise report (spec.md §6 "ChainValues"); relaynode uses
// an in-memory chain.Memory seeded from these values until a real chain
// backend is wired in.
type ChainConfig struct {
	MinimumTicketPrice   uint64  `long:"minimumticketprice" description:"minimum ticket face value, base units" default:"1"`
	MinimumIncomingWinProb float64 `long:"minimumwinprob" description:"minimum acceptable incoming ticket win probability" default:"1.0"`
}

// Validate checks ChainConfig for internally consistent values.
func (c *ChainConfig) Validate() error {
	if c.MinimumIncomingWinProb < 0 || c.MinimumIncomingWinProb > 1 {
		return fmt.Errorf("chain.minimumwinprob must be in [0, 1]")
	}
	return nil
}

// Config is relaynode's top-level configuration, parsed from flags (and,
// via go-flags' ini support, an optional config file) the same way lnd's
// root Config aggregates its lncfg-style sub-configs.
type Config struct {
	LogLevel      string `long:"loglevel" description:"logging level for all subsystems" default:"info"`
	MetricsListen string `long:"metricslisten" description:"host:port to serve Prometheus metrics on" default:"localhost:9090"`
	TicketDBPath  string `long:"ticketdb" description:"path to the bbolt ticket-index database" default:"relaynode.db"`

	Sphinx   SphinxConfig   `group:"Sphinx" namespace:"sphinx"`
	SURB     SURBConfig     `group:"SURB" namespace:"surb"`
	Balancer BalancerConfig `group:"Balancer" namespace:"balancer"`
	Chain    ChainConfig    `group:"Chain" namespace:"chain"`
}

// DefaultConfig returns a Config populated with every default tag's value,
// used by commands that construct a throwaway node without parsing flags.
func DefaultConfig() *Config {
	cfg := &Config{}
	parser := flags.NewParser(cfg, flags.Default)
	// Parsing zero arguments against a parser whose fields all carry a
	// `default` tag populates every field with that default.
	_, _ = parser.ParseArgs(nil)
	return cfg
}

// LoadConfig parses relaynode's configuration from command-line flags and
// validates every sub-config block.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, err
	}

	for _, v := range []interface{ Validate() error }{
		&cfg.Sphinx, &cfg.SURB, &cfg.Balancer, &cfg.Chain,
	} {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}
