package main

import (
	"encoding/hex"
	"fmt"

	"github.com/urfave/cli"

	"github.com/hopr-relay/core/pkg/pipeline"
	"github.com/hopr-relay/core/pkg/store"
	"github.com/hopr-relay/core/pkg/surb"
)

// debugCommands returns the local inspection subcommands relaynode exposes
// through urfave/cli, in cmd/lncli's single-action style. None attaches to
// an already-running daemon process, since this module has no transport/RPC
// layer a separate client could dial into (spec.md Non-goals): send and
// surb ls build their own throwaway Node against DefaultConfig, and ticket
// ls opens the configured bbolt ticket database directly.
func debugCommands() []cli.Command {
	return []cli.Command{
		sendCommand,
		ticketCommand,
		surbCommand,
	}
}

var sendCommand = cli.Command{
	Name:      "send",
	Usage:     "onion-encrypt a payload and print the resulting first-hop packet",
	ArgsUsage: "payload",
	Flags: []cli.Flag{
		cli.StringSliceFlag{
			Name:  "hop",
			Usage: "hex-encoded peer id, repeatable in path order",
		},
	},
	Action: runSend,
}

func runSend(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.NewExitError("expected exactly one payload argument", 1)
	}

	node, err := NewNode(DefaultConfig())
	if err != nil {
		return err
	}
	defer node.Stop()

	hopStrs := ctx.StringSlice("hop")
	if len(hopStrs) == 0 {
		return cli.NewExitError("at least one --hop is required", 1)
	}

	hops := make([]pipeline.PeerID, len(hopStrs))
	for i, h := range hopStrs {
		raw, err := hex.DecodeString(h)
		if err != nil {
			return fmt.Errorf("decoding hop %d: %w", i, err)
		}
		hops[i] = pipeline.PeerID(raw)
	}

	pkt, _, err := node.Encoder.ToSend(pipeline.EncodeRequest{
		Payload: pipeline.EncodeDataPayload([]byte(ctx.Args().Get(0))),
		Routing: pipeline.RoutingDecision{Kind: pipeline.RouteForward, Hops: hops},
		NoAck:   true,
	})
	if err != nil {
		return err
	}

	fmt.Printf("next_hop=%x\n", pkt.NextPeer)
	fmt.Printf("packet=%x\n", pkt.Bytes)
	return nil
}

var ticketCommand = cli.Command{
	Name:  "ticket",
	Usage: "inspect the local outgoing ticket index database",
	Subcommands: []cli.Command{
		{
			Name:   "ls",
			Usage:  "list every (channel, epoch) -> last issued index row",
			Action: runTicketLs,
		},
	},
}

func runTicketLs(ctx *cli.Context) error {
	cfg, err := LoadConfig()
	if err != nil {
		cfg = DefaultConfig()
	}

	db, err := store.NewBboltStore(cfg.TicketDBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.ListIndexes()
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		fmt.Println("no ticket indexes recorded")
		return nil
	}

	for _, r := range rows {
		fmt.Printf("channel=%x epoch=%d last_index=%d\n", r.ChannelID, r.Epoch, r.LastIndex)
	}
	return nil
}

var surbCommand = cli.Command{
	Name:  "surb",
	Usage: "inspect a throwaway node's SURB store",
	Subcommands: []cli.Command{
		{
			Name:      "ls",
			Usage:     "report the buffered SURB count for a pseudonym",
			ArgsUsage: "pseudonym-hex",
			Action:    runSurbLs,
		},
	},
}

func runSurbLs(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.NewExitError("expected a hex-encoded pseudonym argument", 1)
	}

	raw, err := hex.DecodeString(ctx.Args().Get(0))
	if err != nil {
		return err
	}
	if len(raw) != 16 {
		return cli.NewExitError("pseudonym must be 16 bytes", 1)
	}

	var p surb.Pseudonym
	copy(p[:], raw)

	node, err := NewNode(DefaultConfig())
	if err != nil {
		return err
	}
	defer node.Stop()

	fmt.Printf("pseudonym=%x buffered=%d\n", p, node.Surbs.Len(p))
	return nil
}
