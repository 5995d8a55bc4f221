package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "relaynode"
	app.Usage = "HOPR-style mixnet relay node core"
	app.Commands = append([]cli.Command{daemonCommand}, debugCommands()...)

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "relaynode: %v\n", err)
		os.Exit(1)
	}
}

var daemonCommand = cli.Command{
	Name:   "daemon",
	Usage:  "run relaynode as a long-lived process",
	Action: runDaemon,
}

func runDaemon(ctx *cli.Context) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	setLogLevel(cfg.LogLevel)

	node, err := NewNode(cfg)
	if err != nil {
		return err
	}

	if err := node.Start(); err != nil {
		return err
	}
	log.Infof("relaynode: started, serving metrics on %s", cfg.MetricsListen)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Infof("relaynode: shutting down")
	return node.Stop()
}
