package main

import (
	"github.com/btcsuite/btclog"

	"github.com/hopr-relay/core/internal/buildlog"
	"github.com/hopr-relay/core/pkg/balancer"
	"github.com/hopr-relay/core/pkg/healthcheck"
	"github.com/hopr-relay/core/pkg/pipeline"
	"github.com/hopr-relay/core/pkg/store"
)

var log btclog.Logger = btclog.Disabled

// subLoggers holds every subsystem logger created in init, so setLogLevel
// can reach all of them.
var subLoggers []btclog.Logger

func init() {
	logger := buildlog.NewSubLogger("RLAY")
	log = logger

	pipeLog := buildlog.NewSubLogger("PIPE")
	blncLog := buildlog.NewSubLogger("BLNC")
	storLog := buildlog.NewSubLogger("STOR")
	hlthLog := buildlog.NewSubLogger("HLTH")
	pipeline.UseLogger(pipeLog)
	balancer.UseLogger(blncLog)
	store.UseLogger(storLog)
	healthcheck.UseLogger(hlthLog)

	subLoggers = []btclog.Logger{logger, pipeLog, blncLog, storLog, hlthLog}
}

// setLogLevel applies level to every subsystem logger relaynode owns.
func setLogLevel(level string) {
	for _, logger := range subLoggers {
		buildlog.SetLevel(logger, level)
	}
}
