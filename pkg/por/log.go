package por

import (
	"github.com/btcsuite/btclog"
	"github.com/hopr-relay/core/internal/buildlog"
)

var log btclog.Logger = btclog.Disabled

// UseLogger lets a caller outside this package supply a pre-configured
// logger, matching the convention used throughout the codebase this module
// was adapted from.
func UseLogger(logger btclog.Logger) {
	log = logger
}

func init() {
	UseLogger(buildlog.NewSubLogger("POR"))
}
