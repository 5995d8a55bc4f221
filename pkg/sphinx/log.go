package sphinx

import (
	"github.com/btcsuite/btclog"
	"github.com/hopr-relay/core/internal/buildlog"
)

// log is the package-level subsystem logger. init replaces the disabled
// default with a buildlog sub-logger tagged SPHX; UseLogger swaps it again.
var log btclog.Logger = btclog.Disabled

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger btclog.Logger) {
	log = logger
}

func init() {
	UseLogger(buildlog.NewSubLogger("SPHX"))
}
