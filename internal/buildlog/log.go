// Package buildlog centralizes creation of per-subsystem loggers, mirroring
// lnd's build.NewSubLogger convention so every package in this module gets a
// consistently tagged, independently level-settable logger.
package buildlog

import (
	"os"

	"github.com/btcsuite/btclog"
)

// backend is the single logging backend all subsystem loggers are created
// from. It always writes to stderr.
var backend = btclog.NewBackend(os.Stderr)

// NewSubLogger creates a new subsystem logger tagged with the given short
// name (lnd convention: a 3-5 character all-caps subsystem tag, e.g. "SPHX",
// "POR ", "TKTM").
func NewSubLogger(tag string) btclog.Logger {
	return backend.Logger(tag)
}

// SetLevel sets the logging level for a previously created subsystem logger.
func SetLevel(logger btclog.Logger, level string) {
	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		return
	}
	logger.SetLevel(lvl)
}
