package discovery

import "github.com/btcsuite/btclog"

var log = btclog.Disabled

// UseLogger installs a logger for the discovery subsystem.
func UseLogger(logger btclog.Logger) {
	log = logger
}
