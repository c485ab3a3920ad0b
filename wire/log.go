package wire

import "github.com/btcsuite/btclog"

// log is the subsystem logger for the wire codec, set via UseLogger by the
// daemon's logging setup.
var log = btclog.Disabled

// UseLogger installs a logger for the wire subsystem.
func UseLogger(logger btclog.Logger) {
	log = logger
}
