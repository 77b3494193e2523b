package directory

import "github.com/btcsuite/btclog/v2"

// Subsystem defines the logging code for this package.
const Subsystem = "DIRY"

var log btclog.Logger = btclog.Disabled

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger btclog.Logger) {
	log = logger
}
