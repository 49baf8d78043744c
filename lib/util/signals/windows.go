//go:build windows

package signals

import "os"

// Windows has no reload signal; configuration is read once at start.
var (
	stopSignals   = []os.Signal{os.Interrupt}
	reloadSignals []os.Signal
)
