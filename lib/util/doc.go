// Package util holds small process-level helpers shared by the CLI and the
// configuration layer: home directory lookup, file checks and shutdown closers.
package util

import "github.com/go-i2p/logger"

var log = logger.GetGoI2PLogger()
