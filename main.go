package main

import (
	"os"

	"github.com/go-i2p/logger"

	"github.com/go-wlan/go-wlan/lib/cli"
)

var log = logger.GetGoI2PLogger()

func main() {
	log.Debug("starting go-wlan")
	if err := cli.Execute(); err != nil {
		log.WithError(err).Debug("go-wlan exited with error")
		os.Exit(1)
	}
}
