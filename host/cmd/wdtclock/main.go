// Command wdtclock drives a clock board over its serial link: reading and
// setting the time, synchronising from NTP and inspecting calibration.
package main

import (
	"os"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

func main() {
	if err := newApp().root().Execute(); err != nil {
		log.WithError(err).Error("wdtclock failed")
		os.Exit(1)
	}
}
