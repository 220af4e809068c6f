//go:build rp2040

package main

import (
	"machine"

	"wdtclock/core"
)

var debugUART *machine.UART

// InitDebugUART routes core debug output to UART0 on GPIO0 (TX) and GPIO1 (RX)
func InitDebugUART() {
	debugUART = machine.UART0

	err := debugUART.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GPIO0,
		RX:       machine.GPIO1,
	})
	if err != nil {
		return
	}

	core.SetDebugWriter(func(s string) {
		debugUART.Write([]byte(s))
		debugUART.Write([]byte("\r\n"))
	})
	core.SetDebugEnabled(true)
	core.DebugPrintln("=== RP2040 clock debug UART ===")
}

// dumpEvents writes the event ring to the debug UART when it is attached
func dumpEvents() {
	if core.IsDebugEnabled() {
		core.DumpEventRing()
	}
}
