//go:build rp2040

package main

import (
	_ "embed"
	"machine"
	"time"

	"wdtclock/config"
	"wdtclock/core"
	"wdtclock/protocol"
)

//go:embed clock.json
var clockJSON []byte

var (
	system    *core.System
	registry  *core.CommandRegistry
	scheduler core.Scheduler

	// Buffers for communication
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport

	consecutiveWriteFailures uint32
	usbWasDisconnected       bool
)

func main() {
	// Disable the watchdog on boot to clear any previous state
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitUSB()

	cfg, err := config.LoadConfig(clockJSON)
	if err != nil {
		cfg = config.DefaultConfig()
	}
	if cfg.Board.Debug {
		InitDebugUART()
	}

	var store core.Store
	bus, err := InitI2C()
	if err != nil {
		core.DebugPrintln("[BOOT] I2C unavailable, running without EEPROM and display")
	} else {
		store = newEEPROMStore(bus, cfg.Board)
	}

	system, err = core.Boot(store, cfg.Clock)
	if err != nil {
		core.DebugPrintln("[BOOT] snapshot not loaded: " + err.Error())
	}

	sensors := newSensorMonitor()
	system.Calibrator.SetEnvironmentSource(sensors.Environment)

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()

	registry = core.NewCommandRegistry()
	transport = protocol.NewTransport(outputBuffer, registry.Dispatch)
	transport.SetResetCallback(func() {
		inputBuffer.Reset()
		outputBuffer.Reset()
		dumpEvents()
	})
	// ACKs go out immediately; the host waits for them before responses
	transport.SetFlushCallback(writeUSB)
	core.RegisterClockCommands(registry, system.Clock, system.Calibrator, transport.SendCommand)

	StartTick(cfg.Board.TickMillis*1000, system.Ticks.OnTick)

	now := system.Clock.Now()
	scheduler.Add(core.Every(now+core.Epoch(cfg.Clock.TuneInterval), cfg.Clock.TuneInterval, func(now core.Epoch) {
		if _, err := system.Calibrator.Tune(); err != nil {
			core.DebugPrintln("[CLOCK] tune: " + err.Error())
		}
		dumpEvents()
	}))
	scheduler.Add(core.Every(now+1, 10, func(core.Epoch) {
		if err := sensors.Sample(); err != nil {
			core.DebugPrintln("[SENSOR] " + err.Error())
		}
	}))
	if bus != nil {
		display := newClockDisplay(bus, cfg.Board, system.Clock)
		scheduler.Add(core.Every(now, 1, display.Show))
	}

	for {
		pollUSB()

		if inputBuffer.Available() > 0 {
			transport.Receive(inputBuffer)
		}
		writeUSB()

		scheduler.Dispatch(system.Clock.Now())

		time.Sleep(time.Millisecond)
	}
}

// pollUSB moves whatever the host has sent into the input FIFO. It runs on
// the main loop so the transport never races a reader.
func pollUSB() {
	for USBAvailable() > 0 && inputBuffer.Free() > 0 {
		b, err := USBRead()
		if err != nil {
			return
		}
		if usbWasDisconnected {
			// Fresh connection: drop stale state, the host restarts at seq 0x10
			usbWasDisconnected = false
			inputBuffer.Reset()
			outputBuffer.Reset()
			transport.Reset()
			consecutiveWriteFailures = 0
		}
		inputBuffer.Write([]byte{b})
	}
}

// writeUSB writes available data from the output buffer to USB
func writeUSB() {
	result := outputBuffer.Result()
	written := 0
	for written < len(result) {
		n, err := USBWriteBytes(result[written:])
		if err != nil || n == 0 {
			// Likely a disconnect; after several failures drop stale output
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				usbWasDisconnected = true
				consecutiveWriteFailures = 0
				outputBuffer.Reset()
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
	outputBuffer.Reset()
}
