package core

import "wdtclock/protocol"

// Responder sends a response frame, e.g. (*protocol.Transport).SendCommand
type Responder func(cmdID uint16, args func(output protocol.OutputBuffer))

// clockCommands serves the clock over the command registry
type clockCommands struct {
	clock   *Clock
	cal     *Calibrator
	respond Responder
}

// RegisterClockCommands installs the time and calibration commands.
// cal may be nil on builds without calibration; tune then reports TuneNone.
func RegisterClockCommands(r *CommandRegistry, clock *Clock, cal *Calibrator, respond Responder) {
	cc := &clockCommands{clock: clock, cal: cal, respond: respond}

	r.Register(protocol.CmdTimeResponse, "time_response", "epoch=%u status=%c", nil)
	r.Register(protocol.CmdGetTime, "get_time", "", cc.handleGetTime)
	r.Register(protocol.CmdSetTime, "set_time", "epoch=%u", cc.handleSetTime)
	r.Register(protocol.CmdAdjustTime, "adjust_time", "delta=%i", cc.handleAdjustTime)
	r.Register(protocol.CmdGetCalibration, "get_calibration", "", cc.handleGetCalibration)
	r.Register(protocol.CmdCalibrationResponse, "calibration_response",
		"us_per_interrupt=%u interrupts=%u pending_us=%u state=%c", nil)
	r.Register(protocol.CmdTune, "tune", "", cc.handleTune)
	r.Register(protocol.CmdTuneResponse, "tune_response", "result=%c us_per_interrupt=%u", nil)
	r.Register(protocol.CmdGetEvents, "get_events", "", cc.handleGetEvents)
	r.Register(protocol.CmdEventResponse, "event_response", "type=%c epoch=%u value=%u", nil)
}

func (cc *clockCommands) sendTime() {
	now := cc.clock.Now()
	status := cc.clock.Status()
	cc.respond(protocol.CmdTimeResponse, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(now))
		protocol.EncodeVLQUint(output, uint32(status))
	})
}

func (cc *clockCommands) handleGetTime(data *[]byte) error {
	cc.sendTime()
	return nil
}

func (cc *clockCommands) handleSetTime(data *[]byte) error {
	epoch, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	cc.clock.Set(Epoch(epoch))
	DebugPrintln("[CLOCK] set to " + utoa(epoch))
	cc.sendTime()
	return nil
}

func (cc *clockCommands) handleAdjustTime(data *[]byte) error {
	delta, err := protocol.DecodeVLQInt(data)
	if err != nil {
		return err
	}
	cc.clock.Adjust(delta)
	DebugPrintln("[CLOCK] adjusted by " + itoa(int(delta)))
	cc.sendTime()
	return nil
}

func (cc *clockCommands) handleGetCalibration(data *[]byte) error {
	ticks := cc.clock.Ticks()
	us := ticks.MicrosPerInterrupt()
	interrupts := ticks.InterruptCount()
	pending := ticks.Pending()
	var state CalibrationState
	if cc.cal != nil {
		state = cc.cal.State()
	}

	cc.respond(protocol.CmdCalibrationResponse, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, us)
		protocol.EncodeVLQUint(output, interrupts)
		protocol.EncodeVLQUint(output, pending)
		protocol.EncodeVLQUint(output, uint32(state))
	})
	return nil
}

func (cc *clockCommands) handleTune(data *[]byte) error {
	result := TuneNone
	if cc.cal != nil {
		var err error
		result, err = cc.cal.Tune()
		if err != nil {
			// The tune itself happened; only the snapshot write failed
			DebugPrintln("[CLOCK] tune: " + err.Error())
		}
	}
	us := cc.clock.Ticks().MicrosPerInterrupt()

	cc.respond(protocol.CmdTuneResponse, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(result))
		protocol.EncodeVLQUint(output, us)
	})
	return nil
}

func (cc *clockCommands) handleGetEvents(data *[]byte) error {
	for _, evt := range Events() {
		evt := evt
		cc.respond(protocol.CmdEventResponse, func(output protocol.OutputBuffer) {
			protocol.EncodeVLQUint(output, uint32(evt.Type))
			protocol.EncodeVLQUint(output, evt.Epoch)
			protocol.EncodeVLQUint(output, evt.Value)
		})
	}
	return nil
}
