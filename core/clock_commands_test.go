package core

import (
	"testing"

	"wdtclock/protocol"
)

type sentResponse struct {
	id      uint16
	payload []byte
}

func newCommandFixture(t *testing.T) (*CommandRegistry, *System, *[]sentResponse) {
	t.Helper()
	sys, _ := bootTest(t, DefaultConfig())
	registry := NewCommandRegistry()

	var sent []sentResponse
	respond := func(cmdID uint16, args func(output protocol.OutputBuffer)) {
		out := protocol.NewScratchOutput()
		args(out)
		sent = append(sent, sentResponse{id: cmdID, payload: append([]byte(nil), out.Result()...)})
	}
	RegisterClockCommands(registry, sys.Clock, sys.Calibrator, respond)
	return registry, sys, &sent
}

func encodeArgs(args ...int32) []byte {
	out := protocol.NewScratchOutput()
	for _, a := range args {
		protocol.EncodeVLQInt(out, a)
	}
	return append([]byte(nil), out.Result()...)
}

func decodeAll(t *testing.T, data []byte, n int) []uint32 {
	t.Helper()
	vals := make([]uint32, n)
	for i := range vals {
		v, err := protocol.DecodeVLQUint(&data)
		if err != nil {
			t.Fatalf("decoding value %d: %v", i, err)
		}
		vals[i] = v
	}
	if len(data) != 0 {
		t.Errorf("%d trailing bytes", len(data))
	}
	return vals
}

func TestSetAndGetTimeCommands(t *testing.T) {
	registry, sys, sent := newCommandFixture(t)

	data := encodeArgs(int32(uint32(1720100730)))
	if err := registry.Dispatch(protocol.CmdSetTime, &data); err != nil {
		t.Fatalf("set_time: %v", err)
	}
	if sys.Clock.Now() != 1720100730 {
		t.Errorf("clock = %d after set_time", sys.Clock.Now())
	}

	data = nil
	if err := registry.Dispatch(protocol.CmdGetTime, &data); err != nil {
		t.Fatalf("get_time: %v", err)
	}

	if len(*sent) != 2 {
		t.Fatalf("%d responses, want 2", len(*sent))
	}
	for _, resp := range *sent {
		if resp.id != protocol.CmdTimeResponse {
			t.Errorf("response id = %d", resp.id)
		}
		vals := decodeAll(t, resp.payload, 2)
		if vals[0] != 1720100730 || vals[1] != uint32(StatusSet) {
			t.Errorf("time_response = %v", vals)
		}
	}
}

func TestAdjustTimeCommand(t *testing.T) {
	registry, sys, sent := newCommandFixture(t)
	sys.Clock.Set(1720100730)

	data := encodeArgs(-30)
	if err := registry.Dispatch(protocol.CmdAdjustTime, &data); err != nil {
		t.Fatalf("adjust_time: %v", err)
	}
	vals := decodeAll(t, (*sent)[0].payload, 2)
	if vals[0] != 1720100700 {
		t.Errorf("time after adjust = %d", vals[0])
	}
}

func TestSetTimeMissingArgument(t *testing.T) {
	registry, _, sent := newCommandFixture(t)

	var data []byte
	if err := registry.Dispatch(protocol.CmdSetTime, &data); err != protocol.ErrBufferTooSmall {
		t.Errorf("err = %v, want ErrBufferTooSmall", err)
	}
	if len(*sent) != 0 {
		t.Error("responded to a malformed command")
	}
}

func TestCalibrationCommands(t *testing.T) {
	registry, sys, sent := newCommandFixture(t)
	sys.Clock.Set(1720100730)

	var data []byte
	if err := registry.Dispatch(protocol.CmdTune, &data); err != nil {
		t.Fatalf("tune: %v", err)
	}
	tick(sys.Ticks, 7200)
	sys.Clock.Set(1720100730 + 7272)
	if err := registry.Dispatch(protocol.CmdTune, &data); err != nil {
		t.Fatalf("tune: %v", err)
	}
	sys.Ticks.OnTick()
	if err := registry.Dispatch(protocol.CmdGetCalibration, &data); err != nil {
		t.Fatalf("get_calibration: %v", err)
	}

	if len(*sent) != 3 {
		t.Fatalf("%d responses, want 3", len(*sent))
	}

	warm := decodeAll(t, (*sent)[0].payload, 2)
	if TuneResult(warm[0]) != TuneWarmup || warm[1] != MicrosPerSecond {
		t.Errorf("first tune_response = %v", warm)
	}
	accepted := decodeAll(t, (*sent)[1].payload, 2)
	if TuneResult(accepted[0]) != TuneAccepted || accepted[1] != 1010000 {
		t.Errorf("second tune_response = %v", accepted)
	}

	if (*sent)[2].id != protocol.CmdCalibrationResponse {
		t.Fatalf("response id = %d", (*sent)[2].id)
	}
	status := decodeAll(t, (*sent)[2].payload, 4)
	if status[0] != 1010000 || status[1] != 1 || status[2] != 1010000 || CalibrationState(status[3]) != Tracking {
		t.Errorf("calibration_response = %v", status)
	}
}

func TestGetEventsCommand(t *testing.T) {
	registry, sys, sent := newCommandFixture(t)
	clearEventRing()
	sys.Clock.Set(1720100730)
	sys.Clock.Adjust(5)

	var data []byte
	if err := registry.Dispatch(protocol.CmdGetEvents, &data); err != nil {
		t.Fatalf("get_events: %v", err)
	}
	if len(*sent) != 2 {
		t.Fatalf("%d event responses, want 2", len(*sent))
	}
	set := decodeAll(t, (*sent)[0].payload, 3)
	if set[0] != EvtSet || set[1] != 1720100730 {
		t.Errorf("first event = %v", set)
	}
	adj := decodeAll(t, (*sent)[1].payload, 3)
	if adj[0] != EvtAdjust || adj[2] != 5 {
		t.Errorf("second event = %v", adj)
	}
}

func TestTuneWithoutCalibrator(t *testing.T) {
	sys, _ := bootTest(t, DefaultConfig())
	registry := NewCommandRegistry()
	var result uint32 = 99
	RegisterClockCommands(registry, sys.Clock, nil, func(cmdID uint16, args func(output protocol.OutputBuffer)) {
		out := protocol.NewScratchOutput()
		args(out)
		data := out.Result()
		result, _ = protocol.DecodeVLQUint(&data)
	})

	var data []byte
	if err := registry.Dispatch(protocol.CmdTune, &data); err != nil {
		t.Fatal(err)
	}
	if TuneResult(result) != TuneNone {
		t.Errorf("tune result = %d, want TuneNone", result)
	}
}
