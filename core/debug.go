package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// Event captures a clock event for post-mortem analysis.
//
// Epoch is the clock time at the event for every type except
// EvtEnvironment, which has no time of its own: it is recorded right after
// the EvtTuneAccept it belongs to and carries the supply voltage in Epoch.
// Use Detail to render an event with the right labels.
type Event struct {
	Type  uint8  // Event type code
	Epoch uint32 // Clock time, or Vcc mV for EvtEnvironment
	Value uint32 // Per-type value, see the type codes
}

// Event type codes
const (
	EvtISRFlush    = 1  // handler folded seconds; Value = seconds carried
	EvtSet         = 2  // clock set
	EvtAdjust      = 3  // clock adjusted; Value = int32 delta
	EvtRestore     = 4  // snapshot restored at boot
	EvtTuneWarmup  = 5  // calibrator recorded its first reference
	EvtTuneReject  = 6  // estimate outside band; Value = estimate
	EvtTuneAccept  = 7  // estimate installed; Value = estimate
	EvtCheckpoint  = 8  // time persisted
	EvtStoreError  = 9  // snapshot write failed
	EvtEnvironment = 10 // Epoch = Vcc mV, Value = int32 temperature m°C
)

const (
	EventRingSize = 16 // Keep last 16 events
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false

	eventRing     [EventRingSize]Event
	eventRingHead uint8
)

// SetDebugWriter sets the platform-specific debug output function
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// RecordEvent captures an event in the ring buffer. Foreground only: the
// tick handler never logs.
func RecordEvent(eventType uint8, epoch, value uint32) {
	idx := eventRingHead
	eventRing[idx] = Event{
		Type:  eventType,
		Epoch: epoch,
		Value: value,
	}
	eventRingHead = (idx + 1) % EventRingSize
}

// Events returns the ring contents from oldest to newest, skipping empty slots
func Events() []Event {
	out := make([]Event, 0, EventRingSize)
	start := eventRingHead
	for i := uint8(0); i < EventRingSize; i++ {
		evt := eventRing[(start+i)%EventRingSize]
		if evt.Type == 0 {
			continue
		}
		out = append(out, evt)
	}
	return out
}

// EventName returns the short tag used in dumps
func EventName(t uint8) string {
	switch t {
	case EvtISRFlush:
		return "ISR_FLUSH"
	case EvtSet:
		return "SET"
	case EvtAdjust:
		return "ADJUST"
	case EvtRestore:
		return "RESTORE"
	case EvtTuneWarmup:
		return "TUNE_WARMUP"
	case EvtTuneReject:
		return "TUNE_REJECT"
	case EvtTuneAccept:
		return "TUNE_ACCEPT"
	case EvtCheckpoint:
		return "CHECKPOINT"
	case EvtStoreError:
		return "STORE_ERROR!"
	case EvtEnvironment:
		return "ENV"
	default:
		return "UNKNOWN"
	}
}

// Detail renders the event's fields with the labels its type gives them
func (e Event) Detail() string {
	switch e.Type {
	case EvtEnvironment:
		return "vcc_mv=" + utoa(e.Epoch) + " temp_mc=" + itoa(int(int32(e.Value)))
	case EvtAdjust:
		return "epoch=" + utoa(e.Epoch) + " delta=" + itoa(int(int32(e.Value)))
	case EvtISRFlush:
		return "seconds=" + utoa(e.Value)
	case EvtTuneReject, EvtTuneAccept:
		return "epoch=" + utoa(e.Epoch) + " us=" + utoa(e.Value)
	default:
		return "epoch=" + utoa(e.Epoch)
	}
}

// DumpEventRing outputs the event ring through the debug writer
func DumpEventRing() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[CLOCK] === Event Ring Dump ===")
	for _, evt := range Events() {
		debugPrintln("[CLOCK] " + EventName(evt.Type) + " " + evt.Detail())
	}
	debugPrintln("[CLOCK] === End Dump ===")
}
