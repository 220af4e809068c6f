package core

const (
	// MicrosPerSecond is the drain quantum of the tick accumulator
	MicrosPerSecond = 1000000

	// DefaultHighWaterMicros forces a flush inside the interrupt handler once
	// half an hour of ticks has piled up without a foreground drain
	DefaultHighWaterMicros = 1800 * MicrosPerSecond

	// MaxHighWaterMicros leaves room above the mark for the tick that crosses
	// it; accumulated must never wrap before the flush runs
	MaxHighWaterMicros = 3600 * MicrosPerSecond
)

// TickAccumulator turns periodic interrupts into whole seconds.
//
// OnTick runs in interrupt context and only adds. Everything the handler
// writes is read by foreground code through snapshot(), and everything the
// handler reads is written by foreground code through a critical section.
type TickAccumulator struct {
	// Written by the interrupt handler
	accumulated uint32 // microseconds since the last rebase
	carried     uint32 // whole seconds folded in by a forced flush
	interrupts  uint32 // ticks since the last calibration reset
	rebases     uint32 // bumped whenever the handler moves the baseline

	// Written by the foreground
	consumed           uint32 // microseconds already turned into seconds
	microsPerInterrupt uint32
	highWater          uint32
}

// tickSnapshot is a consistent copy of the interrupt-shared fields
type tickSnapshot struct {
	accumulated uint32
	consumed    uint32
	carried     uint32
	interrupts  uint32
	rebases     uint32
}

// NewTickAccumulator creates an accumulator crediting microsPerInterrupt per tick
func NewTickAccumulator(microsPerInterrupt, highWater uint32) *TickAccumulator {
	if highWater == 0 {
		highWater = DefaultHighWaterMicros
	}
	if highWater > MaxHighWaterMicros {
		highWater = MaxHighWaterMicros
	}
	return &TickAccumulator{
		microsPerInterrupt: microsPerInterrupt,
		highWater:          highWater,
	}
}

// OnTick must be called once per periodic interrupt, from the interrupt handler.
func (a *TickAccumulator) OnTick() {
	enterISR()
	a.interrupts++
	a.accumulated += a.microsPerInterrupt
	if a.accumulated > a.highWater {
		a.flushFromISR()
	}
	exitISR()
}

// flushFromISR folds whole seconds into carried and restarts the baseline
// from the sub-second residue, keeping accumulated far from overflow.
func (a *TickAccumulator) flushFromISR() {
	elapsed := a.accumulated - a.consumed
	whole := elapsed / MicrosPerSecond
	a.carried += whole
	a.accumulated = elapsed - whole*MicrosPerSecond
	a.consumed = 0
	a.rebases++
}

func (a *TickAccumulator) snapshot() tickSnapshot {
	cs := enterCritical()
	s := tickSnapshot{
		accumulated: a.accumulated,
		consumed:    a.consumed,
		carried:     a.carried,
		interrupts:  a.interrupts,
		rebases:     a.rebases,
	}
	cs.exit()
	return s
}

// Drain converts pending microseconds into whole seconds and returns how many
// seconds elapsed since the previous drain. Foreground only.
func (a *TickAccumulator) Drain() uint32 {
	for {
		s := a.snapshot()

		// Step one second at a time: the calibrated period does not divide a
		// second evenly and each step must stay exact.
		consumed := s.consumed
		var seconds uint32
		for s.accumulated-consumed >= MicrosPerSecond {
			seconds++
			consumed += MicrosPerSecond
		}

		cs := enterCritical()
		if a.rebases != s.rebases {
			// The handler flushed under us; the snapshot is stale.
			cs.exit()
			continue
		}
		a.consumed = consumed
		a.carried -= s.carried
		cs.exit()

		if s.carried > 0 {
			RecordEvent(EvtISRFlush, 0, s.carried)
		}
		return seconds + s.carried
	}
}

// Pending returns microseconds accumulated but not yet drained
func (a *TickAccumulator) Pending() uint32 {
	s := a.snapshot()
	return s.accumulated - s.consumed
}

// InterruptCount returns ticks seen since the last calibration reset
func (a *TickAccumulator) InterruptCount() uint32 {
	return a.snapshot().interrupts
}

// MicrosPerInterrupt returns the calibration constant credited per tick
func (a *TickAccumulator) MicrosPerInterrupt() uint32 {
	cs := enterCritical()
	us := a.microsPerInterrupt
	cs.exit()
	return us
}

// rebase drops everything pending so that ticks already elapsed are not
// credited again after the second counter is overwritten.
func (a *TickAccumulator) rebase() {
	cs := enterCritical()
	a.consumed = a.accumulated
	a.carried = 0
	cs.exit()
}

// restartWindow starts a fresh calibration window: whole seconds still
// pending, carried ones included, are returned for the caller to credit, the
// sub-second residue stays pending and the interrupt count restarts at zero.
// All of it happens in one critical section so no tick falls between the
// credited seconds and the new window.
func (a *TickAccumulator) restartWindow() uint32 {
	cs := enterCritical()
	seconds := a.restartLocked()
	cs.exit()
	return seconds
}

// recalibrate is restartWindow that also installs a new constant. Ticks
// after it are credited at the new rate.
func (a *TickAccumulator) recalibrate(microsPerInterrupt uint32) uint32 {
	cs := enterCritical()
	seconds := a.restartLocked()
	a.microsPerInterrupt = microsPerInterrupt
	cs.exit()
	return seconds
}

func (a *TickAccumulator) restartLocked() uint32 {
	elapsed := a.accumulated - a.consumed
	whole := elapsed / MicrosPerSecond
	seconds := whole + a.carried
	a.accumulated = elapsed - whole*MicrosPerSecond
	a.consumed = 0
	a.carried = 0
	a.interrupts = 0
	a.rebases++
	return seconds
}
