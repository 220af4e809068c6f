package core

// System bundles the clock parts the way firmware boots them
type System struct {
	Config     Config
	Ticks      *TickAccumulator
	Clock      *Clock
	Calibrator *Calibrator
}

// Boot restores the persisted snapshot (or defaults) and wires the tick
// accumulator, clock and calibrator. A store read error is returned for
// logging; the system is usable either way.
func Boot(store Store, cfg Config) (*System, error) {
	snap, err := LoadSnapshot(store, cfg)

	ticks := NewTickAccumulator(snap.MicrosPerInterrupt, cfg.HighWaterMicros)
	clock := NewClock(ticks)
	clock.Restore(snap.Epoch)

	return &System{
		Config:     cfg,
		Ticks:      ticks,
		Clock:      clock,
		Calibrator: NewCalibrator(clock, store, cfg),
	}, err
}
