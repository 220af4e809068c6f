package core

// CalibrationState is the drift calibrator state
type CalibrationState uint8

const (
	WarmingUp CalibrationState = iota // no reference second yet
	Tracking                          // comparing elapsed seconds against ticks
)

// TuneResult says what a Tune call did
type TuneResult uint8

const (
	TuneNone          TuneResult = iota
	TuneWarmup                   // reference recorded, nothing compared
	TuneTooFewSamples            // window not long enough yet
	TuneRejected                 // estimate outside the tolerance band
	TuneAccepted                 // constant replaced and persisted
)

func (r TuneResult) String() string {
	switch r {
	case TuneWarmup:
		return "warmup"
	case TuneTooFewSamples:
		return "too_few_samples"
	case TuneRejected:
		return "rejected"
	case TuneAccepted:
		return "accepted"
	default:
		return "none"
	}
}

// Calibrator estimates the real length of one tick by comparing seconds
// elapsed on the clock (corrected by whoever sets it) against ticks counted
// over a window of at least MinSamples. The window starts at the reference
// second: warmup and every accepted estimate restart the tick count there.
// Foreground only.
type Calibrator struct {
	clock *Clock
	store Store
	cfg   Config
	env   EnvironmentSource

	state          CalibrationState
	reference      Epoch
	lastCheckpoint Epoch
	lastResult     TuneResult
	lastObserved   uint32
}

// NewCalibrator creates a calibrator in the WarmingUp state. store may be nil.
func NewCalibrator(clock *Clock, store Store, cfg Config) *Calibrator {
	return &Calibrator{
		clock: clock,
		store: store,
		cfg:   cfg,
	}
}

// SetEnvironmentSource registers an optional voltage/temperature reading,
// recorded alongside accepted calibrations
func (c *Calibrator) SetEnvironmentSource(src EnvironmentSource) {
	c.env = src
}

// State returns the current calibrator state
func (c *Calibrator) State() CalibrationState {
	return c.state
}

// LastResult returns the outcome of the previous Tune call
func (c *Calibrator) LastResult() TuneResult {
	return c.lastResult
}

// LastObserved returns the most recent tick-length estimate, accepted or not
func (c *Calibrator) LastObserved() uint32 {
	return c.lastObserved
}

// Tune runs one step of the calibration state machine. The returned error
// only reports a failed store write; calibration state is never rolled back.
func (c *Calibrator) Tune() (TuneResult, error) {
	if c.state == WarmingUp {
		now := c.clock.restartWindow()
		c.reference = now
		c.lastCheckpoint = now
		c.state = Tracking
		RecordEvent(EvtTuneWarmup, uint32(now), 0)
		return c.finish(TuneWarmup), nil
	}

	now := c.clock.Now()
	interrupts := c.clock.ticks.InterruptCount()
	if interrupts <= c.cfg.MinSamples {
		return c.finish(TuneTooFewSamples), c.checkpoint(now)
	}

	// (now - reference) wraps if the clock was set backwards inside the
	// window, which lands far outside the band and is rejected.
	elapsed := uint64(now - c.reference)
	observed := elapsed * MicrosPerSecond / uint64(interrupts)
	if observed > 0xFFFFFFFF {
		c.lastObserved = 0xFFFFFFFF
	} else {
		c.lastObserved = uint32(observed)
	}

	if !c.cfg.InBand(observed) {
		RecordEvent(EvtTuneReject, uint32(now), c.lastObserved)
		return c.finish(TuneRejected), c.checkpoint(now)
	}

	now = c.clock.recalibrate(uint32(observed))
	c.reference = now
	RecordEvent(EvtTuneAccept, uint32(now), uint32(observed))
	if c.env != nil {
		if env, ok := c.env(); ok {
			RecordEvent(EvtEnvironment, env.VccMillivolts, uint32(env.TempMilliC))
		}
	}

	c.lastCheckpoint = now
	err := c.save(Snapshot{Epoch: now, MicrosPerInterrupt: uint32(observed)})
	return c.finish(TuneAccepted), err
}

func (c *Calibrator) finish(r TuneResult) TuneResult {
	c.lastResult = r
	return r
}

// checkpoint persists the current time when the checkpoint interval has passed
func (c *Calibrator) checkpoint(now Epoch) error {
	if c.cfg.CheckpointInterval == 0 || c.store == nil {
		return nil
	}
	if uint32(now-c.lastCheckpoint) < c.cfg.CheckpointInterval {
		return nil
	}
	c.lastCheckpoint = now
	RecordEvent(EvtCheckpoint, uint32(now), 0)
	return c.save(Snapshot{Epoch: now, MicrosPerInterrupt: c.clock.ticks.MicrosPerInterrupt()})
}

func (c *Calibrator) save(s Snapshot) error {
	if c.store == nil {
		return nil
	}
	if err := SaveSnapshot(c.store, s); err != nil {
		RecordEvent(EvtStoreError, uint32(s.Epoch), 0)
		DebugPrintln("[CLOCK] snapshot write failed: " + err.Error())
		return err
	}
	return nil
}
