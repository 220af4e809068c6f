package core

// Config holds the clock tunables. Zero fields mean "use the default".
type Config struct {
	// NominalMicros is the uncalibrated length of one tick
	NominalMicros uint32 `json:"nominal_us"`

	// ToleranceMicros bounds accepted calibrations to Nominal +/- Tolerance
	ToleranceMicros uint32 `json:"tolerance_us"`

	// MinSamples is the number of ticks a calibration window must exceed
	MinSamples uint32 `json:"min_samples"`

	// HighWaterMicros triggers the in-handler flush
	HighWaterMicros uint32 `json:"high_water_us"`

	// EpochFloor is the earliest plausible persisted time; also the default
	EpochFloor uint32 `json:"epoch_floor"`

	// CheckpointInterval persists the time every so many seconds (0 disables)
	CheckpointInterval uint32 `json:"checkpoint_interval_s"`

	// TuneInterval is how often the main loop runs the calibrator, in seconds
	TuneInterval uint32 `json:"tune_interval_s"`
}

// DefaultConfig returns the reference tunables: one second nominal tick,
// +/-2% tolerance, one hour window, half hour flush, 2016-01-01 floor.
func DefaultConfig() Config {
	return Config{
		NominalMicros:      MicrosPerSecond,
		ToleranceMicros:    MicrosPerSecond / 50,
		MinSamples:         3600,
		HighWaterMicros:    DefaultHighWaterMicros,
		EpochFloor:         1451606400,
		CheckpointInterval: 3600,
		TuneInterval:       600,
	}
}

// InBand reports whether a tick length is close enough to nominal to trust
func (c Config) InBand(micros uint64) bool {
	lo := uint64(c.NominalMicros) - uint64(c.ToleranceMicros)
	hi := uint64(c.NominalMicros) + uint64(c.ToleranceMicros)
	return micros >= lo && micros <= hi
}
