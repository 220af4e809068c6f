package sim

import (
	"github.com/samber/oops"

	"wdtclock/core"
)

// DriftParams describes an offline run of a board whose timer is off nominal
type DriftParams struct {
	// RealMicros is the true length of one timer interrupt
	RealMicros uint32
	// Hours of simulated time
	Hours int
	// SyncEvery is how many hours pass between corrections from a trusted
	// source; each correction is followed by a tune
	SyncEvery int
	// Start is the true time at the beginning of the run
	Start core.Epoch
}

// DriftSample is the state at the end of one simulated hour, before any
// correction made at that hour
type DriftSample struct {
	Hour               int
	TrueTime           core.Epoch
	DeviceTime         core.Epoch
	ErrorSeconds       int64
	MicrosPerInterrupt uint32
	Tune               core.TuneResult
}

// SimulateDrift runs the clock and calibrator against an oscillator of the
// given real period and reports hourly error
func SimulateDrift(cfg core.Config, p DriftParams) ([]DriftSample, error) {
	if p.RealMicros == 0 {
		return nil, oops.Errorf("real tick length must be positive")
	}
	if p.Hours <= 0 {
		return nil, oops.Errorf("hours must be positive, got %d", p.Hours)
	}
	if p.Start == 0 {
		p.Start = core.Epoch(cfg.EpochFloor)
	}

	store := core.NewMemoryStore(core.SnapshotSize)
	sys, err := core.Boot(store, cfg)
	if err != nil {
		return nil, oops.Wrapf(err, "booting simulated clock")
	}

	sys.Clock.Set(p.Start)
	if _, err := sys.Calibrator.Tune(); err != nil {
		return nil, oops.Wrapf(err, "initial tune")
	}

	samples := make([]DriftSample, 0, p.Hours)
	var realMicros uint64
	for hour := 1; hour <= p.Hours; hour++ {
		boundary := uint64(hour) * 3600 * core.MicrosPerSecond
		for realMicros < boundary {
			sys.Ticks.OnTick()
			realMicros += uint64(p.RealMicros)
		}

		trueNow := p.Start + core.Epoch(realMicros/core.MicrosPerSecond)
		devNow := sys.Clock.Now()
		sample := DriftSample{
			Hour:         hour,
			TrueTime:     trueNow,
			DeviceTime:   devNow,
			ErrorSeconds: int64(devNow) - int64(trueNow),
		}

		if p.SyncEvery > 0 && hour%p.SyncEvery == 0 {
			sys.Clock.Set(trueNow)
			result, err := sys.Calibrator.Tune()
			if err != nil {
				return samples, oops.Wrapf(err, "tune at hour %d", hour)
			}
			sample.Tune = result
		}
		sample.MicrosPerInterrupt = sys.Ticks.MicrosPerInterrupt()

		log.WithField("hour", hour).WithField("error_s", sample.ErrorSeconds).Debug("drift sample")
		samples = append(samples, sample)
	}
	return samples, nil
}
