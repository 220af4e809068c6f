package core

import (
	"encoding/binary"
	"errors"
	"testing"
)

const t0 = Epoch(1720100730)

func bootTest(t *testing.T, cfg Config) (*System, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore(SnapshotSize)
	sys, err := Boot(store, cfg)
	if err != nil {
		t.Fatalf("Boot failed: %v", err)
	}
	return sys, store
}

func storedSnapshot(store *MemoryStore) (Epoch, uint32) {
	b := store.Bytes()
	return Epoch(binary.LittleEndian.Uint32(b[SnapshotEpochOffset:])),
		binary.LittleEndian.Uint32(b[SnapshotCalibrationOffset:])
}

func mustTune(t *testing.T, cal *Calibrator, want TuneResult) {
	t.Helper()
	got, err := cal.Tune()
	if err != nil {
		t.Fatalf("Tune() error: %v", err)
	}
	if got != want {
		t.Fatalf("Tune() = %s, want %s", got, want)
	}
}

func TestCalibratorConverges(t *testing.T) {
	sys, store := bootTest(t, DefaultConfig())
	cal := sys.Calibrator

	sys.Clock.Set(t0)
	mustTune(t, cal, TuneWarmup)
	if cal.State() != Tracking {
		t.Fatalf("State() = %d after warmup", cal.State())
	}

	// The oscillator really runs at 1.01 s; two hours of ticks
	tick(sys.Ticks, 7200)
	if now := sys.Clock.Now(); now != t0+7200 {
		t.Fatalf("uncalibrated clock reads %d, want t0+7200", now)
	}

	// A trusted source corrects the clock, then the calibrator runs
	sys.Clock.Set(t0 + 7272)
	mustTune(t, cal, TuneAccepted)

	if us := sys.Ticks.MicrosPerInterrupt(); us != 1010000 {
		t.Errorf("MicrosPerInterrupt() = %d, want 1010000", us)
	}
	if n := sys.Ticks.InterruptCount(); n != 0 {
		t.Errorf("InterruptCount() = %d after acceptance", n)
	}
	if cal.LastObserved() != 1010000 {
		t.Errorf("LastObserved() = %d", cal.LastObserved())
	}

	epoch, us := storedSnapshot(store)
	if epoch != t0+7272 || us != 1010000 {
		t.Errorf("stored snapshot = (%d, %d), want (t0+7272, 1010000)", epoch, us)
	}

	// Calibrated, the clock now keeps real time
	tick(sys.Ticks, 7200)
	if now := sys.Clock.Now(); now != t0+7272+7272 {
		t.Errorf("calibrated clock reads t0+%d, want t0+14544", now-t0)
	}
}

func TestCalibratorRejectsOutOfBand(t *testing.T) {
	sys, store := bootTest(t, DefaultConfig())
	cal := sys.Calibrator

	sys.Clock.Set(t0)
	mustTune(t, cal, TuneWarmup)
	tick(sys.Ticks, 7200)

	// 1.3 s per tick is outside +/-2%
	sys.Clock.Set(t0 + 9360)
	mustTune(t, cal, TuneRejected)

	if us := sys.Ticks.MicrosPerInterrupt(); us != MicrosPerSecond {
		t.Errorf("MicrosPerInterrupt() = %d, want unchanged", us)
	}
	if cal.LastObserved() != 1300000 {
		t.Errorf("LastObserved() = %d, want 1300000", cal.LastObserved())
	}
	if n := sys.Ticks.InterruptCount(); n != 7200 {
		t.Errorf("InterruptCount() = %d, rejected tune must not reset it", n)
	}
	if _, us := storedSnapshot(store); us == 1300000 {
		t.Error("rejected estimate was persisted")
	}
}

func TestCalibratorBandEdges(t *testing.T) {
	testCases := []struct {
		name    string
		elapsed Epoch
		want    TuneResult
	}{
		{"lower edge", 3528, TuneAccepted}, // 980000
		{"upper edge", 3672, TuneAccepted}, // 1020000
		{"below", 3527, TuneRejected},
		{"above", 3673, TuneRejected},
	}

	cfg := DefaultConfig()
	cfg.MinSamples = 3599

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sys, _ := bootTest(t, cfg)
			sys.Clock.Set(t0)
			mustTune(t, sys.Calibrator, TuneWarmup)
			tick(sys.Ticks, 3600)
			sys.Clock.Set(t0 + tc.elapsed)
			mustTune(t, sys.Calibrator, tc.want)
		})
	}
}

func TestCalibratorTooFewSamples(t *testing.T) {
	sys, _ := bootTest(t, DefaultConfig())
	cal := sys.Calibrator

	sys.Clock.Set(t0)
	mustTune(t, cal, TuneWarmup)

	// Exactly MinSamples is not enough
	tick(sys.Ticks, 3600)
	mustTune(t, cal, TuneTooFewSamples)

	tick(sys.Ticks, 1)
	mustTune(t, cal, TuneAccepted)
	if cal.LastResult() != TuneAccepted {
		t.Errorf("LastResult() = %s", cal.LastResult())
	}
}

func TestCalibratorIgnoresTicksBeforeWarmup(t *testing.T) {
	sys, _ := bootTest(t, DefaultConfig())
	cal := sys.Calibrator

	sys.Clock.Set(t0)
	tick(sys.Ticks, 600) // running untuned for ten minutes
	mustTune(t, cal, TuneWarmup)
	if now := sys.Clock.Now(); now != t0+600 {
		t.Fatalf("Now() = t0+%d after warmup, want t0+600", now-t0)
	}
	if n := sys.Ticks.InterruptCount(); n != 0 {
		t.Fatalf("InterruptCount() = %d after warmup, want 0", n)
	}

	for i := 1; i <= 6; i++ {
		tick(sys.Ticks, 600)
		mustTune(t, cal, TuneTooFewSamples)
	}

	tick(sys.Ticks, 600)
	mustTune(t, cal, TuneAccepted)
	if cal.LastObserved() != 1000000 {
		t.Errorf("LastObserved() = %d, want 1000000", cal.LastObserved())
	}
	if us := sys.Ticks.MicrosPerInterrupt(); us != 1000000 {
		t.Errorf("MicrosPerInterrupt() = %d, want 1000000", us)
	}
	if now := sys.Clock.Now(); now != t0+600+4200 {
		t.Errorf("Now() = t0+%d, want t0+4800", now-t0)
	}
}

func TestCalibratorCheckpoints(t *testing.T) {
	sys, store := bootTest(t, DefaultConfig())
	cal := sys.Calibrator

	sys.Clock.Set(t0)
	mustTune(t, cal, TuneWarmup)

	tick(sys.Ticks, 1800)
	mustTune(t, cal, TuneTooFewSamples)
	if epoch, _ := storedSnapshot(store); epoch == t0+1800 {
		t.Error("checkpoint written before the interval passed")
	}

	tick(sys.Ticks, 1800)
	mustTune(t, cal, TuneTooFewSamples)
	epoch, us := storedSnapshot(store)
	if epoch != t0+3600 || us != MicrosPerSecond {
		t.Errorf("checkpoint = (%d, %d), want (t0+3600, 1000000)", epoch, us)
	}
}

func TestCalibratorBackwardSetRejected(t *testing.T) {
	sys, _ := bootTest(t, DefaultConfig())
	cal := sys.Calibrator

	sys.Clock.Set(t0)
	mustTune(t, cal, TuneWarmup)
	tick(sys.Ticks, 7200)

	// Elapsed time wraps around to about 2^32 seconds
	sys.Clock.Set(t0 - 100)
	mustTune(t, cal, TuneRejected)
	if cal.LastObserved() != 0xFFFFFFFF {
		t.Errorf("LastObserved() = %d, want saturated", cal.LastObserved())
	}
}

type failingStore struct{ MemoryStore }

var errStoreBroken = errors.New("eeprom not responding")

func (f *failingStore) WriteAt(p []byte, off int64) (int, error) {
	return 0, errStoreBroken
}

func TestCalibratorStoreErrorKeepsCalibration(t *testing.T) {
	store := &failingStore{MemoryStore: *NewMemoryStore(SnapshotSize)}
	sys, err := Boot(store, DefaultConfig())
	if err != nil {
		t.Fatalf("Boot failed: %v", err)
	}
	clearEventRing()

	sys.Clock.Set(t0)
	mustTune(t, sys.Calibrator, TuneWarmup)
	tick(sys.Ticks, 7200)
	sys.Clock.Set(t0 + 7272)

	result, err := sys.Calibrator.Tune()
	if result != TuneAccepted || !errors.Is(err, errStoreBroken) {
		t.Fatalf("Tune() = %s, %v", result, err)
	}
	if us := sys.Ticks.MicrosPerInterrupt(); us != 1010000 {
		t.Errorf("MicrosPerInterrupt() = %d, store failure must not roll back", us)
	}

	found := false
	for _, evt := range Events() {
		if evt.Type == EvtStoreError {
			found = true
		}
	}
	if !found {
		t.Error("store error not recorded")
	}
}

func TestCalibratorEnvironment(t *testing.T) {
	sys, _ := bootTest(t, DefaultConfig())
	cal := sys.Calibrator
	cal.SetEnvironmentSource(func() (Environment, bool) {
		return Environment{VccMillivolts: 3300, TempMilliC: 21500}, true
	})
	clearEventRing()

	sys.Clock.Set(t0)
	mustTune(t, cal, TuneWarmup)
	tick(sys.Ticks, 3601)
	sys.Clock.Set(t0 + 3601)
	mustTune(t, cal, TuneAccepted)

	var env *Event
	for _, evt := range Events() {
		if evt.Type == EvtEnvironment {
			evt := evt
			env = &evt
		}
	}
	if env == nil {
		t.Fatal("environment not recorded on acceptance")
	}
	if env.Epoch != 3300 || env.Value != 21500 {
		t.Errorf("environment event = %+v", *env)
	}
}

func TestBootRestoresSnapshot(t *testing.T) {
	store := NewMemoryStore(SnapshotSize)
	if err := SaveSnapshot(store, Snapshot{Epoch: t0, MicrosPerInterrupt: 1010000}); err != nil {
		t.Fatal(err)
	}

	sys, err := Boot(store, DefaultConfig())
	if err != nil {
		t.Fatalf("Boot failed: %v", err)
	}
	if sys.Clock.Now() != t0 || sys.Clock.Status() != StatusRestored {
		t.Errorf("restored clock: now %d status %d", sys.Clock.Now(), sys.Clock.Status())
	}
	if sys.Ticks.MicrosPerInterrupt() != 1010000 {
		t.Errorf("restored constant = %d", sys.Ticks.MicrosPerInterrupt())
	}
}

func TestBootWithoutStore(t *testing.T) {
	sys, err := Boot(nil, DefaultConfig())
	if err != ErrNoStore {
		t.Errorf("err = %v, want ErrNoStore", err)
	}
	if sys.Clock.Now() != 1451606400 || sys.Ticks.MicrosPerInterrupt() != MicrosPerSecond {
		t.Errorf("defaults not applied: %d, %d", sys.Clock.Now(), sys.Ticks.MicrosPerInterrupt())
	}
	// Calibration still works, it just cannot persist
	sys.Clock.Set(t0)
	mustTune(t, sys.Calibrator, TuneWarmup)
}
