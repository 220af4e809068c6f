package core

import "testing"

func newTestClock(us uint32) *Clock {
	return NewClock(NewTickAccumulator(us, 0))
}

func TestClockNowIsIdempotentBetweenTicks(t *testing.T) {
	c := newTestClock(1000000)
	c.Set(1720100730)

	if a, b := c.Now(), c.Now(); a != b || a != 1720100730 {
		t.Errorf("Now() = %d then %d, want 1720100730 twice", a, b)
	}

	c.Ticks().OnTick()
	if got := c.Now(); got != 1720100731 {
		t.Errorf("Now() after one tick = %d", got)
	}
}

func TestClockNowMonotonic(t *testing.T) {
	c := newTestClock(700000)
	c.Set(1451606400)

	prev := c.Now()
	for i := 0; i < 5000; i++ {
		c.Ticks().OnTick()
		now := c.Now()
		if now < prev {
			t.Fatalf("time went backwards at tick %d: %d -> %d", i, prev, now)
		}
		prev = now
	}
	if prev != 1451606400+3500 {
		t.Errorf("after 5000 x 0.7 s, Now() = %d, want +3500", prev)
	}
}

func TestClockSetDiscardsPendingTicks(t *testing.T) {
	c := newTestClock(500000)
	c.Ticks().OnTick() // half a second pending

	c.Set(1000)
	c.Ticks().OnTick()
	if got := c.Now(); got != 1000 {
		t.Errorf("Now() = %d, want 1000: the half second before Set must not count", got)
	}
	c.Ticks().OnTick()
	if got := c.Now(); got != 1001 {
		t.Errorf("Now() = %d, want 1001", got)
	}
}

func TestClockAdjustKeepsPhase(t *testing.T) {
	c := newTestClock(500000)
	c.Set(1000)
	c.Ticks().OnTick()

	c.Adjust(-10)
	if got := c.Now(); got != 990 {
		t.Errorf("Now() after Adjust(-10) = %d", got)
	}
	c.Ticks().OnTick()
	if got := c.Now(); got != 991 {
		t.Errorf("Now() = %d, want 991: sub-second phase was lost", got)
	}
	if c.Status() != StatusSet {
		t.Errorf("Status() = %d, want StatusSet", c.Status())
	}
}

func TestClockStatus(t *testing.T) {
	c := newTestClock(1000000)
	if c.Status() != StatusNotSet {
		t.Errorf("new clock status = %d", c.Status())
	}
	c.Restore(1451606400)
	if c.Status() != StatusRestored {
		t.Errorf("status after Restore = %d", c.Status())
	}
	c.SetDate(13, 45, 30, 4, 7, 24)
	if c.Status() != StatusSet || c.Now() != 1720100730 {
		t.Errorf("SetDate: status %d now %d", c.Status(), c.Now())
	}
}

func TestClockAccessors(t *testing.T) {
	c := newTestClock(1000000)
	at := At(1720100730) // Thursday 2024-07-04 13:45:30

	if c.Hour(at) != 13 || c.Minute(at) != 45 || c.Second(at) != 30 {
		t.Errorf("time = %02d:%02d:%02d", c.Hour(at), c.Minute(at), c.Second(at))
	}
	if c.Day(at) != 4 || c.Month(at) != 7 || c.Year(at) != 2024 {
		t.Errorf("date = %d-%d-%d", c.Year(at), c.Month(at), c.Day(at))
	}
	if c.Weekday(at) != Thursday {
		t.Errorf("weekday = %d", c.Weekday(at))
	}
	if !c.IsPM(at) || c.IsAM(at) {
		t.Error("13:45 should be PM")
	}

	// Now resolves through the clock
	c.Set(1720100730)
	if c.Hour(Now) != 13 || c.Year(Now) != 2024 {
		t.Errorf("Now accessors: hour %d year %d", c.Hour(Now), c.Year(Now))
	}
}

func TestHourFormat12(t *testing.T) {
	c := newTestClock(1000000)
	testCases := []struct {
		hour uint8
		want uint8
		pm   bool
	}{
		{0, 12, false},
		{1, 1, false},
		{11, 11, false},
		{12, 12, true},
		{13, 1, true},
		{23, 11, true},
	}

	for _, tc := range testCases {
		at := At(Epoch(uint32(tc.hour) * SecsPerHour))
		if got := c.HourFormat12(at); got != tc.want {
			t.Errorf("HourFormat12(%d) = %d, want %d", tc.hour, got, tc.want)
		}
		if got := c.IsPM(at); got != tc.pm {
			t.Errorf("IsPM(%d) = %v, want %v", tc.hour, got, tc.pm)
		}
	}
}

func TestClockCalendarCache(t *testing.T) {
	c := newTestClock(1000000)

	c.Fields(At(1582934400))
	if !c.cache.valid || c.cache.epoch != 1582934400 {
		t.Fatalf("cache not filled: %+v", c.cache)
	}

	// Poison the cache: a repeat lookup of the same epoch must not recompute
	c.cache.fields.Day = 99
	if d := c.Day(At(1582934400)); d != 99 {
		t.Errorf("Day() = %d, cache was not used", d)
	}

	if d := c.Day(At(1582934400 + SecsPerDay)); d != 1 {
		t.Errorf("Day() of next day = %d, want 1 March", d)
	}
	if c.cache.epoch != 1582934400+SecsPerDay {
		t.Errorf("cache epoch = %d after a new lookup", c.cache.epoch)
	}
}

func TestClockRecalibrateCreditsPendingTicks(t *testing.T) {
	c := newTestClock(1000000)
	c.Set(5000)

	tick(c.Ticks(), 2)
	if got := c.Now(); got != 5002 {
		t.Fatalf("Now() = %d, want 5002", got)
	}

	// Lands after the last drain, before the new period takes over
	c.Ticks().OnTick()
	if got := c.recalibrate(1010000); got != 5003 {
		t.Errorf("recalibrate() = %d, want 5003", got)
	}
	if got := c.Now(); got != 5003 {
		t.Errorf("Now() = %d, want 5003", got)
	}

	c.Ticks().OnTick()
	if got := c.Now(); got != 5004 {
		t.Errorf("Now() = %d, want 5004", got)
	}
	if got := c.Ticks().Pending(); got != 10000 {
		t.Errorf("Pending() = %d, want 10000", got)
	}
}
