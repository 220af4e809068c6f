package core

// Status tells whether the clock has ever been given a real time
type Status uint8

const (
	StatusNotSet   Status = iota // cold start, counting from zero
	StatusRestored               // loaded from the persisted snapshot
	StatusSet                    // set explicitly
)

// Instant selects the time an accessor reports: the current time, or an
// explicit epoch wrapped with At.
type Instant struct {
	epoch    Epoch
	explicit bool
}

// Now selects the current time in accessors
var Now = Instant{}

// At selects an explicit epoch in accessors
func At(t Epoch) Instant {
	return Instant{epoch: t, explicit: true}
}

type calendarCache struct {
	epoch  Epoch
	fields Fields
	valid  bool
}

// Clock is the software clock. It owns the second counter fed by a
// TickAccumulator and a single-slot calendar cache. Foreground only.
type Clock struct {
	ticks   *TickAccumulator
	seconds Epoch
	status  Status
	cache   calendarCache
}

// NewClock creates a clock counting from zero, not set
func NewClock(ticks *TickAccumulator) *Clock {
	return &Clock{ticks: ticks}
}

// Ticks returns the accumulator feeding this clock
func (c *Clock) Ticks() *TickAccumulator {
	return c.ticks
}

// Now drains whole seconds from the tick accumulator and returns the time.
// Repeated calls with no tick in between return the same value.
func (c *Clock) Now() Epoch {
	c.seconds += Epoch(c.ticks.Drain())
	return c.seconds
}

// restartWindow credits pending seconds and restarts the calibration window
// at the returned time
func (c *Clock) restartWindow() Epoch {
	c.seconds += Epoch(c.ticks.restartWindow())
	return c.seconds
}

// recalibrate does the same as restartWindow and installs a new constant
func (c *Clock) recalibrate(microsPerInterrupt uint32) Epoch {
	c.seconds += Epoch(c.ticks.recalibrate(microsPerInterrupt))
	return c.seconds
}

// Set overwrites the time and restarts sub-second counting from now
func (c *Clock) Set(t Epoch) {
	c.seconds = t
	c.status = StatusSet
	c.ticks.rebase()
	RecordEvent(EvtSet, uint32(t), 0)
}

// SetDate sets the time from a wall-clock date. The year may be four digits
// or two digits meaning 2000-2069.
func (c *Clock) SetDate(hour, minute, second, day, month uint8, year uint16) {
	c.Set(MakeEpochFromDate(hour, minute, second, day, month, year))
}

// Restore loads a persisted time at startup without marking the clock set
func (c *Clock) Restore(t Epoch) {
	c.seconds = t
	c.status = StatusRestored
	c.ticks.rebase()
	RecordEvent(EvtRestore, uint32(t), 0)
}

// Adjust nudges the time by a signed number of seconds. Sub-second phase is kept.
func (c *Clock) Adjust(delta int32) {
	c.seconds += Epoch(delta)
	RecordEvent(EvtAdjust, uint32(c.seconds), uint32(delta))
}

// Status returns whether the clock has been set
func (c *Clock) Status() Status {
	return c.status
}

func (c *Clock) resolve(at Instant) Epoch {
	if at.explicit {
		return at.epoch
	}
	return c.Now()
}

// Fields returns the calendar breakdown, recomputed only when the epoch
// differs from the cached one
func (c *Clock) Fields(at Instant) Fields {
	t := c.resolve(at)
	if !c.cache.valid || c.cache.epoch != t {
		c.cache.fields = BreakEpoch(t)
		c.cache.epoch = t
		c.cache.valid = true
	}
	return c.cache.fields
}

func (c *Clock) Hour(at Instant) uint8 {
	return c.Fields(at).Hour
}

// HourFormat12 returns the hour in 12 hour format, 12 for midnight and noon
func (c *Clock) HourFormat12(at Instant) uint8 {
	h := c.Fields(at).Hour
	switch {
	case h == 0:
		return 12
	case h > 12:
		return h - 12
	default:
		return h
	}
}

func (c *Clock) IsPM(at Instant) bool {
	return c.Hour(at) >= 12
}

func (c *Clock) IsAM(at Instant) bool {
	return !c.IsPM(at)
}

func (c *Clock) Minute(at Instant) uint8 {
	return c.Fields(at).Minute
}

func (c *Clock) Second(at Instant) uint8 {
	return c.Fields(at).Second
}

// Day returns the day of the month, 1-31
func (c *Clock) Day(at Instant) uint8 {
	return c.Fields(at).Day
}

// Weekday returns the day of the week, Sunday is 1
func (c *Clock) Weekday(at Instant) uint8 {
	return c.Fields(at).Weekday
}

func (c *Clock) Month(at Instant) uint8 {
	return c.Fields(at).Month
}

// Year returns the full four digit year
func (c *Clock) Year(at Instant) uint16 {
	return CalendarYear(c.Fields(at).Year)
}
