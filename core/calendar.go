package core

// Calendar conversion between epoch seconds and broken-down fields.
// Proleptic Gregorian, UTC only, years stored as an offset from 1970.

// Epoch is a count of seconds since 1970-01-01T00:00:00
type Epoch uint32

const (
	SecsPerMin  = 60
	SecsPerHour = 3600
	SecsPerDay  = SecsPerHour * 24

	// EpochYear is the calendar year of Fields.Year == 0
	EpochYear = 1970
)

// Weekday values, Sunday is day 1
const (
	Sunday = iota + 1
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

// Fields is the human-readable breakdown of an Epoch
type Fields struct {
	Second  uint8 // 0-59
	Minute  uint8 // 0-59
	Hour    uint8 // 0-23
	Weekday uint8 // 1-7, Sunday is 1
	Day     uint8 // 1-31
	Month   uint8 // 1-12
	Year    uint8 // offset from 1970
}

// API months start from 1, this table starts from 0
var monthDays = [12]uint8{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// LeapYear reports whether the year at the given offset from 1970 is a leap year
func LeapYear(year uint8) bool {
	y := EpochYear + uint16(year)
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

// MonthDays returns the length of a month (1-12) in the year at the given offset.
// Months past 12 wrap around the table so that unchecked input stays deterministic.
func MonthDays(year, month uint8) uint8 {
	if month == 2 && LeapYear(year) {
		return 29
	}
	return monthDays[(month-1)%12]
}

// YearDays returns 365 or 366
func YearDays(year uint8) uint32 {
	if LeapYear(year) {
		return 366
	}
	return 365
}

// CalendarYear converts a year offset to a full four digit year
func CalendarYear(year uint8) uint16 {
	return EpochYear + uint16(year)
}

// YearOffset converts a four digit year, or two digits meaning 2000-2069,
// to an offset from 1970
func YearOffset(year uint16) uint8 {
	if year > 99 {
		return uint8(year - EpochYear)
	}
	return uint8(year + 30)
}

// BreakEpoch breaks an Epoch into calendar fields
func BreakEpoch(t Epoch) Fields {
	var f Fields
	rem := uint32(t)

	f.Second = uint8(rem % 60)
	rem /= 60 // now it is minutes
	f.Minute = uint8(rem % 60)
	rem /= 60 // now it is hours
	f.Hour = uint8(rem % 24)
	rem /= 24 // now it is days
	f.Weekday = uint8((rem+4)%7) + 1

	var year uint8
	var days uint32
	for {
		days += YearDays(year)
		if days > rem {
			break
		}
		year++
	}
	f.Year = year

	days -= YearDays(year)
	rem -= days // now it is days in this year, starting at 0

	month := uint8(1)
	for ; month <= 12; month++ {
		length := uint32(MonthDays(year, month))
		if rem < length {
			break
		}
		rem -= length
	}
	f.Month = month
	f.Day = uint8(rem) + 1
	return f
}

// MakeEpoch assembles calendar fields into an Epoch. Weekday is ignored.
// Month and Day are not range checked; callers holding untrusted input
// must validate first.
func MakeEpoch(f Fields) Epoch {
	var days uint32

	// days from 1970 till 1 jan of the given year
	for y := uint8(0); y < f.Year; y++ {
		days += YearDays(y)
	}
	for m := uint8(1); m < f.Month; m++ {
		days += uint32(MonthDays(f.Year, m))
	}

	seconds := (days + uint32(f.Day) - 1) * SecsPerDay
	seconds += uint32(f.Hour) * SecsPerHour
	seconds += uint32(f.Minute) * SecsPerMin
	seconds += uint32(f.Second)
	return Epoch(seconds)
}

// MakeEpochFromDate builds an Epoch from a wall-clock date. The year may be
// given as four digits or as two digits (10 for 2010).
func MakeEpochFromDate(hour, minute, second, day, month uint8, year uint16) Epoch {
	return MakeEpoch(Fields{
		Second: second,
		Minute: minute,
		Hour:   hour,
		Day:    day,
		Month:  month,
		Year:   YearOffset(year),
	})
}
