//go:build rp2040

package main

import (
	"device/rp"
	"runtime/interrupt"
)

// The TinyGo runtime sleeps on alarm 0, so the clock tick uses alarm 1.
// The alarm compares against the low word of the 1MHz timer.

var (
	tickPeriod uint32
	nextAlarm  uint32
	tickTarget func()
)

// StartTick arms a periodic interrupt every periodMicros and calls onTick
// from the handler
func StartTick(periodMicros uint32, onTick func()) {
	tickPeriod = periodMicros
	tickTarget = onTick

	intr := interrupt.New(rp.IRQ_TIMER_IRQ_1, handleAlarm)
	rp.TIMER.INTE.SetBits(rp.TIMER_INTE_ALARM_1)
	intr.Enable()

	nextAlarm = rp.TIMER.TIMERAWL.Get() + tickPeriod
	rp.TIMER.ALARM1.Set(nextAlarm)
}

func handleAlarm(interrupt.Interrupt) {
	rp.TIMER.INTR.Set(rp.TIMER_INTR_ALARM_1)

	// Schedule from the previous deadline so handler latency does not drift
	nextAlarm += tickPeriod
	rp.TIMER.ALARM1.Set(nextAlarm)

	tickTarget()
}
