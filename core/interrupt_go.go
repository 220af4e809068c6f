//go:build !tinygo

package core

import "sync"

// irqState is a placeholder for interrupt state on regular Go
type irqState uintptr

// irqMask stands in for the CPU interrupt mask. Host simulations that fire
// OnTick from another goroutine get the same exclusion the hardware gives.
var irqMask sync.Mutex

// disableInterrupts masks the simulated tick interrupt
func disableInterrupts() irqState {
	irqMask.Lock()
	return 0
}

// restoreInterrupts unmasks the simulated tick interrupt
func restoreInterrupts(state irqState) {
	irqMask.Unlock()
}

// enterISR models the masking done by hardware interrupt entry
func enterISR() {
	irqMask.Lock()
}

// exitISR models the unmasking done by interrupt return
func exitISR() {
	irqMask.Unlock()
}
