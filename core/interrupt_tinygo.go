//go:build tinygo

package core

import "runtime/interrupt"

type irqState = interrupt.State

// disableInterrupts disables interrupts and returns the previous state
func disableInterrupts() irqState {
	return interrupt.Disable()
}

// restoreInterrupts restores the interrupt state
func restoreInterrupts(state irqState) {
	interrupt.Restore(state)
}

// enterISR is a no-op: the CPU masks interrupts on handler entry.
func enterISR() {}

// exitISR is a no-op: the CPU restores the mask on handler return.
func exitISR() {}
