package core

// critical is the scoped section foreground code uses to touch state that the
// tick interrupt also writes. Hold it around the loads or stores only.
//
//	cs := enterCritical()
//	v := shared
//	cs.exit()
type critical struct {
	state irqState
}

func enterCritical() critical {
	return critical{state: disableInterrupts()}
}

func (c critical) exit() {
	restoreInterrupts(c.state)
}
