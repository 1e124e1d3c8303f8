// Package lifecycle tracks the process phase reported by the health endpoint.
package lifecycle

import "sync/atomic"

// Phase is where the process is in its life.
type Phase int32

const (
	// Starting until the listener accepts connections.
	Starting Phase = iota
	Serving
	// ShuttingDown once SIGTERM/SIGINT is received; health answers 503.
	ShuttingDown
)

func (p Phase) String() string {
	switch p {
	case Starting:
		return "starting"
	case Serving:
		return "serving"
	case ShuttingDown:
		return "shutting-down"
	}
	return "unknown"
}

var phase atomic.Int32

// SetPhase moves the process to p. Leaving ShuttingDown is only possible via Reset.
func SetPhase(p Phase) {
	for {
		cur := phase.Load()
		if Phase(cur) == ShuttingDown {
			return
		}
		if phase.CompareAndSwap(cur, int32(p)) {
			return
		}
	}
}

// Current returns the current phase.
func Current() Phase {
	return Phase(phase.Load())
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return Current() == ShuttingDown
}

// Reset returns to Starting. For tests only.
func Reset() {
	phase.Store(int32(Starting))
}
