// Package lifecycle tracks the process phase reported by the health endpoint.
package lifecycle

import "sync/atomic"

// Phase is a process lifecycle phase.
type Phase int32

const (
	// Starting until the first cache warm has finished.
	Starting Phase = iota
	Ready
	// ShuttingDown once SIGTERM/SIGINT is received; health returns 503.
	ShuttingDown
)

func (p Phase) String() string {
	switch p {
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case ShuttingDown:
		return "shutting-down"
	default:
		return "unknown"
	}
}

// State holds the current phase. The zero value is Starting.
type State struct {
	phase atomic.Int32
}

// Phase returns the current phase.
func (s *State) Phase() Phase {
	return Phase(s.phase.Load())
}

// MarkReady moves Starting to Ready. It never leaves ShuttingDown.
func (s *State) MarkReady() {
	s.phase.CompareAndSwap(int32(Starting), int32(Ready))
}

// MarkShuttingDown enters ShuttingDown.
func (s *State) MarkShuttingDown() {
	s.phase.Store(int32(ShuttingDown))
}
