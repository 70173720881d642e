package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput     Phase = iota // 0: admit new connections
	PhaseProcess                // 1: per-connection decode + broadcast (parallel)
	PhaseApply                  // 2: single-threaded application of this tick's events
	PhaseIntegrate              // 3: movement integration
	PhaseOutput                 // 4: flush buffered frames to writers
	PhaseCleanup                // 5: reap dead slots, recycle confirmed ids
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhaseProcess:
		return "process"
	case PhaseApply:
		return "apply"
	case PhaseIntegrate:
		return "integrate"
	case PhaseOutput:
		return "output"
	case PhaseCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// System is the interface every tick system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
