package runner

// Phase is a lifecycle stage of a run.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseCancelled
	PhaseDraining
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseCancelled:
		return "cancelled"
	case PhaseDraining:
		return "draining"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}
