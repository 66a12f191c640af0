package sequencer

// Phase is the coarse lifecycle position of a startup sequence
type Phase string

const (
	PhaseNotStarted Phase = "not_started" // Nothing has run yet
	PhaseRunning    Phase = "running"     // A provisioning step is executing
	PhaseServing    Phase = "serving"     // Control was handed to the server
	PhaseFailed     Phase = "failed"      // A step or the handoff failed
)

// State is a phase plus the step it refers to, if any
type State struct {
	Phase Phase
	Step  string
}

func (s State) String() string {
	if s.Step == "" {
		return string(s.Phase)
	}
	return string(s.Phase) + ":" + s.Step
}

// IsTerminal reports whether no further transition can happen
func (s State) IsTerminal() bool {
	return s.Phase == PhaseServing || s.Phase == PhaseFailed
}

func canTransition(from, to State) bool {
	switch from.Phase {
	case PhaseNotStarted:
		return to.Phase == PhaseRunning || to.Phase == PhaseServing || to.Phase == PhaseFailed
	case PhaseRunning:
		return to.Phase == PhaseRunning || to.Phase == PhaseServing || to.Phase == PhaseFailed
	default:
		return false
	}
}
