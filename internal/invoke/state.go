package invoke

import "fmt"

// State is the runtime lifecycle state of one planned invocation.
type State string

const (
	StatePending State = "PENDING"
	StateRunning State = "RUNNING"
	StatePassed  State = "PASSED"
	StateFailed  State = "FAILED"
	StateErrored State = "ERRORED"
)

// IsTerminal reports whether the state is final.
func IsTerminal(s State) bool {
	switch s {
	case StatePassed, StateFailed, StateErrored:
		return true
	default:
		return false
	}
}

// RunState is the mutable per-invocation status of one run, keyed by
// invocation label. The plan itself stays immutable across the run.
type RunState map[string]State

// NewRunState initializes every label to PENDING. Duplicate labels are
// rejected; the rest of the run addresses invocations by label alone.
func NewRunState(labels []string) (RunState, error) {
	state := make(RunState, len(labels))
	for _, label := range labels {
		if label == "" {
			return nil, fmt.Errorf("invocation label is empty")
		}
		if _, dup := state[label]; dup {
			return nil, fmt.Errorf("duplicate invocation label %q", label)
		}
		state[label] = StatePending
	}
	return state, nil
}

// Transition performs an atomic validated transition for a single
// invocation.
//
// The caller supplies the expected prior state so that bookkeeping bugs
// surface as errors instead of silently overwritten states.
func (s RunState) Transition(label string, from, to State) error {
	cur, ok := s[label]
	if !ok {
		return fmt.Errorf("unknown invocation %q", label)
	}
	if cur != from {
		return fmt.Errorf("invalid transition for %q: expected %s, got %s", label, from, cur)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition for %q: %s -> %s", label, from, to)
	}
	s[label] = to
	return nil
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateRunning
	case StateRunning:
		return to == StatePassed || to == StateFailed || to == StateErrored
	default:
		return false
	}
}
