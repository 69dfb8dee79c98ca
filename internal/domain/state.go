package domain

import "fmt"

// State is a derived classification used to filter listings. It is never stored.
type State string

const (
	StateOpen            State = "open"
	StatePendingApproval State = "pending_approval"
	StateCompleted       State = "completed"
	StateAll             State = "all"
)

// ParseState accepts the empty string as StateAll.
func ParseState(s string) (State, error) {
	switch State(s) {
	case "", StateAll:
		return StateAll, nil
	case StateOpen, StatePendingApproval, StateCompleted:
		return State(s), nil
	}
	return "", fmt.Errorf("invalid state filter %q (want open, pending_approval, completed or all)", s)
}

// Matches classifies a task. Open means not yet approved, whatever its status.
func (t Task) Matches(state State) bool {
	switch state {
	case StateAll:
		return true
	case StateOpen:
		return !t.Approved
	case StatePendingApproval:
		return t.Status == StatusDone && !t.Approved
	case StateCompleted:
		return t.Status == StatusDone && t.Approved
	}
	return false
}

// Matches classifies a project from its own flag and the aggregate state of its tasks.
func (p Project) Matches(state State) bool {
	switch state {
	case StateAll:
		return true
	case StateOpen:
		if p.Completed {
			return false
		}
		for _, t := range p.Tasks {
			if t.Status != StatusDone {
				return true
			}
		}
		return false
	case StatePendingApproval:
		for _, t := range p.Tasks {
			if t.Status == StatusDone && !t.Approved {
				return true
			}
		}
		return false
	case StateCompleted:
		return p.Completed
	}
	return false
}
