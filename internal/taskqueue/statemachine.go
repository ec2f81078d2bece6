package taskqueue

import "fmt"

var allowedTransitions = map[State]map[State]bool{
	StatePending: {
		StateLeased: true,
	},
	StateLeased: {
		StatePending:    true,
		StateSucceeded:  true,
		StateDeadLetter: true,
	},
}

// transition moves t to the given state or reports why it cannot.
func transition(t *Task, to State) error {
	if t.Terminal() {
		return fmt.Errorf("task %s: cannot transition from terminal state %s", t.ID, t.State)
	}
	if !allowedTransitions[t.State][to] {
		return fmt.Errorf("task %s: invalid state transition from %s to %s", t.ID, t.State, to)
	}
	t.State = to
	return nil
}
