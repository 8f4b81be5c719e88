package agent

import "fmt"

// PersistenceError reports a durable-store failure inside a decision cycle.
// The cycle itself completed; what it produced may not be on disk.
type PersistenceError struct {
	Op           string
	AgentID      string
	TournamentID string
	Cause        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed (%s) for agent %s in tournament %s: %v",
		e.Op, e.AgentID, e.TournamentID, e.Cause)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}
