package agent

import "fmt"

// SessionLimitError is returned when a session exceeds its cumulative
// tool call limit. It is fatal for the turn.
type SessionLimitError struct {
	Limit int
}

func (e *SessionLimitError) Error() string {
	return fmt.Sprintf("Tool call limit exceeded (%d). This may indicate a runaway agent.", e.Limit)
}
