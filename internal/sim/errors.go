package sim

import "fmt"

// PreconditionError reports a command that is well-formed but illegal
// given the current drone state (takeoff while disarmed, disarm while
// flying). Illegal transitions fail loudly, never silently no-op.
type PreconditionError struct {
	Op     string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Op, e.Reason)
}

func precondition(op, reason string) error {
	return &PreconditionError{Op: op, Reason: reason}
}
