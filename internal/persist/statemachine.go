package persist

import (
	"fmt"

	"github.com/tutordex/core/internal/model"
)

// StatusTransitionError is returned when an assignment status transition is
// not allowed by the state machine.
type StatusTransitionError struct {
	From, To model.Status
}

func (e *StatusTransitionError) Error() string {
	return fmt.Sprintf("invalid assignment status transition: %s -> %s", e.From, e.To)
}

// validTransitions is the directed graph of allowed assignment status
// changes. DELETED has no outgoing edges: it is terminal.
var validTransitions = map[model.Status]map[model.Status]bool{
	model.StatusPending: {model.StatusOpen: true, model.StatusDeleted: true},
	model.StatusOpen: {
		model.StatusClosed:  true,
		model.StatusHidden:  true,
		model.StatusExpired: true,
		model.StatusDeleted: true,
	},
	model.StatusClosed: {model.StatusOpen: true, model.StatusDeleted: true},
	model.StatusHidden: {model.StatusOpen: true, model.StatusDeleted: true},
	model.StatusExpired: {model.StatusClosed: true, model.StatusDeleted: true},
	model.StatusDeleted: {},
}

// CanTransition reports whether moving from -> to is permitted. A no-op
// transition (from == to) is always permitted.
func CanTransition(from, to model.Status) bool {
	if from == to {
		return true
	}
	return validTransitions[from][to]
}

// IsTerminal reports whether status has no further allowed transitions.
func IsTerminal(status model.Status) bool {
	return len(validTransitions[status]) == 0
}

// Transition mode controls how an invalid transition is handled.
type Mode int

const (
	// ModeEnforce rejects an invalid transition with a *StatusTransitionError.
	ModeEnforce Mode = iota
	// ModeReport allows an invalid transition through, for repair tooling.
	ModeReport
)

// Transition validates and returns the new status. The Persister always
// calls this in ModeEnforce. Nothing in this module calls it with
// ModeReport, which returns the requested status for an invalid transition
// with no error and no log line.
func Transition(from, to model.Status, mode Mode) (model.Status, error) {
	if from == to {
		return to, nil
	}
	if CanTransition(from, to) {
		return to, nil
	}
	if mode == ModeReport {
		return to, nil
	}
	return from, &StatusTransitionError{From: from, To: to}
}
