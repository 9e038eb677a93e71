package appointments

import "github.com/wolfman30/clinicdesk/internal/apperr"

// Status is the lifecycle state of an appointment. The same type validates
// request payloads and drives the transition table.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled}

// transitions is the only place allowed moves are defined. Completed and
// cancelled are terminal.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
	StatusCompleted: nil,
	StatusCancelled: nil,
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// Next returns the statuses reachable from s in one step.
func (s Status) Next() []Status {
	return append([]Status(nil), transitions[s]...)
}

// CanTransition reports whether from → to is an allowed move.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns an InvalidTransition error naming both statuses
// when the move is not allowed.
func CheckTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return apperr.InvalidTransition("Cannot change status from '%s' to '%s'", from, to)
}
