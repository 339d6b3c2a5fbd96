package order

import (
	"errors"
	"fmt"
	"slices"
)

type Status string

const (
	StatusOngoing            Status = "ongoing"
	StatusAwaitingValidation Status = "awaiting_validation"
	StatusValidated          Status = "validated"
	StatusAwaitingPayment    Status = "awaiting_payment"
	StatusPaid               Status = "paid"
	StatusExpired            Status = "expired"
	StatusCancelled          Status = "cancelled"
)

var ErrInvalidTransition = errors.New("invalid order status transition")

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusOngoing:            {StatusAwaitingValidation, StatusAwaitingPayment, StatusExpired, StatusCancelled},
	StatusAwaitingValidation: {StatusValidated, StatusAwaitingPayment, StatusExpired, StatusCancelled},
	StatusValidated:          {StatusAwaitingPayment, StatusExpired, StatusCancelled},
	StatusAwaitingPayment:    {StatusPaid, StatusExpired, StatusCancelled},
	StatusPaid:               {}, // terminal state
	StatusExpired:            {}, // terminal state
	StatusCancelled:          {}, // terminal state
}

var (
	bookedStatuses  = []Status{StatusAwaitingValidation, StatusValidated, StatusAwaitingPayment, StatusPaid}
	payableStatuses = []Status{StatusOngoing, StatusAwaitingValidation, StatusAwaitingPayment}
)

// BookedStatuses returns the statuses whose orders count against capacity.
func BookedStatuses() []Status {
	return slices.Clone(bookedStatuses)
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

// IsBooked reports whether an order in this status holds stock.
func (s Status) IsBooked() bool {
	return slices.Contains(bookedStatuses, s)
}

// IsPayable reports whether an order in this status may go through validation.
// Validated orders are not payable.
func (s Status) IsPayable() bool {
	return slices.Contains(payableStatuses, s)
}

func (s Status) IsTerminal() bool {
	return s.IsValid() && len(validTransitions[s]) == 0
}

// CanTransitionTo checks if the status can move to target
func (s Status) CanTransitionTo(target Status) bool {
	return slices.Contains(validTransitions[s], target)
}

// Transition returns target when the move is legal, ErrInvalidTransition otherwise.
func (s Status) Transition(target Status) (Status, error) {
	if !s.CanTransitionTo(target) {
		return s, fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, s, target)
	}
	return target, nil
}
