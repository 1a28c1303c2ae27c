package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Status is the fulfillment state of an order.
type Status string

const (
	StatusPending         Status = "pending"
	StatusAssignToCourier Status = "assigntocourier"
	StatusCollected       Status = "collected"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
)

// ErrUnknownStatus is returned by ParseStatus.
var ErrUnknownStatus = errors.New("unknown order status")

// ParseStatus converts a wire value into a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusAssignToCourier, StatusCollected, StatusCompleted, StatusCancelled:
		return st, nil
	}
	return "", errors.Wrapf(ErrUnknownStatus, "%q", s)
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

var transitions = map[Status][]Status{
	StatusPending:         {StatusAssignToCourier, StatusCancelled},
	StatusAssignToCourier: {StatusCollected, StatusCancelled},
	StatusCollected:       {StatusCompleted},
}

// CanTransition reports whether from → to is in the transition table.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError is returned for a status change outside the transition
// table. It matches ErrInvalidTransition.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

func checkTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}
