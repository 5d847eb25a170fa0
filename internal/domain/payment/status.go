package payment

import "fmt"

// Status is the state of a payment.
type Status string

const (
	StatusPending           Status = "pending"
	StatusProcessing        Status = "processing"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
	StatusCancelled         Status = "cancelled"
	StatusRefunded          Status = "refunded"
	StatusPartiallyRefunded Status = "partially_refunded"
	StatusDisputed          Status = "disputed"
	StatusChargeback        Status = "chargeback"
)

// Statuses lists every payment status.
var Statuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
	StatusRefunded,
	StatusPartiallyRefunded,
	StatusDisputed,
	StatusChargeback,
}

var transitions = map[Status][]Status{
	StatusPending:           {StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled},
	StatusProcessing:        {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted:         {StatusRefunded, StatusPartiallyRefunded, StatusDisputed},
	StatusPartiallyRefunded: {StatusPartiallyRefunded, StatusRefunded, StatusDisputed},
	StatusDisputed:          {StatusCompleted, StatusChargeback, StatusRefunded},
	StatusFailed:            nil,
	StatusCancelled:         nil,
	StatusRefunded:          nil,
	StatusChargeback:        nil,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether a payment may move from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// InvalidTransitionError is returned for status changes outside the
// transition table.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change payment status from %s to %s", e.From, e.To)
}
