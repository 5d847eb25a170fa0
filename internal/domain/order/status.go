package order

import "fmt"

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending            Status = "pending"
	StatusConfirmed          Status = "confirmed"
	StatusProcessing         Status = "processing"
	StatusShipped            Status = "shipped"
	StatusDelivered          Status = "delivered"
	StatusCancelled          Status = "cancelled"
	StatusRefunded           Status = "refunded"
	StatusPartiallyShipped   Status = "partially_shipped"
	StatusPartiallyDelivered Status = "partially_delivered"
	StatusPartiallyRefunded  Status = "partially_refunded"
)

// Statuses lists every order status.
var Statuses = []Status{
	StatusPending,
	StatusConfirmed,
	StatusProcessing,
	StatusShipped,
	StatusDelivered,
	StatusCancelled,
	StatusRefunded,
	StatusPartiallyShipped,
	StatusPartiallyDelivered,
	StatusPartiallyRefunded,
}

var transitions = map[Status][]Status{
	StatusPending:            {StatusConfirmed, StatusCancelled},
	StatusConfirmed:          {StatusProcessing, StatusCancelled, StatusRefunded},
	StatusProcessing:         {StatusShipped, StatusPartiallyShipped, StatusCancelled, StatusRefunded},
	StatusPartiallyShipped:   {StatusShipped, StatusPartiallyDelivered},
	StatusShipped:            {StatusDelivered, StatusPartiallyDelivered},
	StatusPartiallyDelivered: {StatusDelivered, StatusPartiallyRefunded},
	StatusDelivered:          {StatusRefunded, StatusPartiallyRefunded},
	StatusPartiallyRefunded:  {StatusRefunded},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok || s == StatusCancelled || s == StatusRefunded
}

// CanTransitionTo reports whether the order may move from s to next.
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

// Next returns the statuses reachable from s.
func (s Status) Next() []Status {
	return transitions[s]
}

// InvalidTransitionError is returned for status changes outside the
// transition table.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}
