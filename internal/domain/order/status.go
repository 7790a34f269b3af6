package order

import "fmt"

// Status is the fulfillment state of an order.
type Status string

const (
	StatusInitialized Status = "INITIALIZED"
	StatusShipped     Status = "SHIPPED"
	StatusDelayed     Status = "DELAYED"
	StatusCompleted   Status = "COMPLETED"
)

// transitions is the complete set of legal status edges. Any pair not listed
// here is illegal; every status-changing entry point consults this table.
var transitions = map[Status][]Status{
	StatusInitialized: {StatusShipped, StatusDelayed},
	StatusShipped:     {StatusCompleted},
	StatusDelayed:     {StatusShipped, StatusCompleted},
	StatusCompleted:   {},
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether the edge s -> to is in the transition table.
func (s Status) CanTransitionTo(to Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ParseStatus converts a wire value into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return st, nil
}

// IllegalTransitionError reports a status change outside the transition table.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition from %s to %s", e.From, e.To)
}
