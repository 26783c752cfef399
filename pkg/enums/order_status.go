package enums

import "fmt"

// OrderStatus tracks an order from checkout through provisioning.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusActive    OrderStatus = "active"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusActive,
	OrderStatusCompleted,
	OrderStatusFailed,
	OrderStatusCancelled,
}

// pending -> active -> completed | failed; pending -> cancelled.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusActive, OrderStatusCancelled},
	OrderStatusActive:  {OrderStatusCompleted, OrderStatusFailed},
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (o OrderStatus) IsTerminal() bool {
	return o.IsValid() && len(orderTransitions[o]) == 0
}

// CanTransitionTo reports whether moving from o to next is a legal edge.
func (o OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, candidate := range orderTransitions[o] {
		if candidate == next {
			return true
		}
	}
	return false
}

// TransitionTo validates the edge and returns the next status.
func (o OrderStatus) TransitionTo(next OrderStatus) (OrderStatus, error) {
	if !o.CanTransitionTo(next) {
		return o, fmt.Errorf("order status transition %s -> %s not allowed", o, next)
	}
	return next, nil
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
