package enums

import "fmt"

// InvoiceStatus tracks the payment obligation attached to an order.
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
	InvoiceStatusExpired   InvoiceStatus = "expired"
)

var validInvoiceStatuses = []InvoiceStatus{
	InvoiceStatusPending,
	InvoiceStatusPaid,
	InvoiceStatusCancelled,
	InvoiceStatusExpired,
}

var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusPending: {InvoiceStatusPaid, InvoiceStatusCancelled, InvoiceStatusExpired},
}

// String implements fmt.Stringer.
func (i InvoiceStatus) String() string {
	return string(i)
}

// IsValid reports whether the value is a known InvoiceStatus.
func (i InvoiceStatus) IsValid() bool {
	for _, candidate := range validInvoiceStatuses {
		if candidate == i {
			return true
		}
	}
	return false
}

// IsPayable reports whether a payment may still be collected.
func (i InvoiceStatus) IsPayable() bool {
	return i == InvoiceStatusPending
}

// CanTransitionTo reports whether moving from i to next is a legal edge.
// Re-applying paid to a paid invoice is not an edge; callers treat it as a no-op.
func (i InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	for _, candidate := range invoiceTransitions[i] {
		if candidate == next {
			return true
		}
	}
	return false
}

// TransitionTo validates the edge and returns the next status.
func (i InvoiceStatus) TransitionTo(next InvoiceStatus) (InvoiceStatus, error) {
	if !i.CanTransitionTo(next) {
		return i, fmt.Errorf("invoice status transition %s -> %s not allowed", i, next)
	}
	return next, nil
}

// ParseInvoiceStatus converts raw input into an InvoiceStatus.
func ParseInvoiceStatus(value string) (InvoiceStatus, error) {
	for _, candidate := range validInvoiceStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid invoice status %q", value)
}
