package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregateInvoice OutboxAggregateType = "invoice"
	AggregateServer  OutboxAggregateType = "server"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateInvoice,
	AggregateServer,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventProvisioningRequested OutboxEventType = "provisioning_requested"
	EventInvoicePaid           OutboxEventType = "invoice_paid"
	EventInvoiceCancelled      OutboxEventType = "invoice_cancelled"
	EventInvoiceExpired        OutboxEventType = "invoice_expired"
	EventOrderCompleted        OutboxEventType = "order_completed"
	EventOrderFailed           OutboxEventType = "order_failed"
	EventServerSuspended       OutboxEventType = "server_suspended"
	EventServerUnsuspended     OutboxEventType = "server_unsuspended"
)

var validOutboxEventTypes = []OutboxEventType{
	EventProvisioningRequested,
	EventInvoicePaid,
	EventInvoiceCancelled,
	EventInvoiceExpired,
	EventOrderCompleted,
	EventOrderFailed,
	EventServerSuspended,
	EventServerUnsuspended,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
