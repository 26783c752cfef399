package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/gamehost-backend/pkg/config"
	"github.com/angelmondragon/gamehost-backend/pkg/db/models"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox/payloads"
)

// EventDescriptor says where an event type is published and what its data
// decodes into.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	newPayload    func() any
}

// ResolvedEvent is an outbox row that passed validation and is ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry routes outbox rows to Pub/Sub topics.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row the publisher should park instead of retry.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

// NewNonRetryableError wraps err so the publisher parks the row.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func route[T any](event enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:     event,
		AggregateType: aggregate,
		Topic:         topic,
		newPayload:    func() any { return new(T) },
	}
}

// NewEventRegistry builds the routing table. Provisioning jobs get their own
// topic; invoice and server lifecycle events fan out on the billing and
// servers topics.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	for _, topic := range [][2]string{
		{"provisioning", cfg.ProvisioningTopic},
		{"billing", cfg.BillingTopic},
		{"servers", cfg.ServersTopic},
	} {
		if topic[1] == "" {
			return nil, fmt.Errorf("%s topic is required", topic[0])
		}
	}

	routes := []EventDescriptor{
		route[payloads.ProvisioningRequestedEvent](enums.EventProvisioningRequested, enums.AggregateOrder, cfg.ProvisioningTopic),

		route[payloads.InvoicePaidEvent](enums.EventInvoicePaid, enums.AggregateInvoice, cfg.BillingTopic),
		route[payloads.InvoiceClosedEvent](enums.EventInvoiceCancelled, enums.AggregateInvoice, cfg.BillingTopic),
		route[payloads.InvoiceClosedEvent](enums.EventInvoiceExpired, enums.AggregateInvoice, cfg.BillingTopic),

		route[payloads.OrderCompletedEvent](enums.EventOrderCompleted, enums.AggregateOrder, cfg.ServersTopic),
		route[payloads.OrderFailedEvent](enums.EventOrderFailed, enums.AggregateOrder, cfg.ServersTopic),
		route[payloads.ServerStatusChangedEvent](enums.EventServerSuspended, enums.AggregateServer, cfg.ServersTopic),
		route[payloads.ServerStatusChangedEvent](enums.EventServerUnsuspended, enums.AggregateServer, cfg.ServersTopic),
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(routes))}
	for _, desc := range routes {
		if _, dup := reg.entries[desc.EventType]; dup {
			return nil, fmt.Errorf("event %s routed twice", desc.EventType)
		}
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Topics lists the distinct topics the registry publishes to.
func (r *EventRegistry) Topics() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, desc := range r.entries {
		if _, ok := seen[desc.Topic]; ok {
			continue
		}
		seen[desc.Topic] = struct{}{}
		out = append(out, desc.Topic)
	}
	return out
}

// Resolve validates the row and decodes its typed payload. Every failure is
// permanent: retrying a malformed row cannot fix it.
func (r *EventRegistry) Resolve(row models.OutboxEvent) (*ResolvedEvent, error) {
	desc, err := r.descriptorFor(row)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}

	envelope, err := outbox.OpenEnvelope(row.Payload)
	if err != nil {
		if errors.Is(err, outbox.ErrEnvelopeEmpty) {
			err = fmt.Errorf("payload missing for %s", row.EventType)
		}
		return nil, NewNonRetryableError(err)
	}

	payload := desc.newPayload()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", row.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}

func (r *EventRegistry) descriptorFor(row models.OutboxEvent) (EventDescriptor, error) {
	desc, ok := r.entries[row.EventType]
	switch {
	case !ok:
		return EventDescriptor{}, fmt.Errorf("unsupported event type %s", row.EventType)
	case desc.AggregateType != row.AggregateType:
		return EventDescriptor{}, fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, row.AggregateType)
	case row.AggregateID == uuid.Nil:
		return EventDescriptor{}, errors.New("missing aggregate_id")
	}
	return desc, nil
}
