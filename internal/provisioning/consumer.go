package provisioning

import (
	"context"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/gamehost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gamehost-backend/pkg/errors"
	"github.com/angelmondragon/gamehost-backend/pkg/logger"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox/registry"
)

const consumerName = "provisioning-worker"

type jobHandler interface {
	ProvisionOrder(ctx context.Context, job payloads.ProvisioningRequestedEvent) error
}

// Consumer receives provisioning jobs from Pub/Sub. Retryable failures are
// nacked for redelivery; everything else is acked.
type Consumer struct {
	subscription *pubsub.Subscriber
	handler      jobHandler
	decoders     *registry.DecoderRegistry
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

func NewConsumer(subscription *pubsub.Subscriber, handler jobHandler, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("provisioning subscription required")
	}
	return newConsumer(subscription, handler, manager, logg)
}

func newConsumer(subscription *pubsub.Subscriber, handler jobHandler, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if handler == nil {
		return nil, fmt.Errorf("provisioning handler required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		subscription: subscription,
		handler:      handler,
		decoders:     NewDecoders(),
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// NewDecoders registers the provisioning job payload versions.
func NewDecoders() *registry.DecoderRegistry {
	reg := registry.NewDecoderRegistry()
	reg.Register(enums.EventProvisioningRequested, 1, registry.JSONDecoder(func(job payloads.ProvisioningRequestedEvent) error {
		if job.OrderID == uuid.Nil {
			return fmt.Errorf("order_id missing")
		}
		return nil
	}))
	return reg
}

// Run blocks receiving messages until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.ID, msg.Attributes, msg.Data) {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// process handles one delivery and reports whether it should be redelivered.
func (c *Consumer) process(ctx context.Context, messageID string, attributes map[string]string, data []byte) bool {
	eventType := enums.OutboxEventType(attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	if eventType != enums.EventProvisioningRequested {
		c.logg.Info(logCtx, "skipping non-provisioning event")
		return false
	}

	envelope, err := outbox.OpenEnvelope(data)
	if err != nil {
		c.logg.Error(logCtx, "dropping undecodable envelope", err)
		return false
	}
	eventID, _ := envelope.ParsedEventID()
	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())

	decoded, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode provisioning job", err)
		return false
	}
	job := decoded.(payloads.ProvisioningRequestedEvent)

	state, err := c.idempotency.Claim(ctx, consumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency claim failed", err)
		return true
	}
	switch state {
	case idempotency.Done:
		c.logg.Info(logCtx, "event already processed")
		return false
	case idempotency.InFlight:
		c.logg.Info(logCtx, "event claimed by another worker")
		return true
	}

	if err := c.handler.ProvisionOrder(logCtx, job); err != nil {
		if pkgerrors.IsRetryable(err) {
			c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "provisioning job will be redelivered")
			if relErr := c.idempotency.Release(ctx, consumerName, eventID); relErr != nil {
				c.logg.Error(logCtx, "failed to release idempotency claim", relErr)
			}
			return true
		}
		c.logg.Error(logCtx, "provisioning job dropped", err)
	}
	if err := c.idempotency.Complete(ctx, consumerName, eventID); err != nil {
		c.logg.Error(logCtx, "failed to mark event done", err)
	}
	return false
}
