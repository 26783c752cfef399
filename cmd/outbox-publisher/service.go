package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gamehost-backend/pkg/config"
	"github.com/angelmondragon/gamehost-backend/pkg/db/models"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
	"github.com/angelmondragon/gamehost-backend/pkg/logger"
	"github.com/angelmondragon/gamehost-backend/pkg/metrics"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPoll           = 500 * time.Millisecond
	defaultMaxAttempts    = 10
	publishTimeout        = 15 * time.Second
	maxIdleBackoff        = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
	attributeEventID      = "event_id"
	attributeEventType    = "event_type"
	attributeAggregateID  = "aggregate_id"
	attributeAggregateTyp = "aggregate_type"
)

type txDB interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pinger interface {
	Ping(context.Context) error
}

type outboxStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error) error
}

type dlqStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type dispatchMetrics interface {
	IncDispatch(eventType, outcome string)
}

// topicPublisher sends one message and waits for the server ack.
type topicPublisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) (string, error)
}

type ServiceParams struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        txDB
	PubSub    pinger
	Outbox    outboxStore
	DLQ       dlqStore
	Registry  resolver
	Metrics   dispatchMetrics
	Publisher func(topic string) topicPublisher
}

// Service drains the outbox table onto Pub/Sub topics. Rows that can never be
// published are parked in the DLQ so the batch keeps moving.
type Service struct {
	logg        *logger.Logger
	db          txDB
	pubsub      pinger
	outbox      outboxStore
	dlq         dlqStore
	registry    resolver
	metrics     dispatchMetrics
	publisher   func(topic string) topicPublisher
	publishers  map[string]topicPublisher
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Outbox == nil:
		return nil, errors.New("outbox repository is required")
	case params.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.Publisher == nil:
		return nil, errors.New("publisher factory is required")
	}

	cfg := params.Config.Outbox
	s := &Service{
		logg:        params.Logger,
		db:          params.DB,
		pubsub:      params.PubSub,
		outbox:      params.Outbox,
		dlq:         params.DLQ,
		registry:    params.Registry,
		metrics:     params.Metrics,
		publisher:   params.Publisher,
		publishers:  map[string]topicPublisher{},
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		poll:        time.Duration(cfg.PollIntervalMS) * time.Millisecond,
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.poll <= 0 {
		s.poll = defaultPoll
	}
	return s, nil
}

// Run polls until ctx is canceled. A full batch is followed immediately by
// the next one; errors back off exponentially up to maxIdleBackoff.
func (s *Service) Run(ctx context.Context) error {
	for name, dep := range map[string]pinger{"database": s.db, "pubsub": s.pubsub} {
		if err := dep.Ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	wait := s.poll
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox batch failed", err)
			wait = min(wait*2, maxIdleBackoff)
		case n >= s.batchSize:
			wait = s.poll
			continue
		default:
			wait = s.poll
		}
		if err := sleep(ctx, wait+jitter()); err != nil {
			return err
		}
	}
}

// processBatch locks up to batchSize rows and dispatches each one. It returns
// how many rows were handled.
func (s *Service) processBatch(ctx context.Context) (int, error) {
	handled := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.outbox.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox rows: %w", err)
		}
		for _, row := range rows {
			outcome, err := s.dispatch(ctx, tx, row)
			if err != nil {
				return err
			}
			if s.metrics != nil {
				s.metrics.IncDispatch(string(row.EventType), outcome)
			}
			handled++
		}
		return nil
	})
	return handled, err
}

func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (string, error) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
	})

	resolved, err := s.registry.Resolve(row)
	if err != nil {
		return metrics.DispatchParked, s.park(logCtx, tx, row, enums.DLQReasonNonRetryable, err)
	}
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"topic":    resolved.Descriptor.Topic,
		"event_id": resolved.Envelope.EventID,
	})

	if err := s.publish(ctx, row, resolved); err != nil {
		var permanent registry.NonRetryableError
		if errors.As(err, &permanent) {
			return metrics.DispatchParked, s.park(logCtx, tx, row, enums.DLQReasonNonRetryable, err)
		}
		if row.AttemptCount+1 >= s.maxAttempts {
			return metrics.DispatchParked, s.park(logCtx, tx, row, enums.DLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", err))
		}
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "outbox publish failed; will retry")
		if err := s.outbox.MarkFailedTx(tx, row.ID, err); err != nil {
			return "", fmt.Errorf("mark failed %s: %w", row.ID, err)
		}
		return metrics.DispatchRetry, nil
	}

	if err := s.outbox.MarkPublishedTx(tx, row.ID); err != nil {
		return "", fmt.Errorf("mark published %s: %w", row.ID, err)
	}
	s.logg.Info(logCtx, "outbox event published")
	return metrics.DispatchPublished, nil
}

func (s *Service) park(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.DLQReason, cause error) error {
	s.logg.Error(s.logg.WithField(ctx, "dlq_reason", reason), "outbox event parked in dlq", cause)
	entry := models.ParkedOutboxEvent(row, reason, cause, time.Now().UTC())
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", row.ID, err)
	}
	if err := s.outbox.MarkTerminalTx(tx, row.ID, cause); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub, ok := s.publishers[topic]
	if !ok {
		pub = s.publisher(topic)
		if pub == nil {
			return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %q", topic))
		}
		s.publishers[topic] = pub
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	_, err := pub.Publish(publishCtx, &gcppubsub.Message{
		Data: row.Payload,
		Attributes: map[string]string{
			attributeEventID:      resolved.Envelope.EventID,
			attributeEventType:    string(row.EventType),
			attributeAggregateTyp: string(row.AggregateType),
			attributeAggregateID:  row.AggregateID.String(),
		},
	})
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func jitter() time.Duration {
	return rand.N(jitterWindow)
}

// gcpPublisher blocks on the publish result so failures land on the row
// inside the same transaction.
type gcpPublisher struct {
	topic *gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) (string, error) {
	return p.topic.Publish(ctx, msg).Get(ctx)
}
